// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
client.go - Listing API Client

Client talks to the four listing API surfaces (account management, business
information, reviews/posts, performance) on behalf of one set of credentials.

Resilience:
  - Token bucket limiter (golang.org/x/time/rate) in front of every request
  - HTTP 429 handling with exponential backoff and Retry-After support
  - Shared circuit breaker; scope and malformed-request errors never trip it
  - OAuth2 token source refreshes expired access tokens when a refresh token
    and client credentials are configured

Every failure is returned as *APIError so the sync engine can classify it.
All responses are normalized into internal/models types before returning.
*/

//nolint:staticcheck // File documentation, not package doc
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

const (
	// maxErrorBodySize limits how much of an error response is read.
	maxErrorBodySize = 64 * 1024

	// maxResponseSize limits how much of a successful response is read.
	maxResponseSize = 32 * 1024 * 1024

	// maxPages stops runaway pagination.
	maxPages = 500
)

// readBodyForError reads at most maxErrorBodySize bytes for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// Client is a listing API client bound to one set of credentials.
// It is safe for concurrent use.
type Client struct {
	cfg            config.ListingConfig
	http           *http.Client
	limiter        *rate.Limiter
	breaker        *Breaker
	maxRetries     int
	retryBaseDelay time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithBreaker shares a circuit breaker between clients.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLimiter shares a rate limiter between clients.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBaseTransport sets the transport underneath the OAuth2 layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if t, ok := c.http.Transport.(*oauth2.Transport); ok {
			t.Base = rt
		}
	}
}

// NewClient builds a client for creds. A refresh token is only used when
// ClientID and TokenURL are configured; otherwise the access token is sent
// as-is until it expires.
func NewClient(ctx context.Context, cfg config.ListingConfig, creds models.Credentials, opts ...Option) *Client {
	c := &Client{
		cfg:            cfg,
		http:           oauth2.NewClient(context.WithoutCancel(ctx), tokenSource(ctx, cfg, creds)),
		maxRetries:     cfg.MaxRateLimitRetries,
		retryBaseDelay: cfg.RateLimitBaseDelay,
	}
	c.http.Timeout = cfg.Timeout
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = NewLimiter(cfg)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker("listing-api", BreakerSettings{})
	}
	return c
}

// NewLimiter returns the limiter described by cfg. A non-positive rate
// disables limiting.
func NewLimiter(cfg config.ListingConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

func tokenSource(ctx context.Context, cfg config.ListingConfig, creds models.Credentials) oauth2.TokenSource {
	tok := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
		TokenType:    "Bearer",
	}
	if creds.RefreshToken == "" || cfg.ClientID == "" || cfg.TokenURL == "" {
		return oauth2.StaticTokenSource(tok)
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	return oc.TokenSource(context.WithoutCancel(ctx), tok)
}

// getJSON issues a GET through the breaker and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, reqURL string, out interface{}) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doRequest(ctx, endpoint, reqURL)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return &APIError{Op: endpoint, Err: err}
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Op: endpoint, Err: fmt.Errorf("decode response: %w", err), decode: true}
	}
	return nil
}

// doRequest performs one logical request, retrying HTTP 429 with exponential
// backoff (base, 2*base, 4*base...) unless Retry-After says otherwise.
func (c *Client) doRequest(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &APIError{Op: endpoint, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, &APIError{Op: endpoint, Err: fmt.Errorf("create request: %w", err)}
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			metrics.RecordListingRequest(endpoint, 0, time.Since(start))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &APIError{Op: endpoint, Err: ctxErr}
			}
			return nil, &APIError{Op: endpoint, Err: err}
		}
		metrics.RecordListingRequest(endpoint, resp.StatusCode, time.Since(start))

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
			if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
				delay = ra
			}
			_ = resp.Body.Close()
			metrics.ListingAPIRateLimited.WithLabelValues(endpoint).Inc()
			logging.Debug().Str("endpoint", endpoint).Int("attempt", attempt+1).
				Dur("delay", delay).Msg("Listing API rate limited, backing off")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, &APIError{Op: endpoint, Err: ctx.Err()}
			}
			continue
		}

		return readResponse(endpoint, resp)
	}
}

func readResponse(endpoint string, resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: endpoint, StatusCode: resp.StatusCode}
		body := readBodyForError(resp.Body)
		var envelope struct {
			Error struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
			apiErr.Status = envelope.Error.Status
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &APIError{Op: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}
	return body, nil
}

// retryAfter parses the delay-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// paginate follows nextPageToken until the API stops returning one.
func (c *Client) paginate(ctx context.Context, endpoint, baseURL string, params url.Values,
	page func(body pageDecoder) (string, error)) error {
	token := ""
	for n := 0; n < maxPages; n++ {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		if token != "" {
			q.Set("pageToken", token)
		}
		reqURL := baseURL
		if enc := q.Encode(); enc != "" {
			reqURL += "?" + enc
		}

		next, err := page(func(out interface{}) error {
			return c.getJSON(ctx, endpoint, reqURL, out)
		})
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		token = next
	}
	logging.Warn().Str("endpoint", endpoint).Int("pages", maxPages).Msg("Listing API pagination limit reached")
	return nil
}

// pageDecoder fetches one page into out.
type pageDecoder func(out interface{}) error

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
