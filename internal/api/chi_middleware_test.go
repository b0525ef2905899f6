// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/listingsync/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func hit(t *testing.T, h http.Handler, remoteAddr string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestNewChiMiddlewareConfig(t *testing.T) {
	t.Run("copies security section", func(t *testing.T) {
		cfg := NewChiMiddlewareConfig(config.SecurityConfig{
			CORSOrigins:       []string{"https://ops.example.com"},
			RateLimitReqs:     5,
			RateLimitWindow:   10 * time.Second,
			RateLimitDisabled: true,
		})
		if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "https://ops.example.com" {
			t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
		}
		if cfg.RateLimitRequests != 5 || cfg.RateLimitWindow != 10*time.Second || !cfg.RateLimitDisabled {
			t.Errorf("rate limit = %d/%v disabled=%v", cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitDisabled)
		}
	})

	t.Run("zero values keep defaults", func(t *testing.T) {
		cfg := NewChiMiddlewareConfig(config.SecurityConfig{})
		def := DefaultChiMiddlewareConfig()
		if cfg.RateLimitRequests != def.RateLimitRequests || cfg.RateLimitWindow != def.RateLimitWindow {
			t.Errorf("rate limit = %d/%v, want defaults", cfg.RateLimitRequests, cfg.RateLimitWindow)
		}
	})
}

func TestDefaultChiMiddlewareConfig(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Errorf("default origins = %v, want none", cfg.CORSAllowedOrigins)
	}
	want := map[string]bool{"Last-Event-ID": false, "X-Request-ID": false}
	for _, h := range cfg.CORSAllowedHeaders {
		if _, ok := want[h]; ok {
			want[h] = true
		}
	}
	for h, found := range want {
		if !found {
			t.Errorf("allowed headers missing %s", h)
		}
	}
	if NewChiMiddleware(nil).config == nil {
		t.Error("nil config should fall back to defaults")
	}
}

func TestChiMiddleware_CORS(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://ops.example.com"},
		CORSAllowedMethods: []string{"GET", "POST"},
		CORSAllowedHeaders: []string{"Content-Type"},
	})
	h := m.CORS()(okHandler)

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"allowed", "https://ops.example.com", "https://ops.example.com"},
		{"disallowed", "https://evil.example.com", ""},
		{"no origin", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChiMiddleware_RateLimit(t *testing.T) {
	t.Run("limits per IP", func(t *testing.T) {
		m := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitRequests: 1, RateLimitWindow: time.Minute})
		h := m.RateLimit()(okHandler)

		if code := hit(t, h, "10.0.0.1:1000"); code != http.StatusOK {
			t.Fatalf("first request = %d", code)
		}
		if code := hit(t, h, "10.0.0.1:1001"); code != http.StatusTooManyRequests {
			t.Errorf("second request from same IP = %d, want 429", code)
		}
		if code := hit(t, h, "10.0.0.2:1000"); code != http.StatusOK {
			t.Errorf("other IP = %d, want 200", code)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		m := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitRequests: 1, RateLimitWindow: time.Minute, RateLimitDisabled: true})
		for _, limiter := range []func(http.Handler) http.Handler{m.RateLimit(), m.RateLimitSync(), m.RateLimitHealth()} {
			h := limiter(okHandler)
			for i := 0; i < 20; i++ {
				if code := hit(t, h, "10.0.0.1:1000"); code != http.StatusOK {
					t.Fatalf("request %d = %d with limiting disabled", i, code)
				}
			}
		}
	})

	t.Run("429 body is the JSON envelope", func(t *testing.T) {
		m := NewChiMiddleware(&ChiMiddlewareConfig{})
		h := m.RateLimitCustom(RateLimitConfig{Requests: 1, Window: time.Minute})(okHandler)
		hit(t, h, "10.0.0.3:1000")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
		req.RemoteAddr = "10.0.0.3:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		checkStatus(t, rec, http.StatusTooManyRequests)
		resp := decodeResponse(t, rec)
		if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
			t.Errorf("response = %+v", resp)
		}
	})
}

func TestAPISecurityHeaders(t *testing.T) {
	h := APISecurityHeaders()(okHandler)

	tests := []struct {
		name      string
		forwarded string
		wantHSTS  bool
	}{
		{"plain http", "", false},
		{"behind TLS proxy", "https", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("nosniff missing")
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Error("Cache-Control missing")
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS set = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}
