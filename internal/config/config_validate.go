// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateSecurity,
		c.validateDatabase,
		c.validateListing,
		c.validateSync,
		c.validateCache,
		c.validateCheckpoint,
		c.validateEvents,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateListing() error {
	urls := map[string]string{
		"LISTING_ACCOUNTS_URL": c.Listing.AccountsURL,
		"LISTING_INFO_URL":     c.Listing.BusinessInfoURL,
		"LISTING_REVIEWS_URL":  c.Listing.ReviewsURL,
		"LISTING_PERF_URL":     c.Listing.PerformanceURL,
		"LISTING_TOKEN_URL":    c.Listing.TokenURL,
	}
	for name, raw := range urls {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
	}
	if c.Listing.Timeout <= 0 {
		return fmt.Errorf("LISTING_TIMEOUT must be positive")
	}
	if c.Listing.RequestsPerSecond <= 0 {
		return fmt.Errorf("LISTING_RPS must be positive")
	}
	if c.Listing.Burst < 1 {
		return fmt.Errorf("LISTING_BURST must be at least 1")
	}
	if c.Listing.MaxRateLimitRetries < 0 {
		return fmt.Errorf("LISTING_429_RETRIES must not be negative")
	}
	if c.Listing.PageSize < 1 || c.Listing.PageSize > 1000 {
		return fmt.Errorf("LISTING_PAGE_SIZE must be between 1 and 1000")
	}
	return nil
}

func (c *Config) validateSync() error {
	s := c.Sync
	switch {
	case s.MaxConcurrentLocations < 1 || s.MaxConcurrentLocations > 50:
		return fmt.Errorf("SYNC_MAX_LOCATIONS must be between 1 and 50, got %d", s.MaxConcurrentLocations)
	case s.MaxConcurrentRuns < 1:
		return fmt.Errorf("SYNC_MAX_RUNS must be at least 1")
	case s.FetchTimeout <= 0 || s.PersistTimeout <= 0:
		return fmt.Errorf("sync fetch and persist timeouts must be positive")
	case s.HeartbeatInterval <= 0:
		return fmt.Errorf("SYNC_HEARTBEAT must be positive")
	case s.RetryMax < 0 || s.RetryMax > 10:
		return fmt.Errorf("SYNC_RETRY_MAX must be between 0 and 10")
	case s.RetryBaseDelay < 0:
		return fmt.Errorf("SYNC_RETRY_BASE_DELAY must not be negative")
	case s.InsightsDays < 1 || s.InsightsDays > 540:
		return fmt.Errorf("SYNC_INSIGHTS_DAYS must be between 1 and 540")
	case s.KeywordMonths < 1 || s.KeywordMonths > 18:
		return fmt.Errorf("SYNC_KEYWORD_MONTHS must be between 1 and 18")
	case s.EventBuffer < 1:
		return fmt.Errorf("SYNC_EVENT_BUFFER must be at least 1")
	case s.SnapshotLimit < 0:
		return fmt.Errorf("SYNC_SNAPSHOT_LIMIT must not be negative")
	case s.MaintenanceInterval <= 0:
		return fmt.Errorf("SYNC_MAINTENANCE must be positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be at least 1")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	if !c.Checkpoint.Enabled {
		return nil
	}
	if !c.Checkpoint.InMemory && c.Checkpoint.Path == "" {
		return fmt.Errorf("CHECKPOINT_PATH is required unless CHECKPOINT_IN_MEMORY=true")
	}
	if c.Checkpoint.Retention <= 0 {
		return fmt.Errorf("CHECKPOINT_RETENTION must be positive")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	switch c.Events.Backend {
	case "gochannel":
	case "nats":
		if c.Events.EmbeddedNATS {
			break
		}
		if !strings.HasPrefix(c.Events.NATSURL, "nats://") && !strings.HasPrefix(c.Events.NATSURL, "tls://") {
			return fmt.Errorf("NATS_URL must use nats:// or tls://, got %q", c.Events.NATSURL)
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be gochannel or nats, got %q", c.Events.Backend)
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC is required when events are enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
