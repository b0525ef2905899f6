// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

// Package config loads listingsync configuration from defaults, an optional
// YAML file, and environment variables (highest priority) using koanf.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Database   DatabaseConfig   `koanf:"database"`
	Listing    ListingConfig    `koanf:"listing"`
	Sync       SyncConfig       `koanf:"sync"`
	Cache      CacheConfig      `koanf:"cache"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Events     EventsConfig     `koanf:"events"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"` // 0 keeps SSE streams open
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds CORS and rate limiting for the HTTP API.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 means runtime.NumCPU()
}

// ListingConfig configures the external business-listing API client.
type ListingConfig struct {
	AccountsURL     string `koanf:"accounts_url"`
	BusinessInfoURL string `koanf:"business_info_url"`
	ReviewsURL      string `koanf:"reviews_url"`
	PerformanceURL  string `koanf:"performance_url"`
	TokenURL        string `koanf:"token_url"`
	ClientID        string `koanf:"client_id"`
	ClientSecret    string `koanf:"client_secret"`

	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`

	// MaxRateLimitRetries bounds retries of HTTP 429 responses.
	MaxRateLimitRetries int           `koanf:"max_rate_limit_retries"`
	RateLimitBaseDelay  time.Duration `koanf:"rate_limit_base_delay"`
	PageSize            int           `koanf:"page_size"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	MaxConcurrentLocations int           `koanf:"max_concurrent_locations"`
	MaxConcurrentRuns      int           `koanf:"max_concurrent_runs"`
	FetchTimeout           time.Duration `koanf:"fetch_timeout"`
	PersistTimeout         time.Duration `koanf:"persist_timeout"`
	HeartbeatInterval      time.Duration `koanf:"heartbeat_interval"`
	RetryMax               int           `koanf:"retry_max"`
	RetryBaseDelay         time.Duration `koanf:"retry_base_delay"`
	InsightsDays           int           `koanf:"insights_days"`
	KeywordMonths          int           `koanf:"keyword_months"`
	EventBuffer            int           `koanf:"event_buffer"`
	SnapshotLimit          int           `koanf:"snapshot_limit"`
	MaintenanceInterval    time.Duration `koanf:"maintenance_interval"`
}

// CacheConfig sizes the listing response cache.
type CacheConfig struct {
	Capacity int           `koanf:"capacity"`
	TTL      time.Duration `koanf:"ttl"`
}

// CheckpointConfig configures the badger store for resumable runs.
type CheckpointConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Path      string        `koanf:"path"`
	InMemory  bool          `koanf:"in_memory"`
	Retention time.Duration `koanf:"retention"`
}

// EventsConfig configures publication of sync events to the message bus.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Backend string `koanf:"backend"` // gochannel or nats
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic"`

	// EmbeddedNATS starts an in-process JetStream server instead of dialing
	// NATSURL. StoreDir holds its stream data; empty keeps it in a temp dir.
	EmbeddedNATS bool   `koanf:"embedded_nats"`
	StoreDir     string `koanf:"store_dir"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads the configuration. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
