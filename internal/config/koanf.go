// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/listingsync/config.yaml",
	"/etc/listingsync/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/listingsync.duckdb",
			MaxMemory: "1GB",
		},
		Listing: ListingConfig{
			AccountsURL:         "https://mybusinessaccountmanagement.googleapis.com",
			BusinessInfoURL:     "https://mybusinessbusinessinformation.googleapis.com",
			ReviewsURL:          "https://mybusiness.googleapis.com",
			PerformanceURL:      "https://businessprofileperformance.googleapis.com",
			TokenURL:            "https://oauth2.googleapis.com/token",
			Timeout:             30 * time.Second,
			RequestsPerSecond:   5,
			Burst:               5,
			MaxRateLimitRetries: 5,
			RateLimitBaseDelay:  time.Second,
			PageSize:            100,
		},
		Sync: SyncConfig{
			MaxConcurrentLocations: 5,
			MaxConcurrentRuns:      2,
			FetchTimeout:           2 * time.Minute,
			PersistTimeout:         2 * time.Minute,
			HeartbeatInterval:      15 * time.Second,
			RetryMax:               3,
			RetryBaseDelay:         time.Second,
			InsightsDays:           30,
			KeywordMonths:          3,
			EventBuffer:            256,
			SnapshotLimit:          500,
			MaintenanceInterval:    10 * time.Minute,
		},
		Cache: CacheConfig{
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		Checkpoint: CheckpointConfig{
			Enabled:   true,
			Path:      "/data/checkpoints",
			Retention: 7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Enabled: true,
			Backend: "gochannel",
			NATSURL: "nats://127.0.0.1:4222",
			Topic:   "listingsync.sync.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration in three layers: struct defaults, an
// optional YAML file, then environment variables.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps accepted environment variables onto koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"http_host":              "server.host",
	"http_port":              "server.port",
	"http_read_timeout":      "server.read_timeout",
	"http_write_timeout":     "server.write_timeout",
	"http_shutdown_timeout":  "server.shutdown_timeout",
	"cors_origins":           "security.cors_origins",
	"rate_limit_requests":    "security.rate_limit_reqs",
	"rate_limit_window":      "security.rate_limit_window",
	"disable_rate_limit":     "security.rate_limit_disabled",
	"duckdb_path":            "database.path",
	"duckdb_max_memory":      "database.max_memory",
	"duckdb_threads":         "database.threads",
	"listing_accounts_url":   "listing.accounts_url",
	"listing_info_url":       "listing.business_info_url",
	"listing_reviews_url":    "listing.reviews_url",
	"listing_perf_url":       "listing.performance_url",
	"listing_token_url":      "listing.token_url",
	"listing_client_id":      "listing.client_id",
	"listing_client_secret":  "listing.client_secret",
	"listing_timeout":        "listing.timeout",
	"listing_rps":            "listing.requests_per_second",
	"listing_burst":          "listing.burst",
	"listing_page_size":      "listing.page_size",
	"listing_429_retries":    "listing.max_rate_limit_retries",
	"sync_max_locations":     "sync.max_concurrent_locations",
	"sync_max_runs":          "sync.max_concurrent_runs",
	"sync_fetch_timeout":     "sync.fetch_timeout",
	"sync_persist_timeout":   "sync.persist_timeout",
	"sync_heartbeat":         "sync.heartbeat_interval",
	"sync_retry_max":         "sync.retry_max",
	"sync_retry_base_delay":  "sync.retry_base_delay",
	"sync_insights_days":     "sync.insights_days",
	"sync_keyword_months":    "sync.keyword_months",
	"sync_event_buffer":      "sync.event_buffer",
	"sync_snapshot_limit":    "sync.snapshot_limit",
	"sync_maintenance":       "sync.maintenance_interval",
	"cache_capacity":         "cache.capacity",
	"cache_ttl":              "cache.ttl",
	"checkpoint_enabled":     "checkpoint.enabled",
	"checkpoint_path":        "checkpoint.path",
	"checkpoint_in_memory":   "checkpoint.in_memory",
	"checkpoint_retention":   "checkpoint.retention",
	"events_enabled":         "events.enabled",
	"events_backend":         "events.backend",
	"nats_url":               "events.nats_url",
	"events_topic":           "events.topic",
	"nats_embedded":          "events.embedded_nats",
	"nats_store_dir":         "events.store_dir",
	"log_level":              "logging.level",
	"log_format":             "logging.format",
	"log_caller":             "logging.caller",
}

// envTransformFunc maps e.g. SYNC_MAX_LOCATIONS to sync.max_concurrent_locations.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
