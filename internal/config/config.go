// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Store driver names accepted by StoreDriver.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the persistence backend: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath locates the database file when StoreDriver is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// InsightQueueSize bounds the in-memory insight job queue.
	InsightQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of insight extraction workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the webhook delivery-ID cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxPageLimit caps list endpoints' ?limit parameter.
	MaxPageLimit int `koanf:"max_page_limit"`

	// ExtractionLatencyMinMS and ExtractionLatencyMaxMS simulate external
	// LLM latency bounds.
	ExtractionLatencyMinMS int `koanf:"extraction_latency_min_ms"`
	ExtractionLatencyMaxMS int `koanf:"extraction_latency_max_ms"`

	// Bearer tokens assigned to each caller role. An empty token disables
	// that role.
	ParticipantToken string `koanf:"participant_token"`
	ResearcherToken  string `koanf:"researcher_token"`
	WebhookToken     string `koanf:"webhook_token"`
	WorkerToken      string `koanf:"worker_token"`
}

// New creates a Config using defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and currently
// unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		StoreDriver:            StoreDriverMemory,
		SQLitePath:             "fieldwork.db",
		InsightQueueSize:       100_000,
		WorkerCount:            runtime.NumCPU() * 4,
		DedupeSize:             500_000,
		MaxPageLimit:           100,
		ExtractionLatencyMinMS: 80,
		ExtractionLatencyMaxMS: 150,
		ParticipantToken:       "participant-token",
		ResearcherToken:        "researcher-token",
		WebhookToken:           "webhook-token",
		WorkerToken:            "worker-token",
	}
}
