package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if FIELDWORK_CONFIG is set
//  3. env (prefix FIELDWORK_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("FIELDWORK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: FIELDWORK_ADDR, FIELDWORK_QUEUE_SIZE, ...
	// Map env keys like FIELDWORK_QUEUE_SIZE -> queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("FIELDWORK_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "fieldwork_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case StoreDriverMemory, StoreDriverSQLite:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.StoreDriver == StoreDriverSQLite && c.SQLitePath == "" {
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	}
	if c.ExtractionLatencyMinMS < 0 || c.ExtractionLatencyMaxMS < c.ExtractionLatencyMinMS {
		return fmt.Errorf("%w: extraction latency bounds are inverted", ErrInvalidConfig)
	}
	return nil
}

// RoleTokens maps the configured bearer tokens to their role names. Empty
// tokens are omitted.
func (c *Config) RoleTokens() map[string]string {
	tokens := make(map[string]string, 4)
	add := func(token, role string) {
		if token != "" {
			tokens[token] = role
		}
	}
	add(c.ParticipantToken, "participant")
	add(c.ResearcherToken, "researcher")
	add(c.WebhookToken, "webhook")
	add(c.WorkerToken, "worker")
	return tokens
}
