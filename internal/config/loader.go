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

// Environment variable names and prefixes.
const (
	EnvPrefix     = "ROSTER_"
	EnvConfigFile = "ROSTER_CONFIG"
	legacyPrefix  = "WEBHOOK_"
)

// legacyKeys maps the unprefixed variables older deployments set onto config keys.
var legacyKeys = map[string]string{
	"WEBHOOK_TIMEOUT": "webhook_timeout_ms",
	"WEBHOOK_TOKEN":   "webhook_token",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ROSTER_CONFIG is set
//  3. legacy WEBHOOK_TIMEOUT / WEBHOOK_TOKEN
//  4. env (prefix ROSTER_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	legacy := env.Provider(legacyPrefix, ".", func(s string) string {
		// Unknown WEBHOOK_* variables map to "" and are dropped by koanf.
		return legacyKeys[s]
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// ROSTER_WEBHOOK_TIMEOUT_MS -> webhook_timeout_ms (flat keys, underscores kept).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		if s == "config" {
			return ""
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.DBPath) == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.WebhookTimeoutMS <= 0:
		return fmt.Errorf("%w: webhook_timeout_ms must be positive", ErrInvalidConfig)
	case c.WebhookMaxConcurrency < 0:
		return fmt.Errorf("%w: webhook_max_concurrency must not be negative", ErrInvalidConfig)
	case c.WebhookSigningSecret != "" && c.WebhookTokenTTLS <= 0:
		return fmt.Errorf("%w: webhook_token_ttl_s must be positive when signing", ErrInvalidConfig)
	}
	return nil
}
