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
//  2. file (YAML) if RANKBOT_CONFIG is set
//  3. env (prefix RANKBOT_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("RANKBOT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: RANKBOT_DATA_DIR, RANKBOT_XP_MIN, ...
	// Map env keys like RANKBOT_XP_MIN -> xp_min (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("RANKBOT_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "rankbot_")
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

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	}
	if c.XPMin <= 0 || c.XPMax < c.XPMin {
		return fmt.Errorf("%w: xp range [%d, %d]", ErrInvalidConfig, c.XPMin, c.XPMax)
	}
	if c.BulkXPMin <= 0 || c.BulkXPMax < c.BulkXPMin {
		return fmt.Errorf("%w: bulk xp range [%d, %d]", ErrInvalidConfig, c.BulkXPMin, c.BulkXPMax)
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("%w: cooldown_seconds must not be negative", ErrInvalidConfig)
	}
	if c.MigrationBatchSize <= 0 {
		return fmt.Errorf("%w: migration_batch_size must be positive", ErrInvalidConfig)
	}
	if c.UseDataRepo && c.DataRepoURL == "" {
		return fmt.Errorf("%w: use_data_repo requires data_repo_url", ErrInvalidConfig)
	}
	return nil
}
