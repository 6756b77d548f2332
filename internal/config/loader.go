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

const (
	envPrefix     = "CADENCE_"
	envConfigPath = "CADENCE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CADENCE_CONFIG is set
//  3. env (prefix CADENCE_)
//
// Pools and scenarios given in the file replace the defaults wholesale.
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	path := os.Getenv(envConfigPath)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// CADENCE_TICK_HZ -> tick_hz. Keys are flat so underscores are kept.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The path variable is not a config key.
	k.Delete("config")

	cfg := *base
	if k.Exists("pools") {
		cfg.Pools = nil
	}
	if k.Exists("scenarios") {
		cfg.Scenarios = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
