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

// Environment prefix and the variable naming an optional YAML file.
const (
	EnvPrefix  = "RANKING_"
	EnvCfgFile = EnvPrefix + "CONFIG"
)

// LoadOption adjusts how Load finds its sources.
type LoadOption func(*loadOptions)

type loadOptions struct {
	file string
}

// WithFile reads path instead of the file named by RANKING_CONFIG.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) {
		if path != "" {
			o.file = path
		}
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) from WithFile, or RANKING_CONFIG if set
//  3. env (prefix RANKING_)
func Load(_ context.Context, opts ...LoadOption) (*Config, error) {
	o := loadOptions{file: os.Getenv(EnvCfgFile)}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := New()
	k := koanf.New(".")

	if path := o.file; path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RANKING_QUEUE_SIZE -> queue_size; underscores are kept to match the
	// flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// the file path itself is not a setting
	k.Delete("config")

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
