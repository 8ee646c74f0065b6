package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// ConfigFileEnv points at an optional YAML file.
	ConfigFileEnv = "PIPELINE_CONFIG"
	// DotEnvFileEnv overrides the .env location.
	DotEnvFileEnv = "PIPELINE_DOTENV"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. YAML file named by PIPELINE_CONFIG, with ${VAR:default} placeholders expanded
//  3. environment variables (a .env file is loaded first but never overrides real env)
//
// Load does not validate; callers apply flag overrides and then call Validate.
func Load(ctx context.Context) (*Config, error) {
	dotenv := os.Getenv(DotEnvFileEnv)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: loading %s: %v", ErrLoadConfig, dotenv, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(ConfigFileEnv); path != "" {
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrLoadConfig, path, err)
		}
		for _, key := range fk.Keys() {
			if s, ok := fk.Get(key).(string); ok {
				if err := fk.Set(key, ExpandPlaceholders(s)); err != nil {
					return nil, fmt.Errorf("%w: expanding %s: %v", ErrLoadConfig, key, err)
				}
			}
		}
		if err := k.Merge(fk); err != nil {
			return nil, fmt.Errorf("%w: merging file: %v", ErrLoadConfig, err)
		}
	}

	known := knownKeys()
	envProvider := env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if !known[key] {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: reading env: %v", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	return &cfg, nil
}

// ExpandPlaceholders replaces ${VAR} and ${VAR:default} with environment
// values. Unset or empty variables take the default (or "").
func ExpandPlaceholders(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholderPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[2]
	})
}

func knownKeys() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("koanf"); tag != "" {
			keys[tag] = true
		}
	}
	return keys
}
