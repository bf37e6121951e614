// Package config defines configuration for the riveload CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/rivekit/rive-runtime-go/fetch"
)

// Config collects every knob the CLI exposes for the loader.
type Config struct {
	WasmURL          string      `yaml:"wasm_url"`
	CacheDir         string      `yaml:"cache_dir"`
	Revalidate       bool        `yaml:"revalidate"`
	MemoryLimitPages uint32      `yaml:"memory_limit_pages"`
	Fetch            FetchConfig `yaml:"fetch"`
	Log              LogConfig   `yaml:"log"`
}

// FetchConfig defines artifact download behavior.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryMaxBackoff time.Duration `yaml:"retry_max_backoff"`
	MaxSize         int64         `yaml:"max_size"`
}

// Options converts the fetch section into client options.
func (c FetchConfig) Options() fetch.Options {
	return fetch.Options{
		Timeout:         c.Timeout,
		RetryAttempts:   c.RetryAttempts,
		RetryBackoff:    c.RetryBackoff,
		RetryMaxBackoff: c.RetryMaxBackoff,
		MaxSize:         c.MaxSize,
	}
}

// LogConfig defines CLI logging behavior.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ZapLevel parses the configured level.
func (c LogConfig) ZapLevel() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.Level)
}

// Default returns a Config with sensible defaults. The fetch section
// mirrors the client's own defaults.
func Default() Config {
	opts := fetch.DefaultOptions()
	return Config{
		Fetch: FetchConfig{
			Timeout:         opts.Timeout,
			RetryAttempts:   opts.RetryAttempts,
			RetryBackoff:    opts.RetryBackoff,
			RetryMaxBackoff: opts.RetryMaxBackoff,
			MaxSize:         opts.MaxSize,
		},
		Log: LogConfig{Level: "info"},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	WasmURL          string          `yaml:"wasm_url"`
	CacheDir         string          `yaml:"cache_dir"`
	Revalidate       bool            `yaml:"revalidate"`
	MemoryLimitPages uint32          `yaml:"memory_limit_pages"`
	Fetch            yamlFetchConfig `yaml:"fetch"`
	Log              LogConfig       `yaml:"log"`
}

type yamlFetchConfig struct {
	Timeout         string `yaml:"timeout"`
	RetryAttempts   *int   `yaml:"retry_attempts"`
	RetryBackoff    string `yaml:"retry_backoff"`
	RetryMaxBackoff string `yaml:"retry_max_backoff"`
	MaxSize         string `yaml:"max_size"`
}

// LoadFromFile loads configuration from a YAML file, filling unset fields
// from the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.WasmURL != "" {
		cfg.WasmURL = yc.WasmURL
	}
	if yc.CacheDir != "" {
		cfg.CacheDir = yc.CacheDir
	}
	cfg.Revalidate = yc.Revalidate
	if yc.MemoryLimitPages != 0 {
		cfg.MemoryLimitPages = yc.MemoryLimitPages
	}
	if yc.Fetch.Timeout != "" {
		d, err := time.ParseDuration(yc.Fetch.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse fetch.timeout: %w", err)
		}
		cfg.Fetch.Timeout = d
	}
	if yc.Fetch.RetryAttempts != nil {
		cfg.Fetch.RetryAttempts = *yc.Fetch.RetryAttempts
	}
	if yc.Fetch.RetryBackoff != "" {
		d, err := time.ParseDuration(yc.Fetch.RetryBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse fetch.retry_backoff: %w", err)
		}
		cfg.Fetch.RetryBackoff = d
	}
	if yc.Fetch.RetryMaxBackoff != "" {
		d, err := time.ParseDuration(yc.Fetch.RetryMaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse fetch.retry_max_backoff: %w", err)
		}
		cfg.Fetch.RetryMaxBackoff = d
	}
	if yc.Fetch.MaxSize != "" {
		size, err := ParseBytes(yc.Fetch.MaxSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse fetch.max_size: %w", err)
		}
		cfg.Fetch.MaxSize = size
	}
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the RIVE_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("RIVE_WASM_URL"); v != "" {
		c.WasmURL = v
	}
	if v := os.Getenv("RIVE_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("RIVE_REVALIDATE"); v != "" {
		c.Revalidate = v == "true" || v == "1"
	}
	if v := os.Getenv("RIVE_MEMORY_LIMIT_PAGES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("parse RIVE_MEMORY_LIMIT_PAGES: %w", err)
		}
		c.MemoryLimitPages = uint32(n)
	}
	if v := os.Getenv("RIVE_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse RIVE_FETCH_TIMEOUT: %w", err)
		}
		c.Fetch.Timeout = d
	}
	if v := os.Getenv("RIVE_FETCH_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RIVE_FETCH_RETRY_ATTEMPTS: %w", err)
		}
		c.Fetch.RetryAttempts = n
	}
	if v := os.Getenv("RIVE_FETCH_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse RIVE_FETCH_RETRY_BACKOFF: %w", err)
		}
		c.Fetch.RetryBackoff = d
	}
	if v := os.Getenv("RIVE_FETCH_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse RIVE_FETCH_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Fetch.RetryMaxBackoff = d
	}
	if v := os.Getenv("RIVE_FETCH_MAX_SIZE"); v != "" {
		size, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse RIVE_FETCH_MAX_SIZE: %w", err)
		}
		c.Fetch.MaxSize = size
	}
	if v := os.Getenv("RIVE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.WasmURL != "" {
		u, err := url.Parse(c.WasmURL)
		if err != nil {
			return fmt.Errorf("config: wasm_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("config: wasm_url must be http or https, got %q", c.WasmURL)
		}
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("config: fetch.timeout must be positive")
	}
	if c.Fetch.RetryAttempts < 0 {
		return errors.New("config: fetch.retry_attempts must not be negative")
	}
	if c.Fetch.RetryBackoff <= 0 {
		return errors.New("config: fetch.retry_backoff must be positive")
	}
	if c.Fetch.MaxSize <= 0 {
		return errors.New("config: fetch.max_size must be positive")
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// ParseBytes parses a human-readable byte string (e.g., "64MB").
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	switch {
	case hasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "KB"):
		multiplier = 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "B"):
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}
	return int64(value * float64(multiplier)), nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
