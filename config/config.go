// Package config loads tanker-go settings from defaults, an optional YAML
// file and TANKER_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override. TANKER_HTTP_MAX_ATTEMPTS
// sets http.max_attempts.
const EnvPrefix = "TANKER_"

// Config is the full configuration surface.
type Config struct {
	AppID          string
	URL            string
	PersistentPath string
	CachePath      string
	SDKType        string
	HTTP           HTTP
	Stream         Stream
	LogLevel       zapcore.Level
}

// HTTP configures the outbound HTTP adapter.
type HTTP struct {
	Enabled        bool
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

// Stream configures encryption streams.
type Stream struct {
	ChunkSize int
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"app_id":               "",
		"url":                  "",
		"persistent_path":      "",
		"cache_path":           "",
		"sdk_type":             "client-go",
		"http.enabled":         true,
		"http.max_attempts":    3,
		"http.attempt_timeout": "30s",
		"http.backoff_base":    "200ms",
		"http.backoff_max":     "5s",
		"stream.chunk_size":    1 << 20,
		"log.level":            "info",
	}
}

// envKeys lists the keys whose names contain underscores, so that
// TANKER_HTTP_MAX_ATTEMPTS can be mapped back to http.max_attempts.
var envKeys = func() map[string]string {
	m := make(map[string]string)
	for k := range defaults() {
		m[strings.ReplaceAll(k, ".", "_")] = k
	}
	return m
}()

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if k, ok := envKeys[s]; ok {
		return k
	}
	return strings.ReplaceAll(s, "_", ".")
}

// Load reads the configuration. An empty path skips the file layer; a
// missing file at a non-empty path is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(k.String("log.level"))); err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", k.String("log.level"), err)
	}

	return &Config{
		AppID:          k.String("app_id"),
		URL:            k.String("url"),
		PersistentPath: k.String("persistent_path"),
		CachePath:      k.String("cache_path"),
		SDKType:        k.String("sdk_type"),
		HTTP: HTTP{
			Enabled:        k.Bool("http.enabled"),
			MaxAttempts:    k.Int("http.max_attempts"),
			AttemptTimeout: k.Duration("http.attempt_timeout"),
			BackoffBase:    k.Duration("http.backoff_base"),
			BackoffMax:     k.Duration("http.backoff_max"),
		},
		Stream:   Stream{ChunkSize: k.Int("stream.chunk_size")},
		LogLevel: level,
	}, nil
}

// Validate reports the first missing or out of range setting.
func (c *Config) Validate() error {
	switch {
	case c.AppID == "":
		return fmt.Errorf("app_id is required")
	case c.PersistentPath == "":
		return fmt.Errorf("persistent_path is required")
	case c.SDKType == "":
		return fmt.Errorf("sdk_type is required")
	case c.HTTP.MaxAttempts < 1:
		return fmt.Errorf("http.max_attempts must be at least 1, got %d", c.HTTP.MaxAttempts)
	case c.HTTP.AttemptTimeout <= 0:
		return fmt.Errorf("http.attempt_timeout must be positive")
	case c.HTTP.BackoffBase <= 0 || c.HTTP.BackoffMax < c.HTTP.BackoffBase:
		return fmt.Errorf("http backoff must satisfy 0 < backoff_base <= backoff_max")
	case c.Stream.ChunkSize <= 0:
		return fmt.Errorf("stream.chunk_size must be positive, got %d", c.Stream.ChunkSize)
	}
	return nil
}
