// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by [Load].
const (
	EnvConfigFile = "LORACHAT_CONFIG"
	EnvAPIURL     = "LORACHAT_API_URL"
	EnvLogLevel   = "LORACHAT_LOG_LEVEL"
)

// DefaultAPIURL is the backend address of a stock appliance.
const DefaultAPIURL = "http://localhost:5000"

// Push channel transport names.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Config is the complete client configuration.
type Config struct {
	// APIURL is the backend base URL. REST paths and the push channel
	// endpoint are resolved against it.
	APIURL string `yaml:"api_url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Delivery DeliveryConfig `yaml:"delivery"`
	Stream   StreamConfig   `yaml:"stream"`
	Poll     PollConfig     `yaml:"poll"`
	History  HistoryConfig  `yaml:"history"`
	LoRa     LoRaConfig     `yaml:"lora"`
}

// DeliveryConfig is the retry policy applied to low-priority sends.
type DeliveryConfig struct {
	// MaxRetries is the total number of attempts for a low-priority
	// send, including the first.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is multiplied by the failed attempt number to give
	// the wait before the next attempt.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// StreamConfig configures the push channel.
type StreamConfig struct {
	// Transports lists transports in the order they are tried.
	Transports []string `yaml:"transports"`

	// ReconnectDelay is the wait before the first reconnect attempt.
	// It doubles on each consecutive failure up to ReconnectDelayMax.
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"`

	// ReconnectAttempts bounds consecutive failed reconnects.
	ReconnectAttempts int `yaml:"reconnect_attempts"`
}

// PollConfig sets the background poll intervals.
type PollConfig struct {
	HealthInterval time.Duration `yaml:"health_interval"`
	StatsInterval  time.Duration `yaml:"stats_interval"`
}

// HistoryConfig controls the startup history fetch.
type HistoryConfig struct {
	// Limit is passed to the backend as ?limit=N. Zero lets the
	// backend choose.
	Limit int `yaml:"limit"`
}

// LoRaConfig holds default serial settings for `lora connect`.
type LoRaConfig struct {
	SenderPort   string `yaml:"sender_port"`
	ReceiverPort string `yaml:"receiver_port"`
	Baudrate     int    `yaml:"baudrate"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		APIURL:   DefaultAPIURL,
		LogLevel: "info",
		Delivery: DeliveryConfig{
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
		},
		Stream: StreamConfig{
			Transports:        []string{TransportWebSocket, TransportPolling},
			ReconnectDelay:    time.Second,
			ReconnectDelayMax: 5 * time.Second,
			ReconnectAttempts: 10,
		},
		Poll: PollConfig{
			HealthInterval: 5 * time.Second,
			StatsInterval:  10 * time.Second,
		},
		History: HistoryConfig{
			Limit: 100,
		},
		LoRa: LoRaConfig{
			Baudrate: 9600,
		},
	}
}

// Load builds the configuration from defaults, .env, the file named by
// LORACHAT_CONFIG and environment overrides.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return load(os.Getenv(EnvConfigFile))
}

// LoadFile is like [Load] but reads the given file instead of
// consulting LORACHAT_CONFIG. Environment overrides still apply.
func LoadFile(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New("config: empty config file path")
	}
	return load(path)
}

func load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvironment()
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv populates unset environment variables from path. A
// missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: loading %s: %w", path, err)
}

// loadFile merges a config file into c. JSON and JSONC files are
// stripped of comments and trailing commas, then re-encoded as YAML so
// one set of struct tags serves every format.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		var document map[string]any
		if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
			return fmt.Errorf("config: parsing %s: %w", path, err)
		}
		if data, err = yaml.Marshal(document); err != nil {
			return fmt.Errorf("config: normalizing %s: %w", path, err)
		}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironment() {
	if value := os.Getenv(EnvAPIURL); value != "" {
		c.APIURL = value
	}
	if value := os.Getenv(EnvLogLevel); value != "" {
		c.LogLevel = value
	}
}

func (c *Config) expandVariables() {
	c.APIURL = expandVars(c.APIURL)
	c.LoRa.SenderPort = expandVars(c.LoRa.SenderPort)
	c.LoRa.ReceiverPort = expandVars(c.LoRa.ReceiverPort)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// SlogLevel returns LogLevel as a slog.Level. Unparseable values map
// to info; [Config.Validate] reports them.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if parsed, err := url.Parse(c.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("api_url: %w", err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("api_url must be an http or https URL, got %q", c.APIURL))
	} else if parsed.Host == "" {
		errs = append(errs, fmt.Errorf("api_url has no host: %q", c.APIURL))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}

	if c.Delivery.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("delivery.max_retries must be at least 1, got %d", c.Delivery.MaxRetries))
	}
	if c.Delivery.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("delivery.retry_delay must not be negative"))
	}

	if len(c.Stream.Transports) == 0 {
		errs = append(errs, fmt.Errorf("stream.transports must name at least one transport"))
	}
	known := []string{TransportWebSocket, TransportPolling}
	for _, name := range c.Stream.Transports {
		if !slices.Contains(known, name) {
			errs = append(errs, fmt.Errorf("stream.transports: unknown transport %q (want one of %v)", name, known))
		}
	}
	if c.Stream.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("stream.reconnect_delay must be positive"))
	}
	if c.Stream.ReconnectDelayMax < c.Stream.ReconnectDelay {
		errs = append(errs, fmt.Errorf("stream.reconnect_delay_max (%s) is below reconnect_delay (%s)",
			c.Stream.ReconnectDelayMax, c.Stream.ReconnectDelay))
	}
	if c.Stream.ReconnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("stream.reconnect_attempts must be at least 1"))
	}

	if c.Poll.HealthInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll.health_interval must be positive"))
	}
	if c.Poll.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll.stats_interval must be positive"))
	}

	if c.History.Limit < 0 {
		errs = append(errs, fmt.Errorf("history.limit must not be negative"))
	}
	if c.LoRa.Baudrate <= 0 {
		errs = append(errs, fmt.Errorf("lora.baudrate must be positive"))
	}

	return errors.Join(errs...)
}
