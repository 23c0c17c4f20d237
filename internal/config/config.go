// Package config loads and validates the service configuration from YAML
// with environment variable overrides, and hot-reloads it in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment names accepted by the service.
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

// Config is the full service configuration. YAML keys are the contract;
// every key can be overridden by its UPPER_SNAKE environment variable.
type Config struct {
	Environment string `yaml:"environment" validate:"oneof=development staging production"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port" validate:"min=1,max=65535"`
	LogLevel    string `yaml:"logLevel" validate:"oneof=debug info warn error"`

	// Graph engine.
	HubThresholdH int `yaml:"hubThresholdH" validate:"min=1"`

	// CDC pipeline.
	JournalRetentionEvents int    `yaml:"journalRetentionEvents" validate:"min=1"`
	RedisURL               string `yaml:"redisUrl"`
	ArchivePath            string `yaml:"archivePath"`

	// Broadcast and sessions.
	SubscriberQueueCapacity int `yaml:"subscriberQueueCapacity" validate:"min=1"`
	HeartbeatSeconds        int `yaml:"heartbeatSeconds" validate:"min=1"`
	IdleTimeoutSeconds      int `yaml:"idleTimeoutSeconds" validate:"min=1"`
	DrainDeadlineSeconds    int `yaml:"drainDeadlineSeconds" validate:"min=1"`
	WriteDeadlineSeconds    int `yaml:"writeDeadlineSeconds" validate:"min=1"`

	// Ingestion.
	BatchDeadlineSeconds int      `yaml:"batchDeadlineSeconds" validate:"min=1"`
	ProgressRateLimitMs  int      `yaml:"progressRateLimitMs" validate:"min=1"`
	WorkspaceRoot        string   `yaml:"workspaceRoot"`
	IgnorePatterns       []string `yaml:"ignorePatterns"`
	AnalyzerCommand      []string `yaml:"analyzerCommand"`
	AnalyzeOnStart       bool     `yaml:"analyzeOnStart"`
	WatchEnabled         bool     `yaml:"watchEnabled"`
	WatchDebounceMs      int      `yaml:"watchDebounceMs" validate:"min=1"`

	// Observability.
	TracingEnabled  bool   `yaml:"tracingEnabled"`
	TracingEndpoint string `yaml:"tracingEndpoint"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Environment:             Development,
		Host:                    "0.0.0.0",
		Port:                    8080,
		LogLevel:                "info",
		HubThresholdH:           10,
		JournalRetentionEvents:  100000,
		SubscriberQueueCapacity: 1024,
		HeartbeatSeconds:        30,
		IdleTimeoutSeconds:      60,
		DrainDeadlineSeconds:    5,
		WriteDeadlineSeconds:    5,
		BatchDeadlineSeconds:    300,
		ProgressRateLimitMs:     100,
		WorkspaceRoot:           ".",
		IgnorePatterns:          []string{"node_modules", ".git", "vendor", "dist"},
		WatchDebounceMs:         2000,
	}
}

// Load reads the YAML file at path (optional), applies environment
// overrides, and validates. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Heartbeat returns the heartbeat interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// IdleTimeout returns the session idle close deadline.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// DrainDeadline returns how long a draining subscriber may flush.
func (c *Config) DrainDeadline() time.Duration {
	return time.Duration(c.DrainDeadlineSeconds) * time.Second
}

// WriteDeadline returns the per-frame write deadline.
func (c *Config) WriteDeadline() time.Duration {
	return time.Duration(c.WriteDeadlineSeconds) * time.Second
}

// BatchDeadline returns the ingestion batch deadline.
func (c *Config) BatchDeadline() time.Duration {
	return time.Duration(c.BatchDeadlineSeconds) * time.Second
}

// ProgressInterval returns the analysis_progress rate limit.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressRateLimitMs) * time.Millisecond
}

// WatchDebounce returns the workspace watcher settle window.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMs) * time.Millisecond
}

// ListenAddr returns host:port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// applyEnv overrides fields from UPPER_SNAKE environment variables. List
// values are comma-separated.
func (c *Config) applyEnv() {
	envString(&c.Environment, "ENVIRONMENT")
	envString(&c.Host, "HOST")
	envInt(&c.Port, "PORT")
	envString(&c.LogLevel, "LOG_LEVEL")
	envInt(&c.HubThresholdH, "HUB_THRESHOLD_H")
	envInt(&c.JournalRetentionEvents, "JOURNAL_RETENTION_EVENTS")
	envString(&c.RedisURL, "REDIS_URL")
	envString(&c.ArchivePath, "ARCHIVE_PATH")
	envInt(&c.SubscriberQueueCapacity, "SUBSCRIBER_QUEUE_CAPACITY")
	envInt(&c.HeartbeatSeconds, "HEARTBEAT_SECONDS")
	envInt(&c.IdleTimeoutSeconds, "IDLE_TIMEOUT_SECONDS")
	envInt(&c.DrainDeadlineSeconds, "DRAIN_DEADLINE_SECONDS")
	envInt(&c.WriteDeadlineSeconds, "WRITE_DEADLINE_SECONDS")
	envInt(&c.BatchDeadlineSeconds, "BATCH_DEADLINE_SECONDS")
	envInt(&c.ProgressRateLimitMs, "PROGRESS_RATE_LIMIT_MS")
	envString(&c.WorkspaceRoot, "WORKSPACE_ROOT")
	envList(&c.IgnorePatterns, "IGNORE_PATTERNS")
	envList(&c.AnalyzerCommand, "ANALYZER_COMMAND")
	envBool(&c.AnalyzeOnStart, "ANALYZE_ON_START")
	envBool(&c.WatchEnabled, "WATCH_ENABLED")
	envInt(&c.WatchDebounceMs, "WATCH_DEBOUNCE_MS")
	envBool(&c.TracingEnabled, "TRACING_ENABLED")
	envString(&c.TracingEndpoint, "TRACING_ENDPOINT")
	envList(&c.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
