// Package config defines the prepdash service configuration.
//
// The configuration is organized into sections:
//   - Server: HTTP listener, timeouts and upload limits
//   - Store: session store backend and session expiry
//   - Sources: default working and baseline datasets and object store access
//   - Pipeline: step defaults such as the split seed
//   - Export: default export format, compression and destination
//   - Logging and Tracing: observability
//
// Files are YAML; ${VAR_NAME} references are replaced with environment
// values before parsing.
//
//	cfg := config.DefaultConfig()
//	if err := config.Load("prepdash.yaml", cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/prepdash/pkg/compression"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/export"
	"github.com/ajitpratap0/prepdash/pkg/logger"
	"github.com/ajitpratap0/prepdash/pkg/storage"
	"github.com/ajitpratap0/prepdash/pkg/store"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server" mapstructure:"server"`
	Store    StoreConfig    `yaml:"store" json:"store" mapstructure:"store"`
	Sources  SourcesConfig  `yaml:"sources" json:"sources" mapstructure:"sources"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline" mapstructure:"pipeline"`
	Export   ExportConfig   `yaml:"export" json:"export" mapstructure:"export"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging" mapstructure:"logging"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr"`
	// ReadTimeout bounds reading a request, including uploads
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	// WriteTimeout bounds writing a response, including exports
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
	// ShutdownTimeout is the grace period for in-flight requests
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// MaxUploadBytes caps the size of an uploaded file
	MaxUploadBytes int64 `yaml:"max_upload_bytes" json:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	// EnableMetrics exposes /metrics
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
}

// StoreConfig selects where session datasets live.
type StoreConfig struct {
	// Backend is memory or redis
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	// SessionTTL is how long an idle session is kept
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl" mapstructure:"session_ttl"`
	// SweepInterval is how often idle sessions are collected
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval" mapstructure:"sweep_interval"`
	Redis         store.RedisConfig `yaml:"redis" json:"redis" mapstructure:"redis"`
}

// SourcesConfig names the datasets a new session starts from.
type SourcesConfig struct {
	// Working is loaded into the working dataset of every new session
	Working string `yaml:"working" json:"working" mapstructure:"working"`
	// Baseline is the analysis dataset; empty means a copy of Working
	Baseline string `yaml:"baseline" json:"baseline" mapstructure:"baseline"`
	// MaxRows caps rows read from databases; 0 means no cap
	MaxRows int            `yaml:"max_rows" json:"max_rows" mapstructure:"max_rows"`
	Storage storage.Config `yaml:"storage" json:"storage" mapstructure:"storage"`
}

// PipelineConfig holds step defaults.
type PipelineConfig struct {
	// Seed drives the train/test split shuffle
	Seed uint64 `yaml:"seed" json:"seed" mapstructure:"seed"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Format      string `yaml:"format" json:"format" mapstructure:"format"`
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	// Destination is where the CLI writes exports; a trailing / names a
	// directory or object store prefix
	Destination string `yaml:"destination" json:"destination" mapstructure:"destination"`
}

// LoggingConfig configures the global zap logger.
type LoggingConfig struct {
	Level       string   `yaml:"level" json:"level" mapstructure:"level"`
	Encoding    string   `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
	Development bool     `yaml:"development" json:"development" mapstructure:"development"`
	OutputPaths []string `yaml:"output_paths" json:"output_paths" mapstructure:"output_paths"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`
}

// DefaultConfig returns a configuration that runs a single-node server with
// the in-memory store.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8050",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  100 << 20,
			EnableMetrics:   true,
		},
		Store: StoreConfig{
			Backend:       BackendMemory,
			SessionTTL:    2 * time.Hour,
			SweepInterval: time.Minute,
			Redis: store.RedisConfig{
				Addr:        "localhost:6379",
				KeyPrefix:   "prepdash:dataset:",
				TTL:         2 * time.Hour,
				Compression: compression.Zstd,
			},
		},
		Sources: SourcesConfig{
			Storage: storage.Config{S3PartSize: 8 << 20},
		},
		Pipeline: PipelineConfig{Seed: 42},
		Export: ExportConfig{
			Format:      string(export.CSV),
			Compression: string(compression.None),
			Destination: "./",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout"},
		},
		Tracing: TracingConfig{
			ServiceName: "prepdash",
			SampleRate:  1.0,
		},
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeConfig, format, args...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return invalid("server.max_upload_bytes must be positive")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return invalid("store.redis.addr is required for the redis backend")
		}
		if _, err := compression.ParseAlgorithm(string(c.Store.Redis.Compression)); err != nil {
			return invalid("store.redis.compression: %v", err)
		}
	default:
		return invalid("store.backend must be %s or %s, got %q", BackendMemory, BackendRedis, c.Store.Backend)
	}
	if c.Store.SessionTTL <= 0 {
		return invalid("store.session_ttl must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		return invalid("store.sweep_interval must be positive")
	}
	if c.Sources.MaxRows < 0 {
		return invalid("sources.max_rows cannot be negative")
	}
	if _, err := c.ExportOptions(); err != nil {
		return invalid("export: %v", err)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level: %v", err)
	}
	if c.Logging.Encoding != "json" && c.Logging.Encoding != "console" {
		return invalid("logging.encoding must be json or console, got %q", c.Logging.Encoding)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return invalid("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// ExportOptions resolves the export defaults.
func (c *Config) ExportOptions() (export.Options, error) {
	f, err := export.ParseFormat(c.Export.Format)
	if err != nil {
		return export.Options{}, err
	}
	alg, err := compression.ParseAlgorithm(c.Export.Compression)
	if err != nil {
		return export.Options{}, err
	}
	return export.Options{Format: f, Compression: alg, Level: compression.Default}, nil
}

// Logger converts the logging section for logger.Init.
func (l LoggingConfig) Logger() logger.Config {
	return logger.Config{
		Level:       l.Level,
		Development: l.Development,
		Encoding:    l.Encoding,
		OutputPaths: l.OutputPaths,
	}
}

// BaselineSource returns the baseline source, falling back to the working
// source.
func (s SourcesConfig) BaselineSource() string {
	if s.Baseline != "" {
		return s.Baseline
	}
	return s.Working
}
