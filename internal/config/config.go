// Package config loads runtime configuration from SHARDTRACE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "shardtrace"

// Tracer backends.
const (
	BackendNative = "native"
	BackendOTel   = "otel"
	BackendNoop   = "noop"
)

// OTLP transport protocols.
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// Samplers for the otel backend.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all runtime configuration.
type Config struct {
	Tracer    TracerConfig
	OTLP      OTLPConfig
	Collector CollectorConfig
	Bus       BusConfig
	Logging   LogConfig
	Metrics   MetricsConfig
}

// TracerConfig selects and tunes the tracer backend.
type TracerConfig struct {
	Backend      string  `envconfig:"BACKEND" default:"native"`
	ServiceName  string  `envconfig:"SERVICE_NAME" default:"shardtrace"`
	Sampler      string  `envconfig:"SAMPLER" default:"always"`
	SamplerRatio float64 `envconfig:"SAMPLER_RATIO" default:"1"`
}

// OTLPConfig configures the OTLP exporter of the otel backend.
type OTLPConfig struct {
	Protocol string        `envconfig:"PROTOCOL" default:"http"`
	Endpoint string        `envconfig:"ENDPOINT" default:"localhost:4318"`
	Insecure bool          `envconfig:"INSECURE" default:"true"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// CollectorConfig configures the span collector of the native backend.
type CollectorConfig struct {
	BufferSize int `envconfig:"BUFFER_SIZE" default:"1000"`
}

// BusConfig configures asynchronous event delivery. Zero workers keeps
// delivery on the posting goroutine.
type BusConfig struct {
	Workers   int `envconfig:"WORKERS" default:"0"`
	QueueSize int `envconfig:"QUEUE_SIZE" default:"1024"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// MetricsConfig holds prometheus configuration.
type MetricsConfig struct {
	Namespace string `envconfig:"NAMESPACE" default:"shardtrace"`
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Tracer: TracerConfig{
			Backend:      BackendNative,
			ServiceName:  "shardtrace",
			Sampler:      SamplerAlways,
			SamplerRatio: 1,
		},
		OTLP: OTLPConfig{
			Protocol: ProtocolHTTP,
			Endpoint: "localhost:4318",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
		Collector: CollectorConfig{
			BufferSize: 1000,
		},
		Bus: BusConfig{
			QueueSize: 1024,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Namespace: "shardtrace",
		},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Tracer.Backend {
	case BackendNative, BackendOTel, BackendNoop:
	default:
		return fmt.Errorf("%w: tracer backend %q", ErrInvalid, c.Tracer.Backend)
	}
	switch c.Tracer.Sampler {
	case SamplerAlways, SamplerNever, SamplerRatio:
	default:
		return fmt.Errorf("%w: sampler %q", ErrInvalid, c.Tracer.Sampler)
	}
	if c.Tracer.SamplerRatio < 0 || c.Tracer.SamplerRatio > 1 {
		return fmt.Errorf("%w: sampler ratio %v outside [0,1]", ErrInvalid, c.Tracer.SamplerRatio)
	}
	switch c.OTLP.Protocol {
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return fmt.Errorf("%w: otlp protocol %q", ErrInvalid, c.OTLP.Protocol)
	}
	if c.Collector.BufferSize <= 0 {
		return fmt.Errorf("%w: collector buffer size %d", ErrInvalid, c.Collector.BufferSize)
	}
	if c.Bus.Workers < 0 {
		return fmt.Errorf("%w: bus workers %d", ErrInvalid, c.Bus.Workers)
	}
	if c.Bus.Workers > 0 && c.Bus.QueueSize <= 0 {
		return fmt.Errorf("%w: bus queue size %d", ErrInvalid, c.Bus.QueueSize)
	}
	return nil
}
