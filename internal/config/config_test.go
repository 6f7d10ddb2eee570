package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHARDTRACE_TRACER_BACKEND", "otel")
	t.Setenv("SHARDTRACE_TRACER_SERVICE_NAME", "orders")
	t.Setenv("SHARDTRACE_TRACER_SAMPLER", "ratio")
	t.Setenv("SHARDTRACE_TRACER_SAMPLER_RATIO", "0.25")
	t.Setenv("SHARDTRACE_OTLP_PROTOCOL", "grpc")
	t.Setenv("SHARDTRACE_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("SHARDTRACE_OTLP_INSECURE", "false")
	t.Setenv("SHARDTRACE_OTLP_TIMEOUT", "3s")
	t.Setenv("SHARDTRACE_BUS_WORKERS", "4")
	t.Setenv("SHARDTRACE_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendOTel, cfg.Tracer.Backend)
	assert.Equal(t, "orders", cfg.Tracer.ServiceName)
	assert.Equal(t, SamplerRatio, cfg.Tracer.Sampler)
	assert.InDelta(t, 0.25, cfg.Tracer.SamplerRatio, 1e-9)
	assert.Equal(t, ProtocolGRPC, cfg.OTLP.Protocol)
	assert.Equal(t, "collector:4317", cfg.OTLP.Endpoint)
	assert.False(t, cfg.OTLP.Insecure)
	assert.Equal(t, 3*time.Second, cfg.OTLP.Timeout)
	assert.Equal(t, 4, cfg.Bus.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("SHARDTRACE_TRACER_BACKEND", "zipkin")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, Default(), LoadOrDefault())
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("SHARDTRACE_BUS_WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sampler", func(c *Config) { c.Tracer.Sampler = "sometimes" }},
		{"ratio above one", func(c *Config) { c.Tracer.SamplerRatio = 1.5 }},
		{"negative ratio", func(c *Config) { c.Tracer.SamplerRatio = -0.1 }},
		{"protocol", func(c *Config) { c.OTLP.Protocol = "udp" }},
		{"collector buffer", func(c *Config) { c.Collector.BufferSize = 0 }},
		{"negative workers", func(c *Config) { c.Bus.Workers = -1 }},
		{"queue without capacity", func(c *Config) {
			c.Bus.Workers = 2
			c.Bus.QueueSize = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}
