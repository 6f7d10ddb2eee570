package bootstrap

import (
	"context"
	"errors"
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"
	"go.opentelemetry.io/otel"
	otbridge "go.opentelemetry.io/otel/bridge/opentracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/internal/config"
)

// ErrUnknownBackend is returned for an unsupported tracer backend.
var ErrUnknownBackend = errors.New("unknown tracer backend")

// instrumentationName names the OpenTelemetry tracer behind the bridge.
const instrumentationName = "github.com/zoobzio/shardtrace"

// backend is a started tracer together with its teardown.
type backend struct {
	tracer    opentracing.Tracer
	collector *shardtrace.Collector
	shutdown  func(context.Context) error
}

func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger, o *options) (*backend, error) {
	switch cfg.Tracer.Backend {
	case config.BackendNative:
		return newNativeBackend(cfg, logger), nil
	case config.BackendOTel:
		return newOTelBackend(ctx, cfg, logger, o)
	case config.BackendNoop:
		return &backend{
			tracer:   opentracing.NoopTracer{},
			shutdown: func(context.Context) error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Tracer.Backend)
	}
}

func newNativeBackend(cfg *config.Config, logger *zap.Logger) *backend {
	tracer := shardtrace.New()
	tracer.SetPanicHook(func(handlerID uint64, r interface{}) {
		logger.Warn("span handler panicked",
			zap.Uint64("handler", handlerID),
			zap.Any("panic", r),
		)
	})

	collector := shardtrace.NewCollector("export", cfg.Collector.BufferSize)
	tracer.OnSpanComplete(collector.Handler())
	if logger.Core().Enabled(zap.DebugLevel) {
		tracer.OnSpanComplete(spanLogger(logger))
	}

	return &backend{
		tracer:    tracer,
		collector: collector,
		shutdown: func(context.Context) error {
			tracer.Close()
			collector.Close()
			return nil
		},
	}
}

// spanLogger logs every completed span at debug level.
func spanLogger(logger *zap.Logger) shardtrace.SpanHandler {
	return func(span shardtrace.Span) {
		logger.Debug("span finished",
			zap.String("operation", span.Name),
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID),
			zap.String("parent_id", span.ParentID),
			zap.Duration("duration", span.Duration),
			zap.Bool("failed", span.Failed()),
		)
	}
}

func newOTelBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger, o *options) (*backend, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.Tracer.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.Tracer)),
	}
	if o.exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithSyncer(o.exporter))
	} else {
		exporter, err := newExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	bridge, wrapper := otbridge.NewTracerPair(provider.Tracer(instrumentationName))
	bridge.SetWarningHandler(func(msg string) {
		logger.Warn("opentracing bridge", zap.String("warning", msg))
	})
	otel.SetTracerProvider(wrapper)

	logger.Info("otel tracer started",
		zap.String("service", cfg.Tracer.ServiceName),
		zap.String("protocol", cfg.OTLP.Protocol),
		zap.String("endpoint", cfg.OTLP.Endpoint),
		zap.String("sampler", cfg.Tracer.Sampler),
	)

	return &backend{
		tracer:   bridge,
		shutdown: provider.Shutdown,
	}, nil
}

func newSampler(cfg config.TracerConfig) sdktrace.Sampler {
	switch cfg.Sampler {
	case config.SamplerNever:
		return sdktrace.NeverSample()
	case config.SamplerRatio:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplerRatio))
	default:
		return sdktrace.AlwaysSample()
	}
}

func newExporter(ctx context.Context, cfg config.OTLPConfig) (*otlptrace.Exporter, error) {
	switch cfg.Protocol {
	case config.ProtocolGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	default:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	}
}
