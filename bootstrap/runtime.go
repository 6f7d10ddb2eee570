package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/event"
	"github.com/zoobzio/shardtrace/eventbus"
	"github.com/zoobzio/shardtrace/internal/config"
	"github.com/zoobzio/shardtrace/listener"
)

// Runtime is a started tracing pipeline.
type Runtime struct {
	Tracer       opentracing.Tracer
	Collector    *shardtrace.Collector
	Metrics      *listener.Metrics
	Merge        *listener.MergeListener
	Overall      *listener.OverallExecuteListener
	MergeTopic   *eventbus.Topic[event.Merge]
	OverallTopic *eventbus.Topic[event.OverallExecute]

	logger       *zap.Logger
	backend      *backend
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures Start.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
}

// WithSpanExporter makes the otel backend export synchronously to exporter
// instead of building an OTLP exporter from configuration.
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.exporter = exporter
	}
}

// Start builds the runtime described by cfg and registers its tracer with
// shardtrace.Init. A nil logger disables logging; a nil registerer disables
// metrics.
func Start(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	be, err := newBackend(context.Background(), cfg, logger, &o)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Tracer:       be.tracer,
		Collector:    be.collector,
		MergeTopic:   eventbus.NewTopic[event.Merge]("merge"),
		OverallTopic: eventbus.NewTopic[event.OverallExecute]("overall"),
		logger:       logger,
		backend:      be,
	}
	if reg != nil {
		rt.Metrics = listener.NewMetrics(reg, cfg.Metrics.Namespace)
	}

	if err := rt.wireBus(cfg.Bus); err != nil {
		_ = rt.Shutdown(context.Background())
		return nil, err
	}

	protocol := listener.NewProtocol(
		listener.WithTracer(be.tracer),
		listener.WithLogger(logger.Named("listener")),
		listener.WithMetrics(rt.Metrics),
	)
	rt.Overall = listener.NewOverallExecuteListener(protocol)
	rt.Merge = listener.NewMergeListener(protocol)
	rt.Overall.Register(rt.OverallTopic)
	rt.Merge.Register(rt.MergeTopic)

	shardtrace.Init(be.tracer)

	logger.Info("tracing runtime started",
		zap.String("backend", cfg.Tracer.Backend),
		zap.Int("bus_workers", cfg.Bus.Workers),
	)
	return rt, nil
}

// wireBus installs panic hooks and, when workers are configured, an
// asynchronous event log fed through the topics' worker pools.
func (rt *Runtime) wireBus(cfg config.BusConfig) error {
	rt.MergeTopic.SetPanicHook(rt.subscriberPanic("merge"))
	rt.OverallTopic.SetPanicHook(rt.subscriberPanic("overall"))

	if cfg.Workers == 0 {
		return nil
	}
	if err := rt.MergeTopic.EnableWorkerPool(cfg.Workers, cfg.QueueSize); err != nil {
		return fmt.Errorf("merge topic: %w", err)
	}
	if err := rt.OverallTopic.EnableWorkerPool(cfg.Workers, cfg.QueueSize); err != nil {
		return fmt.Errorf("overall topic: %w", err)
	}

	if rt.logger.Core().Enabled(zap.DebugLevel) {
		rt.MergeTopic.SubscribeAsync(func(ev event.Merge) {
			rt.logEvent("merge", ev)
		})
		rt.OverallTopic.SubscribeAsync(func(ev event.OverallExecute) {
			rt.logEvent("overall", ev)
		})
	}
	return nil
}

func (rt *Runtime) subscriberPanic(topic string) func(uint64, any) {
	return func(id uint64, r any) {
		rt.logger.Warn("event subscriber panicked",
			zap.String("topic", topic),
			zap.Uint64("subscription", id),
			zap.Any("panic", r),
		)
	}
}

func (rt *Runtime) logEvent(topic string, ev event.Event) {
	fields := []zap.Field{
		zap.String("topic", topic),
		zap.Stringer("type", ev.Type()),
	}
	if task := ev.Task(); task != nil {
		fields = append(fields, zap.String("task", task.ID()), zap.Bool("trunk", task.Trunk()))
	}
	if err := ev.Err(); err != nil {
		fields = append(fields, zap.Error(err))
	}
	rt.logger.Debug("event", fields...)
}

// Spans exports the spans collected by the native backend. Other backends
// return nil.
func (rt *Runtime) Spans() []shardtrace.Span {
	if rt.Collector == nil {
		return nil
	}
	return rt.Collector.Export()
}

// Dropped returns the number of asynchronous deliveries dropped by the
// topics.
func (rt *Runtime) Dropped() uint64 {
	return rt.MergeTopic.Dropped() + rt.OverallTopic.Dropped()
}

// Shutdown closes the topics, flushes the tracer backend and unregisters the
// tracer. Safe to call multiple times.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.shutdownOnce.Do(func() {
		rt.MergeTopic.Close()
		rt.OverallTopic.Close()

		var errs []error
		if err := rt.backend.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		if shardtrace.Get() == rt.Tracer {
			shardtrace.Reset()
		}
		rt.shutdownErr = errors.Join(errs...)

		rt.logger.Info("tracing runtime stopped", zap.Error(rt.shutdownErr))
	})
	return rt.shutdownErr
}
