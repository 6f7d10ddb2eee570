package listener

import (
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/event"
)

// Hooks is the per-event-type half of the tracing protocol.
type Hooks[E event.Event] interface {
	// BeforeExecute opens or reuses the span for the event's task.
	BeforeExecute(ev E)
	// TracingFinish closes the task's span, if any.
	TracingFinish(ev E)
	// FailureSpan returns the span to tag when the event reports a failure,
	// or nil when none is open.
	FailureSpan(ev E) opentracing.Span
}

// Protocol carries the dependencies shared by every listener.
type Protocol struct {
	tracer  opentracing.Tracer
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithTracer pins the tracer. Without it the tracer registered through
// shardtrace.Init is resolved on every span start.
func WithTracer(tracer opentracing.Tracer) Option {
	return func(p *Protocol) {
		p.tracer = tracer
	}
}

// WithLogger sets the logger for swallowed tracing failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables listener metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Protocol) {
		p.metrics = metrics
	}
}

// NewProtocol creates a Protocol.
func NewProtocol(opts ...Option) *Protocol {
	p := &Protocol{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tracer returns the tracer spans are started with.
func (p *Protocol) Tracer() opentracing.Tracer {
	if p.tracer != nil {
		return p.tracer
	}
	return shardtrace.Get()
}

// Logger returns the protocol logger.
func (p *Protocol) Logger() *zap.Logger {
	return p.logger
}

// Metrics returns the protocol metrics, nil when disabled.
func (p *Protocol) Metrics() *Metrics {
	return p.metrics
}

// Dispatch runs ev through hooks. It never panics.
func Dispatch[E event.Event](p *Protocol, listener string, hooks Hooks[E], ev E) {
	if ev.Task() == nil {
		p.logger.Warn("event without task ignored",
			zap.String("listener", listener),
			zap.Stringer("type", ev.Type()),
		)
		return
	}

	switch ev.Type() {
	case event.BeforeExecute:
		p.guard(listener, ev, func() { hooks.BeforeExecute(ev) })
	case event.ExecuteSuccess:
		p.guard(listener, ev, func() { hooks.TracingFinish(ev) })
	case event.ExecuteFailure:
		p.guard(listener, ev, func() {
			span := hooks.FailureSpan(ev)
			if span == nil {
				p.logger.Debug("failure reported without an open span",
					zap.String("listener", listener),
					zap.Error(ev.Err()),
				)
				return
			}
			markFailed(span, ev.Err())
			p.metrics.failure(listener)
		})
		p.guard(listener, ev, func() { hooks.TracingFinish(ev) })
	default:
		p.logger.Warn("unknown execution type",
			zap.String("listener", listener),
			zap.Int("type", int(ev.Type())),
		)
	}
}

// guard runs fn, converting a panic into a log line and a metric.
func (p *Protocol) guard(listener string, ev event.Event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.tracingError(listener)
			p.logger.Warn("tracing failed",
				zap.String("listener", listener),
				zap.Stringer("type", ev.Type()),
				zap.String("task", ev.Task().ID()),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

// markFailed sets the error tag and, when err is known, logs its kind and
// message on span.
func markFailed(span opentracing.Span, err error) {
	ext.Error.Set(span, true)
	if err == nil {
		return
	}
	span.LogFields(
		otlog.String(shardtrace.LogFieldEvent, shardtrace.LogEventError),
		otlog.String(shardtrace.LogFieldErrorKind, fmt.Sprintf("%T", err)),
		otlog.String(shardtrace.LogFieldMessage, err.Error()),
	)
}
