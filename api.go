// Package shardtrace traces the execution pipeline of a database-sharding
// middleware.
//
// The root package provides the tracing SDK the listeners consume: a native
// OpenTracing tracer, span collection, and reference-counted span activation
// for correlating worker spans with the trunk span of a sharded query.
//
// Core Components:
//   - Tracer: native opentracing.Tracer with completion handlers.
//   - Span: the record of a finished unit of work.
//   - Collector: buffers finished spans for export.
//   - ActiveSpan: an activated span shared between trunk and workers.
//   - Continuation: a captured ActiveSpan waiting to be activated elsewhere.
//
// Basic Usage:
//
//	tracer := shardtrace.New()
//	defer tracer.Close()
//
//	collector := shardtrace.NewCollector("export", 1000)
//	tracer.OnSpanComplete(collector.Handler())
//
//	shardtrace.Init(tracer)
//
//	span := shardtrace.Get().StartSpan("/Sharding-Sphere/merge/")
//	defer span.Finish()
//
// Cross-worker correlation:
//
//	trunk := shardtrace.Activate(overallSpan)
//	continuation := trunk.Capture()
//
//	// On a worker.
//	active := continuation.Activate()
//	defer active.Deactivate()
//	span, _ := opentracing.StartSpanFromContextWithTracer(
//		active.Context(ctx), tracer, "child")
//
// Thread Safety:
//
// Tracer, Collector, ActiveSpan and Continuation are safe for concurrent use.
// Live spans accept concurrent SetTag/LogKV calls; Finish is idempotent.
package shardtrace

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// ComponentName is the component tag value carried by every span the
// sharding listeners start.
const ComponentName = "Sharding-Sphere"

// Error log field keys attached to failed spans.
const (
	LogFieldEvent     = "event"
	LogFieldErrorKind = "error.kind"
	LogFieldMessage   = "message"

	// LogEventError is the value of LogFieldEvent for failures.
	LogEventError = "error"
)
