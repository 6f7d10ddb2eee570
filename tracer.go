package shardtrace

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/shardtrace/internal/workers"
)

// ErrWorkerPoolEnabled is returned when EnableWorkerPool is called twice.
var ErrWorkerPoolEnabled = errors.New("worker pool already enabled")

// SpanHandler is called when a span completes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer is a native opentracing.Tracer. Finished spans are fanned out to
// registered handlers, typically a Collector.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workers.Pool
	traceIDs     *idPool
	spanIDs      *idPool
	clock        clockz.Clock
	handlersLock sync.RWMutex
	idsOnce      sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

var _ opentracing.Tracer = (*Tracer)(nil)

// New creates a new tracer using the real clock.
func New() *Tracer {
	return &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (*Tracer) WithClock(clock clockz.Clock) *Tracer {
	return &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clock,
	}
}

func (t *Tracer) ensureIDPools() {
	t.idsOnce.Do(func() {
		// Pool size based on number of CPUs for contention balance.
		poolSize := runtime.NumCPU() * 100
		t.traceIDs = newIDPool(poolSize, 16, t.clock)
		t.spanIDs = newIDPool(poolSize, 8, t.clock)
	})
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any completion handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// StartSpan implements opentracing.Tracer.
// A ChildOf reference wins over FollowsFrom; references to spans from other
// tracers are ignored and the span starts a new trace.
func (t *Tracer) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	var options opentracing.StartSpanOptions
	for _, opt := range opts {
		opt.Apply(&options)
	}

	start := options.StartTime
	if start.IsZero() {
		start = t.clock.Now()
	}

	t.ensureIDPools()
	span := &Span{
		SpanID:    t.spanIDs.next(),
		Name:      operationName,
		StartTime: start,
	}

	if parent, ok := parentContext(options.References); ok {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
		span.Baggage = copyBaggage(parent.Baggage)
	} else {
		span.TraceID = t.traceIDs.next()
	}

	if len(options.Tags) > 0 {
		span.Tags = make(map[Tag]string, len(options.Tags))
		for k, v := range options.Tags {
			span.Tags[k] = fmt.Sprint(v)
		}
	}

	return &liveSpan{tracer: t, span: span}
}

func parentContext(refs []opentracing.SpanReference) (SpanContext, bool) {
	var follows *SpanContext
	for _, ref := range refs {
		sc, ok := toSpanContext(ref.ReferencedContext)
		if !ok {
			continue
		}
		if ref.Type == opentracing.ChildOfRef {
			return sc, true
		}
		if follows == nil {
			follows = &sc
		}
	}
	if follows != nil {
		return *follows, true
	}
	return SpanContext{}, false
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	pool := t.workers
	hook := t.panicHook
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if pool != nil {
				pool.Submit(func() {
					safeCall(hook, entry, span.clone())
				})
			} else {
				go safeCall(hook, entry, span.clone())
			}
		} else {
			safeCall(hook, h, span.clone())
		}
	}
}

func safeCall(hook func(uint64, interface{}), entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(size, queueSize int) error {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return ErrWorkerPoolEnabled
	}
	pool, err := workers.New(size, queueSize, &t.droppedSpans)
	if err != nil {
		return err
	}
	t.workers = pool
	return nil
}

// DroppedSpans returns the number of spans dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// Spans finished after Close reach no handler.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	pool := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if pool != nil {
		pool.Shutdown()
	}

	if t.traceIDs != nil {
		t.traceIDs.close()
	}
	if t.spanIDs != nil {
		t.spanIDs.close()
	}
}
