package shardtrace

import (
	"sync"
	"sync/atomic"
	"time"
)

// closeTimeout bounds how long Close waits for queued spans to be drained.
const closeTimeout = 100 * time.Millisecond

// Collector is a span sink for a tracer: completed spans are queued, buffered
// by a background goroutine, and handed out in batches by Export.
// A full queue never blocks the finishing goroutine; the span is dropped and
// counted instead.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	buf       []Span
	queue     chan Span
	quit      chan struct{}
	drained   chan struct{}
	dropped   atomic.Int64
	name      string
	mu        sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	direct    atomic.Bool
}

// NewCollector starts a collector whose queue holds up to queueSize spans.
func NewCollector(name string, queueSize int) *Collector {
	c := &Collector{
		name:    name,
		buf:     make([]Span, 0, 8),
		queue:   make(chan Span, queueSize),
		quit:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

// Handler adapts the collector for Tracer.OnSpanComplete.
func (c *Collector) Handler() SpanHandler {
	return c.Collect
}

func (c *Collector) loop() {
	defer close(c.drained)

	for {
		select {
		case span := <-c.queue:
			c.append(span)
		case <-c.quit:
			for n := len(c.queue); n > 0; n-- {
				c.append(<-c.queue)
			}
			return
		}
	}
}

// Collect takes a private copy of span and queues it. Spans arriving after
// Close, or while the queue is full, are counted as dropped.
func (c *Collector) Collect(span Span) {
	if c.closed.Load() {
		c.dropped.Add(1)
		return
	}

	span = span.clone()
	if c.direct.Load() {
		c.append(span)
		return
	}

	select {
	case c.queue <- span:
	default:
		c.dropped.Add(1)
	}
}

func (c *Collector) append(span Span) {
	c.mu.Lock()
	c.buf = append(c.buf, span)
	c.mu.Unlock()
}

// Export hands out the buffered spans and empties the buffer. Callers own
// the returned slice.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.takeLocked()
}

// ExportTraces is Export grouped by trace id, one entry per sharded query.
func (c *Collector) ExportTraces() map[string][]Span {
	c.mu.Lock()
	spans := c.takeLocked()
	c.mu.Unlock()

	if spans == nil {
		return nil
	}
	traces := make(map[string][]Span)
	for _, s := range spans {
		traces[s.TraceID] = append(traces[s.TraceID], s)
	}
	return traces
}

func (c *Collector) takeLocked() []Span {
	n := len(c.buf)
	if n == 0 {
		return nil
	}

	out := make([]Span, n)
	for i := range c.buf {
		out[i] = c.buf[i].clone()
	}

	// Release a buffer left oversized by a burst.
	if cap(c.buf) > 256 && n < cap(c.buf)/8 {
		c.buf = make([]Span, 0, max(cap(c.buf)/4, 32))
	} else {
		clear(c.buf)
		c.buf = c.buf[:0]
	}
	return out
}

// Count returns the number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// DroppedCount returns how many spans were dropped since creation or the
// last Reset.
func (c *Collector) DroppedCount() int64 {
	return c.dropped.Load()
}

// SetSyncMode makes Collect buffer on the calling goroutine, for
// deterministic tests.
func (c *Collector) SetSyncMode(sync bool) {
	c.direct.Store(sync)
}

// Reset discards buffered spans and zeroes the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.buf)
	c.buf = c.buf[:0]
	c.dropped.Store(0)
}

// Close stops the background goroutine once the queue is drained, waiting
// at most closeTimeout. Buffered spans remain available through Export.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		select {
		case <-c.drained:
		case <-time.After(closeTimeout):
		}
	})
}
