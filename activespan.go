package shardtrace

import (
	"context"
	"sync/atomic"

	opentracing "github.com/opentracing/opentracing-go"
)

// ActiveSpan is an activated span whose lifetime is shared, by reference
// count, between the goroutine that activated it and every goroutine that
// activates one of its continuations. The span finishes when the last
// reference is deactivated.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	state       *activeState
	deactivated atomic.Bool
}

// Continuation is a captured ActiveSpan that can be activated on another
// goroutine, typically a worker of the goroutine that captured it.
type Continuation struct {
	state *activeState
}

type activeState struct {
	span opentracing.Span
	refs atomic.Int64
}

// retain takes a reference unless the span has already been released.
func (s *activeState) retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and reports whether it was the last one.
func (s *activeState) release() bool {
	return s.refs.Add(-1) == 0
}

// Activate wraps span in an ActiveSpan holding the first reference.
func Activate(span opentracing.Span) *ActiveSpan {
	st := &activeState{span: span}
	st.refs.Store(1)
	return &ActiveSpan{state: st}
}

// Span returns the underlying span.
func (a *ActiveSpan) Span() opentracing.Span {
	return a.state.span
}

// Context returns parent with the span embedded, so spans started from it
// with opentracing.StartSpanFromContext become its children.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return opentracing.ContextWithSpan(parent, a.state.span)
}

// Capture returns a continuation of this span.
func (a *ActiveSpan) Capture() *Continuation {
	return &Continuation{state: a.state}
}

// Active reports whether this handle still holds its reference.
func (a *ActiveSpan) Active() bool {
	return !a.deactivated.Load()
}

// Deactivate releases this handle's reference, finishing the span if it was
// the last one. Safe to call multiple times.
func (a *ActiveSpan) Deactivate() {
	if !a.deactivated.CompareAndSwap(false, true) {
		return
	}
	if a.state.release() {
		a.state.span.Finish()
	}
}

// Activate returns a new handle sharing the captured span's reference count.
// When the span has already finished the handle is returned inactive: it
// still parents child spans but Deactivate is a no-op.
func (c *Continuation) Activate() *ActiveSpan {
	a := &ActiveSpan{state: c.state}
	if !c.state.retain() {
		a.deactivated.Store(true)
	}
	return a
}

// Span returns the captured span.
func (c *Continuation) Span() opentracing.Span {
	return c.state.span
}
