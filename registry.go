package shardtrace

import (
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
)

var registry struct {
	tracer opentracing.Tracer
	mu     sync.RWMutex
}

// Init registers the tracer used by the sharding listeners.
// Passing nil restores the fallback to opentracing.GlobalTracer.
func Init(tracer opentracing.Tracer) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.tracer = tracer
}

// Get returns the registered tracer, or opentracing.GlobalTracer when none
// was registered.
func Get() opentracing.Tracer {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	if registry.tracer == nil {
		return opentracing.GlobalTracer()
	}
	return registry.tracer
}

// Initialized reports whether Init registered a tracer.
func Initialized() bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.tracer != nil
}

// Reset unregisters the tracer. Equivalent to Init(nil).
func Reset() {
	Init(nil)
}
