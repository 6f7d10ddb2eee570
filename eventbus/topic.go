// Package eventbus delivers typed pipeline events to their subscribers.
//
// A Topic carries one event type. Post delivers to synchronous subscribers on
// the posting goroutine, in registration order, and hands asynchronous
// subscribers to a bounded worker pool (or a fresh goroutine when no pool is
// enabled). Posting is safe from any number of goroutines at once, and a
// panicking subscriber never reaches the poster.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/shardtrace/internal/workers"
)

// ErrWorkerPoolEnabled is returned when EnableWorkerPool is called twice.
var ErrWorkerPoolEnabled = errors.New("eventbus: worker pool already enabled")

// Handler receives events posted on a Topic.
type Handler[E any] func(E)

type subscription[E any] struct {
	handler Handler[E]
	id      uint64
	async   bool
}

// Topic delivers events of type E to its subscribers.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Topic[E any] struct {
	subs      []subscription[E]
	panicHook func(subscriptionID uint64, r any)
	workers   *workers.Pool
	name      string
	mu        sync.RWMutex
	nextID    atomic.Uint64
	dropped   atomic.Uint64
	posted    atomic.Uint64
}

// NewTopic creates a topic. The name identifies it in logs.
func NewTopic[E any](name string) *Topic[E] {
	return &Topic[E]{name: name}
}

// Name returns the topic name.
func (t *Topic[E]) Name() string {
	return t.name
}

// Subscribe registers a handler invoked on the posting goroutine.
func (t *Topic[E]) Subscribe(handler Handler[E]) uint64 {
	return t.subscribe(handler, false)
}

// SubscribeAsync registers a handler invoked off the posting goroutine.
func (t *Topic[E]) SubscribeAsync(handler Handler[E]) uint64 {
	return t.subscribe(handler, true)
}

func (t *Topic[E]) subscribe(handler Handler[E], async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.subs = append(t.subs, subscription[E]{
		handler: handler,
		id:      id,
		async:   async,
	})
	return id
}

// Unsubscribe removes a subscription by ID.
func (t *Topic[E]) Unsubscribe(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.subs {
		if s.id == id {
			copy(t.subs[i:], t.subs[i+1:])
			t.subs = t.subs[:len(t.subs)-1]
			return
		}
	}
}

// Subscribers returns the number of registered subscriptions.
func (t *Topic[E]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// SetPanicHook sets a function to be called when a subscriber panics.
func (t *Topic[E]) SetPanicHook(hook func(subscriptionID uint64, r any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.panicHook = hook
}

// Post delivers ev to every subscriber.
func (t *Topic[E]) Post(ev E) {
	t.posted.Add(1)

	t.mu.RLock()
	if len(t.subs) == 0 {
		t.mu.RUnlock()
		return
	}
	subs := make([]subscription[E], len(t.subs))
	copy(subs, t.subs)
	pool := t.workers
	hook := t.panicHook
	t.mu.RUnlock()

	for _, s := range subs {
		if !s.async {
			deliver(hook, s, ev)
			continue
		}
		sub := s
		if pool != nil {
			pool.Submit(func() {
				deliver(hook, sub, ev)
			})
		} else {
			go deliver(hook, sub, ev)
		}
	}
}

func deliver[E any](hook func(uint64, any), s subscription[E], ev E) {
	defer func() {
		if r := recover(); r != nil {
			if hook != nil {
				hook(s.id, r)
			}
		}
	}()
	s.handler(ev)
}

// EnableWorkerPool creates a bounded worker pool for async subscribers.
func (t *Topic[E]) EnableWorkerPool(size, queueSize int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.workers != nil {
		return ErrWorkerPoolEnabled
	}
	pool, err := workers.New(size, queueSize, &t.dropped)
	if err != nil {
		return err
	}
	t.workers = pool
	return nil
}

// Dropped returns the number of async deliveries dropped on a full queue.
func (t *Topic[E]) Dropped() uint64 {
	return t.dropped.Load()
}

// Posted returns the number of events posted.
func (t *Topic[E]) Posted() uint64 {
	return t.posted.Load()
}

// Close removes every subscription and waits for in-flight async deliveries
// on the worker pool.
func (t *Topic[E]) Close() {
	t.mu.Lock()
	t.subs = nil
	pool := t.workers
	t.workers = nil
	t.mu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}
