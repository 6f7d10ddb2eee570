// Package workers provides the bounded worker pool behind asynchronous span
// handlers and event subscribers.
package workers

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrInvalidSize is returned for non-positive worker or queue sizes.
var ErrInvalidSize = errors.New("workers and queue size must be > 0")

// Pool runs submitted tasks on a fixed number of goroutines. Tasks submitted
// while the queue is full are dropped and counted.
//
//nolint:govet // Field order optimized for functionality over memory
type Pool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

// New starts a pool. Dropped tasks are added to dropped.
func New(workers, queueSize int, dropped *atomic.Uint64) (*Pool, error) {
	if workers <= 0 || queueSize <= 0 {
		return nil, ErrInvalidSize
	}
	if dropped == nil {
		dropped = new(atomic.Uint64)
	}

	p := &Pool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: dropped,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p, nil
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			task()
		case <-p.stop:
			return
		}
	}
}

// Submit queues task without blocking.
func (p *Pool) Submit(task func()) {
	select {
	case p.tasks <- task:
	default:
		p.dropped.Add(1)
	}
}

// Shutdown stops the workers and waits for running tasks. Queued tasks that
// have not started are discarded.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}
