package shardtrace

import (
	"sync"
	"testing"

	"github.com/zoobzio/clockz"
)

func TestIDPoolWidth(t *testing.T) {
	pool := newIDPool(4, 8, clockz.RealClock)
	defer pool.close()

	for i := 0; i < 10; i++ {
		if id := pool.next(); len(id) != 16 {
			t.Fatalf("Expected 16 hex chars, got %q", id)
		}
	}
}

func TestIDPoolUniqueness(t *testing.T) {
	pool := newIDPool(16, 16, clockz.RealClock)
	defer pool.close()

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := pool.next()
				mu.Lock()
				if seen[id] {
					t.Errorf("Duplicate id %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestIDPoolCloseIsIdempotent(t *testing.T) {
	pool := newIDPool(1, 8, clockz.RealClock)
	pool.close()
	pool.close()

	// A closed pool still hands out ids.
	if id := pool.next(); id == "" {
		t.Error("Expected id from closed pool")
	}
}
