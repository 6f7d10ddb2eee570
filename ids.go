package shardtrace

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
)

// idPool keeps a buffer of pre-generated hex identifiers of a fixed byte
// width, amortizing crypto/rand over bursts of span starts.
type idPool struct {
	clock  clockz.Clock
	ids    chan string
	stopCh chan struct{}
	seq    atomic.Uint64
	once   sync.Once
	width  int
}

func newIDPool(capacity, width int, clock clockz.Clock) *idPool {
	p := &idPool{
		clock:  clock,
		ids:    make(chan string, capacity),
		stopCh: make(chan struct{}),
		width:  width,
	}
	go p.refill()
	return p
}

// next returns a pooled identifier, generating one inline when the pool is
// drained.
func (p *idPool) next() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.generate()
	}
}

func (p *idPool) generate() string {
	buf := make([]byte, p.width)
	if _, err := rand.Read(buf); err != nil {
		// Clock plus sequence keeps fallback ids unique within the process.
		var tail [8]byte
		binary.BigEndian.PutUint64(tail[:], uint64(p.clock.Now().UnixNano())+p.seq.Add(1))
		copy(buf[len(buf)-min(len(buf), 8):], tail[8-min(len(buf), 8):])
	}
	return hex.EncodeToString(buf)
}

func (p *idPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.generate():
		}
	}
}

func (p *idPool) close() {
	p.once.Do(func() {
		close(p.stopCh)
	})
}
