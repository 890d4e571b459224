package cliexec

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Mathews-Tom/SubLLM/types"
)

// ClientPool hands out persistent backend clients under exclusive checkout:
// a checked-out client serves exactly one request at a time, and the pool
// never holds more than its configured size of live clients. Callers that
// arrive while every slot is busy queue on Acquire until a client is
// released or the context expires.
type ClientPool[T any] struct {
	newFn   func(ctx context.Context) (T, error)
	closeFn func(T) error

	idle  chan T
	slots chan struct{}

	mu     sync.Mutex
	closed bool

	// Metrics
	acquires atomic.Int64
	creates  atomic.Int64
	discards atomic.Int64
}

// NewClientPool creates a pool of at most size clients. newFn builds a fresh
// client on demand; closeFn tears one down.
func NewClientPool[T any](size int, newFn func(ctx context.Context) (T, error), closeFn func(T) error) *ClientPool[T] {
	if size <= 0 {
		size = 1
	}
	p := &ClientPool[T]{
		newFn:   newFn,
		closeFn: closeFn,
		idle:    make(chan T, size),
		slots:   make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Acquire checks out a client for exclusive use. An idle client is reused
// when available; otherwise a free slot spawns a new one; otherwise the call
// blocks until a sibling releases or the context is done.
func (p *ClientPool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return zero, types.NewError(types.ErrInternalError, "client pool is closed")
	}
	p.acquires.Add(1)

	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	select {
	case c := <-p.idle:
		return c, nil
	case <-p.slots:
		c, err := p.newFn(ctx)
		if err != nil {
			p.slots <- struct{}{}
			return zero, err
		}
		p.creates.Add(1)
		return c, nil
	case <-ctx.Done():
		return zero, types.NewError(types.ErrTimeout,
			"timed out waiting for a backend client").WithCause(ctx.Err()).WithRetryable(true)
	}
}

// Release returns a healthy client for reuse.
func (p *ClientPool[T]) Release(c T) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		_ = p.closeFn(c)
		return
	}

	select {
	case p.idle <- c:
	default:
		// Slot accounting should make this unreachable; close rather than leak.
		_ = p.closeFn(c)
		p.slots <- struct{}{}
	}
}

// Discard tears down a broken client and frees its slot so a replacement can
// be spawned.
func (p *ClientPool[T]) Discard(c T) {
	p.discards.Add(1)
	_ = p.closeFn(c)
	p.slots <- struct{}{}
}

// Close shuts down every idle client. Checked-out clients are closed by their
// holders via Release after close.
func (p *ClientPool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case c := <-p.idle:
			_ = p.closeFn(c)
		default:
			return nil
		}
	}
}

// Stats returns pool counters.
func (p *ClientPool[T]) Stats() PoolStats {
	return PoolStats{
		Acquires: p.acquires.Load(),
		Creates:  p.creates.Load(),
		Discards: p.discards.Load(),
	}
}

// PoolStats contains pool counters.
type PoolStats struct {
	Acquires int64 `json:"acquires"`
	Creates  int64 `json:"creates"`
	Discards int64 `json:"discards"`
}

// ReuseRate returns the fraction of acquires served without spawning.
func (s PoolStats) ReuseRate() float64 {
	if s.Acquires == 0 {
		return 0
	}
	return float64(s.Acquires-s.Creates) / float64(s.Acquires)
}
