package generation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Gate serializes access to the generation backend. Capacity counts the
// running request plus queued ones: a full gate rejects immediately with
// ErrOverloaded instead of blocking. Queued requests are admitted in FIFO
// order and may leave the queue when their context is canceled.
type Gate struct {
	mu       sync.Mutex
	capacity int
	inFlight int
	busy     bool
	waiters  []*waiter
}

type waiter struct {
	ready chan struct{}
}

// NewGate creates a gate admitting at most capacity requests, one running
// and capacity-1 queued. Capacity below 1 is raised to 1.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{capacity: capacity}
}

// Acquire claims the run slot, waiting in FIFO order behind earlier
// requests. It returns a release function that must be called exactly once.
// A full gate fails fast with ErrOverloaded; a canceled context returns the
// context error and gives up the queue position.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.mu.Lock()
	if g.inFlight >= g.capacity {
		g.mu.Unlock()
		return nil, ErrOverloaded
	}
	g.inFlight++
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return g.release, nil
	}
	w := &waiter{ready: make(chan struct{})}
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return g.release, nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, queued := range g.waiters {
			if queued == w {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.inFlight--
				g.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		// Signaled concurrently with cancellation: the run slot is ours,
		// pass it on.
		g.mu.Unlock()
		g.release()
		return nil, ctx.Err()
	}
}

func (g *Gate) release() {
	g.mu.Lock()
	g.inFlight--
	if len(g.waiters) > 0 {
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()
		close(next.ready)
		return
	}
	g.busy = false
	g.mu.Unlock()
}

// InFlight reports running plus queued requests.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Queued reports requests waiting behind the running one.
func (g *Gate) Queued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// GatedGenerator wraps a Generator with the admission gate and a per-request
// deadline. The deadline clock starts after the request leaves the queue, so
// time spent queued never counts against generation time.
type GatedGenerator struct {
	inner   Generator
	gate    *Gate
	timeout time.Duration
}

// NewGatedGenerator wraps inner with gate admission and a generation timeout.
func NewGatedGenerator(inner Generator, gate *Gate, timeout time.Duration) *GatedGenerator {
	return &GatedGenerator{inner: inner, gate: gate, timeout: timeout}
}

// Generate acquires the gate, then runs the wrapped generator under the
// configured deadline. Deadline overruns map to ErrTimeout.
func (g *GatedGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	release, err := g.gate.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	genCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	answer, err := g.inner.Generate(genCtx, prompt, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", ErrTimeout
		}
		return "", err
	}
	return answer, nil
}

// ModelID reports the wrapped generator's model.
func (g *GatedGenerator) ModelID() string {
	return g.inner.ModelID()
}
