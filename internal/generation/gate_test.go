package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestGate_MutualExclusion(t *testing.T) {
	g := NewGate(8)
	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&current, 1)
			if n > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, n)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			release()
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&peak); p != 1 {
		t.Errorf("peak concurrent holders = %d, want 1", p)
	}
}

func TestGate_RejectsWhenFull(t *testing.T) {
	g := NewGate(2)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	queuedDone := make(chan error, 1)
	go func() {
		r, err := g.Acquire(context.Background())
		if err == nil {
			r()
		}
		queuedDone <- err
	}()
	waitFor(t, func() bool { return g.Queued() == 1 })

	// Running + queued = capacity: the next request is rejected immediately.
	if _, err := g.Acquire(context.Background()); !errors.Is(err, ErrOverloaded) {
		t.Errorf("expected ErrOverloaded, got %v", err)
	}

	release()
	if err := <-queuedDone; err != nil {
		t.Errorf("queued request failed: %v", err)
	}
}

func TestGate_AdmitsExactlyCapacity(t *testing.T) {
	const capacity, total = 3, 10
	g := NewGate(capacity)
	hold, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var admitted, overloaded int32
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if errors.Is(err, ErrOverloaded) {
				atomic.AddInt32(&overloaded, 1)
				return
			}
			if err != nil {
				t.Error(err)
				return
			}
			atomic.AddInt32(&admitted, 1)
			release()
		}()
	}
	// The queue absorbs capacity-1 of the burst; the rest bounce.
	waitFor(t, func() bool {
		return atomic.LoadInt32(&overloaded) >= total-(capacity-1)
	})
	hold()
	wg.Wait()

	if admitted != capacity-1 {
		t.Errorf("admitted = %d, want %d", admitted, capacity-1)
	}
	if overloaded != total-(capacity-1) {
		t.Errorf("overloaded = %d, want %d", overloaded, total-(capacity-1))
	}
}

func TestGate_FIFOOrder(t *testing.T) {
	g := NewGate(8)
	hold, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			release()
		}()
		waitFor(t, func() bool { return g.Queued() == i })
	}

	hold()
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i+1 {
			t.Fatalf("wake order = %v, want [1 2 3]", order)
		}
	}
}

func TestGate_QueuedCancellation(t *testing.T) {
	g := NewGate(3)
	hold, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx)
		result <- err
	}()
	waitFor(t, func() bool { return g.Queued() == 1 })

	cancel()
	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	waitFor(t, func() bool { return g.Queued() == 0 && g.InFlight() == 1 })

	// The abandoned queue slot is usable again.
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("slot not reclaimed after cancellation: %v", err)
	}
	go release()
	hold()
}

func TestGatedGenerator_Timeout(t *testing.T) {
	inner := &MockGenerator{Delay: 200 * time.Millisecond}
	gg := NewGatedGenerator(inner, NewGate(2), 10*time.Millisecond)
	_, err := gg.Generate(context.Background(), "prompt", Params{})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestGatedGenerator_TimeoutStartsAfterQueue(t *testing.T) {
	// Inner generation takes 30ms with a 50ms deadline; the first request
	// occupies the model long enough that a queue-anchored clock would
	// expire while waiting.
	inner := &MockGenerator{Answer: "ok", Delay: 30 * time.Millisecond}
	gg := NewGatedGenerator(inner, NewGate(2), 50*time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = gg.Generate(context.Background(), "prompt", Params{})
		}()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
}

func TestGatedGenerator_Overload(t *testing.T) {
	inner := &MockGenerator{Answer: "ok", Delay: 50 * time.Millisecond}
	gate := NewGate(1)
	gg := NewGatedGenerator(inner, gate, time.Second)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := gg.Generate(context.Background(), "prompt", Params{})
		done <- err
	}()
	<-started
	waitFor(t, func() bool { return gate.InFlight() == 1 })

	if _, err := gg.Generate(context.Background(), "prompt", Params{}); !errors.Is(err, ErrOverloaded) {
		t.Errorf("expected ErrOverloaded, got %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("first request failed: %v", err)
	}
}
