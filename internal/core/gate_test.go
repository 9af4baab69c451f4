package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGate_AcquireRelease(t *testing.T) {
	g := NewGate(2, time.Second, ErrTooManyUploads)
	ctx := context.Background()

	if got := g.Available(); got != 2 {
		t.Errorf("initial Available = %d, want 2", got)
	}

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if got := g.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
	if got := g.Available(); got != 0 {
		t.Errorf("Available = %d, want 0", got)
	}

	g.Release()
	g.Release()
	if got := g.ActiveCount(); got != 0 {
		t.Errorf("after Release, ActiveCount = %d, want 0", got)
	}
}

func TestGate_BusyAfterWait(t *testing.T) {
	g := NewGate(1, 50*time.Millisecond, ErrSessionBusy)
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer g.Release()

	start := time.Now()
	err := g.Acquire(ctx)
	if !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Acquire = %v, want ErrSessionBusy", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("gave up too fast: %v", elapsed)
	}
}

func TestGate_SerializesHolders(t *testing.T) {
	g := NewGate(1, time.Second, nil)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		maxObserved int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer g.Release()

			mu.Lock()
			if n := g.ActiveCount(); n > maxObserved {
				maxObserved = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if maxObserved != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxObserved)
	}
}

func TestGate_TryAcquire(t *testing.T) {
	g := NewGate(1, time.Second, nil)

	if !g.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if g.TryAcquire() {
		t.Error("second TryAcquire should fail")
		g.Release()
	}
	g.Release()
	if !g.TryAcquire() {
		t.Error("TryAcquire after Release should succeed")
	}
	g.Release()
}

func TestGate_ContextCancellation(t *testing.T) {
	g := NewGate(1, 5*time.Second, nil)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer g.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after cancellation")
	}
}

func TestGate_WaitForDrain(t *testing.T) {
	g := NewGate(2, time.Second, nil)
	g.Acquire(context.Background())

	done := make(chan error, 1)
	go func() { done <- g.WaitForDrain(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitForDrain returned while a slot was held")
	case <-time.After(60 * time.Millisecond):
	}

	g.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForDrain = %v", err)
		}
	case <-time.After(time.Second):
		t.Error("WaitForDrain did not return after release")
	}
}

func TestGate_Defaults(t *testing.T) {
	g := NewGate(0, 0, nil)
	st := g.Status()
	if st.Capacity != 1 {
		t.Errorf("Capacity = %d, want 1", st.Capacity)
	}
	if st.Available != 1 || st.Active != 0 {
		t.Errorf("Status = %+v, want 1 available, 0 active", st)
	}
}
