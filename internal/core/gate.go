package core

// gate.go bounds how many actions run at once.
//
// A Gate is a counting semaphore with a bounded wait. Sessions use a
// one-slot gate so loads, searches and edits run strictly one after another;
// the web layer uses a wider gate to cap parallel upload parsing across all
// sessions. A caller that cannot get a slot within maxWait receives the
// gate's busy error instead of queueing forever.

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionBusy is returned when another action on the same session
	// holds the gate past the wait timeout.
	ErrSessionBusy = errors.New("session is busy with another action, please try again")

	// ErrTooManyUploads is returned when all upload slots are occupied and
	// the wait timeout expires.
	ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")
)

// DefaultGateWait is how long Acquire waits when no wait is configured.
const DefaultGateWait = 30 * time.Second

// Gate admits at most a fixed number of holders.
type Gate struct {
	slots   chan struct{}
	maxWait time.Duration
	busy    error

	mu     sync.RWMutex
	active int
}

// NewGate creates a gate with the given number of slots. Callers waiting
// longer than maxWait receive busy.
func NewGate(slots int, maxWait time.Duration, busy error) *Gate {
	if slots <= 0 {
		slots = 1
	}
	if maxWait <= 0 {
		maxWait = DefaultGateWait
	}
	if busy == nil {
		busy = ErrSessionBusy
	}
	return &Gate{
		slots:   make(chan struct{}, slots),
		maxWait: maxWait,
		busy:    busy,
	}
}

// Acquire takes a slot. The caller must Release it when done.
func (g *Gate) Acquire(ctx context.Context) error {
	timer := time.NewTimer(g.maxWait)
	defer timer.Stop()

	select {
	case g.slots <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return nil
	case <-timer.C:
		return g.busy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (g *Gate) Release() {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	<-g.slots
}

// ActiveCount returns the number of current holders.
func (g *Gate) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Capacity returns the number of slots.
func (g *Gate) Capacity() int { return cap(g.slots) }

// Available returns the number of free slots.
func (g *Gate) Available() int { return cap(g.slots) - len(g.slots) }

// WaitForDrain blocks until no slot is held or ctx is done.
func (g *Gate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if g.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GateStatus is a snapshot of a gate for monitoring.
type GateStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Capacity  int `json:"capacity"`
}

// Status returns the current gate state.
func (g *Gate) Status() GateStatus {
	return GateStatus{
		Active:    g.ActiveCount(),
		Available: g.Available(),
		Capacity:  g.Capacity(),
	}
}
