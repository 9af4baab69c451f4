package core

// sessions.go keeps every live Session and reaps idle ones.
//
// The reaper is a long-running loop in the shape of the other background
// jobs: it runs once on start, then on every tick until ctx is cancelled.
// A session that is busy when the reaper looks at it is left for the next
// tick.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReaperConfig controls idle session cleanup.
type ReaperConfig struct {
	MaxIdle       time.Duration // sessions unused this long are removed
	CheckInterval time.Duration // how often to look
}

// Sessions is a registry of sessions keyed by id.
type Sessions struct {
	cfg SessionConfig

	mu   sync.RWMutex
	byID map[string]*Session
}

// NewSessions creates an empty registry. New sessions get cfg.
func NewSessions(cfg SessionConfig) *Sessions {
	return &Sessions{cfg: cfg, byID: make(map[string]*Session)}
}

// Create starts a new session with a fresh id.
func (r *Sessions) Create() *Session {
	s := NewSession(uuid.NewString(), r.cfg)
	r.mu.Lock()
	r.byID[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with the given id.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// GetOrCreate returns the session for id, creating a new one when id is
// unknown or not a valid session id. created reports a new session.
func (r *Sessions) GetOrCreate(id string) (s *Session, created bool) {
	if _, err := uuid.Parse(id); err == nil {
		if s, ok := r.Get(id); ok {
			return s, false
		}
	}
	return r.Create(), true
}

// Remove drops a session.
func (r *Sessions) Remove(id string) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// Len returns the number of sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Reap removes sessions idle for longer than maxIdle and returns how many
// were removed. Busy sessions are kept. A session's gate is held while it
// is checked so no action can start on a session being removed.
func (r *Sessions) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.byID {
		if !s.gate.TryAcquire() {
			continue
		}
		if !s.LastUsed().After(cutoff) {
			delete(r.byID, id)
			removed++
		}
		s.gate.Release()
	}
	return removed
}

// StartReaper periodically removes idle sessions until ctx is cancelled.
// It runs immediately on start, then every CheckInterval.
func (r *Sessions) StartReaper(ctx context.Context, cfg ReaperConfig) {
	slog.Info("session reaper started",
		"max_idle", cfg.MaxIdle.String(),
		"interval", cfg.CheckInterval.String(),
	)

	r.runReap(cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session reaper stopped")
			return
		case <-ticker.C:
			r.runReap(cfg)
		}
	}
}

func (r *Sessions) runReap(cfg ReaperConfig) {
	start := time.Now()
	removed := r.Reap(cfg.MaxIdle)
	if removed > 0 {
		slog.Info("reaped idle sessions",
			"removed", removed,
			"remaining", r.Len(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("reap found no idle sessions", "remaining", r.Len())
}
