// Package ratelimit gates inbound client-initiated control messages.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter decides whether one more request is allowed for an identity.
// The broadcast path is never gated; only client-initiated control
// messages pass through a Limiter.
type Limiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-memory fixed-window limiter for single-replica
// deployments. Policy: increment first, check second — a denied call still
// consumes, so sustained abuse gets no free pass at a window boundary.
type FixedWindow struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	max     int
	period  time.Duration
	windows map[string]*window
}

// NewFixedWindow creates an in-memory fixed-window limiter.
func NewFixedWindow(clock clockwork.Clock, max int, period time.Duration) *FixedWindow {
	return &FixedWindow{
		clock:   clock,
		max:     max,
		period:  period,
		windows: make(map[string]*window),
	}
}

// Allow implements Limiter.
func (l *FixedWindow) Allow(_ context.Context, identity string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		l.windows[identity] = &window{count: 1, resetAt: now.Add(l.period)}
		return true, nil
	}

	w.count++
	return w.count <= l.max, nil
}

// Prune drops expired windows. Called from the hub's sweep loop so the map
// does not grow with every identity ever seen.
func (l *FixedWindow) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for identity, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, identity)
		}
	}
}
