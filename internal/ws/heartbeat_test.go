package ws

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestHeartbeatStale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry()
	monitor := NewHeartbeatMonitor(r, clock)

	fresh := newConnection(nil, nil, "fresh", "org-1", "", clock.Now(), testLogger())
	quiet := newConnection(nil, nil, "quiet", "org-1", "", clock.Now(), testLogger())
	for _, c := range []*Connection{fresh, quiet} {
		if err := r.Register(c); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	timeout := 90 * time.Second

	// Nobody is stale right after admission.
	if stale := monitor.Stale(timeout); len(stale) != 0 {
		t.Fatalf("expected no stale connections, got %d", len(stale))
	}

	// One connection keeps heartbeating, the other goes quiet.
	clock.Advance(60 * time.Second)
	monitor.Touch(fresh)
	clock.Advance(60 * time.Second)

	stale := monitor.Stale(timeout)
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale connection, got %d", len(stale))
	}
	if stale[0].ID != "quiet" {
		t.Fatalf("expected quiet to be stale, got %s", stale[0].ID)
	}
}

func TestHeartbeatExactTimeoutNotStale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry()
	monitor := NewHeartbeatMonitor(r, clock)

	c := newConnection(nil, nil, "c1", "org-1", "", clock.Now(), testLogger())
	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	timeout := 90 * time.Second
	clock.Advance(timeout)
	if stale := monitor.Stale(timeout); len(stale) != 0 {
		t.Fatal("connection at exactly the timeout should not be stale")
	}

	clock.Advance(time.Millisecond)
	if stale := monitor.Stale(timeout); len(stale) != 1 {
		t.Fatal("connection past the timeout should be stale")
	}
}

func TestHeartbeatTouchResets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry()
	monitor := NewHeartbeatMonitor(r, clock)

	c := newConnection(nil, nil, "c1", "org-1", "", clock.Now(), testLogger())
	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	timeout := 90 * time.Second
	clock.Advance(89 * time.Second)
	monitor.Touch(c)
	clock.Advance(89 * time.Second)

	if stale := monitor.Stale(timeout); len(stale) != 0 {
		t.Fatal("touched connection should not be stale")
	}
}
