package ws

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// HeartbeatMonitor tracks per-connection liveness. A heartbeat control
// message refreshes the timestamp; the hub's sweep loop force-closes
// whatever Stale returns.
type HeartbeatMonitor struct {
	registry *Registry
	clock    clockwork.Clock
}

// NewHeartbeatMonitor creates a heartbeat monitor over the registry.
func NewHeartbeatMonitor(registry *Registry, clock clockwork.Clock) *HeartbeatMonitor {
	return &HeartbeatMonitor{registry: registry, clock: clock}
}

// Touch records a heartbeat for the connection.
func (m *HeartbeatMonitor) Touch(c *Connection) {
	c.Touch(m.clock.Now())
}

// Stale returns every connection whose last heartbeat is older than the
// timeout.
func (m *HeartbeatMonitor) Stale(timeout time.Duration) []*Connection {
	now := m.clock.Now()
	stale := make([]*Connection, 0)
	for _, c := range m.registry.All() {
		if now.Sub(c.LastHeartbeat()) > timeout {
			stale = append(stale, c)
		}
	}
	return stale
}
