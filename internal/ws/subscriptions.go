package ws

import (
	"github.com/thrivesend/pulse/internal/analytics"
)

// Subscriptions manages per-connection channel sets on top of the
// registry. Channel validity is the caller's concern (ParseChannel);
// add and remove are idempotent.
type Subscriptions struct {
	registry *Registry
}

// NewSubscriptions creates a subscription manager over a registry.
func NewSubscriptions(registry *Registry) *Subscriptions {
	return &Subscriptions{registry: registry}
}

// Subscribe adds the channel to the connection's set and returns the
// connection so the caller can trigger the immediate first push.
func (s *Subscriptions) Subscribe(connectionID string, channel analytics.Channel) (*Connection, error) {
	c, ok := s.registry.Get(connectionID)
	if !ok {
		return nil, ErrConnectionNotFound
	}
	c.Subscribe(channel)
	return c, nil
}

// Unsubscribe removes the channel from the connection's set.
func (s *Subscriptions) Unsubscribe(connectionID string, channel analytics.Channel) error {
	c, ok := s.registry.Get(connectionID)
	if !ok {
		return ErrConnectionNotFound
	}
	c.Unsubscribe(channel)
	return nil
}

// ChannelsOf returns the connection's current subscription set.
func (s *Subscriptions) ChannelsOf(connectionID string) ([]analytics.Channel, error) {
	c, ok := s.registry.Get(connectionID)
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return c.Channels(), nil
}

// SubscribersOf returns every live connection subscribed to the channel.
func (s *Subscriptions) SubscribersOf(channel analytics.Channel) []*Connection {
	all := s.registry.All()
	out := make([]*Connection, 0, len(all))
	for _, c := range all {
		if c.Subscribed(channel) {
			out = append(out, c)
		}
	}
	return out
}

// Counts returns the number of subscribers per channel.
func (s *Subscriptions) Counts() map[analytics.Channel]int {
	counts := make(map[analytics.Channel]int, 3)
	for _, c := range s.registry.All() {
		for _, ch := range c.Channels() {
			counts[ch]++
		}
	}
	return counts
}
