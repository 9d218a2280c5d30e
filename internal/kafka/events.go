// Package kafka consumes analytics events from the event bus and hands
// them to the realtime hub for fan-out.
package kafka

import (
	"encoding/json"
	"time"
)

// Event is one analytics event on the bus. Events without an organization
// id are dropped; fan-out is always organization-scoped.
type Event struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Source         string          `json:"source,omitempty"`
	OrganizationID string          `json:"organizationId"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// EventHandler receives decoded events from the consumer. A returned error
// means the event was not processed and its offset must not be committed.
type EventHandler interface {
	HandleEvent(event Event) error
}
