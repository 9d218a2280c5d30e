package ws

import (
	"encoding/json"
	"time"
)

// Wire message types. Framed JSON over a persistent connection; the
// transport is gorilla/websocket but nothing below the protocol layer
// assumes it.
const (
	TypeConnectionAck  = "connection_ack"
	TypeHeartbeat      = "heartbeat"
	TypeSubscribe      = "subscribe"
	TypeUnsubscribe    = "unsubscribe"
	TypeRequestMetrics = "request_metrics"
	TypeAnalyticsEvent = "analytics_event"
	TypeMetricUpdate   = "metric_update"
	TypeChartData      = "chart_data"
	TypeAlert          = "alert"
	TypeError          = "error"
)

// ClientMessage is any inbound control or event message.
type ClientMessage struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Metrics   []string        `json:"metrics,omitempty"`
	EventType string          `json:"eventType,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is any outbound message. Fields are sparse; only the ones
// relevant to the message type are populated.
type ServerMessage struct {
	Type         string      `json:"type"`
	ConnectionID string      `json:"connectionId,omitempty"`
	Channel      string      `json:"channel,omitempty"`
	EventType    string      `json:"eventType,omitempty"`
	Message      string      `json:"message,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}
