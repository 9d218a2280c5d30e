// Package metrics declares the Prometheus metric set for the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the realtime hub
type Metrics struct {
	// Connection lifecycle
	ActiveConnections *prometheus.GaugeVec   // by organization
	Subscriptions     *prometheus.GaugeVec   // by channel
	MessagesIn        *prometheus.CounterVec // by message type
	MessagesOut       *prometheus.CounterVec // by message type
	RateLimited       *prometheus.CounterVec // by message type

	// Broadcast pipeline
	BroadcastTicks   *prometheus.CounterVec // by channel
	DiffsSuppressed  *prometheus.CounterVec // by channel
	DeliveryFailures *prometheus.CounterVec // by channel
	SnapshotErrors   *prometheus.CounterVec // by channel
	DeliveryLag      *prometheus.HistogramVec

	// Kafka ingest
	KafkaMessages *prometheus.CounterVec
}
