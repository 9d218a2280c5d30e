package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/thrivesend/pulse/internal/analytics"
	"github.com/thrivesend/pulse/internal/logging"
	"github.com/thrivesend/pulse/internal/metrics"
	"github.com/thrivesend/pulse/internal/ratelimit"
)

// Default liveness settings. The timeout is 3x the expected 30s client
// ping interval.
const (
	DefaultHeartbeatTimeout = 90 * time.Second
	DefaultSweepInterval    = 30 * time.Second

	pushTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Config wires a hub. Limiter, Source and Logger are required; the rest
// defaults.
type Config struct {
	Limiter ratelimit.Limiter
	Source  analytics.Source
	Logger  logging.Logger
	Metrics *metrics.Metrics
	Clock   clockwork.Clock

	Periods          map[analytics.Channel]time.Duration
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
}

// Hub is the ingress orchestrator: it admits connections, routes inbound
// control messages to the registry, subscription manager, rate limiter and
// heartbeat monitor, and owns the broadcast scheduler.
type Hub struct {
	registry   *Registry
	subs       *Subscriptions
	heartbeats *HeartbeatMonitor
	scheduler  *Scheduler
	limiter    ratelimit.Limiter
	logger     logging.Logger
	metrics    *metrics.Metrics
	clock      clockwork.Clock

	heartbeatTimeout time.Duration
	sweepInterval    time.Duration
}

// Stats is the hub state exposed on the status endpoint.
type Stats struct {
	ActiveConnections    int            `json:"activeConnections"`
	ChannelSubscriptions map[string]int `json:"channelSubscriptions"`
}

// NewHub creates a hub and its collaborators.
func NewHub(cfg Config) *Hub {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	registry := NewRegistry()
	subs := NewSubscriptions(registry)

	h := &Hub{
		registry:         registry,
		subs:             subs,
		heartbeats:       NewHeartbeatMonitor(registry, cfg.Clock),
		limiter:          cfg.Limiter,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		clock:            cfg.Clock,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		sweepInterval:    cfg.SweepInterval,
	}

	h.scheduler = NewScheduler(SchedulerConfig{
		Subscriptions: subs,
		Source:        cfg.Source,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
		Clock:         cfg.Clock,
		Periods:       cfg.Periods,
		Evict:         h.drop,
	})

	return h
}

// Run starts the broadcast scheduler and the heartbeat sweep loop and
// blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	go h.scheduler.Run(ctx)

	sweepTicker := h.clock.NewTicker(h.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.Chan():
			h.Sweep()
		}
	}
}

// Sweep force-closes connections whose heartbeat went stale and prunes
// expired rate-limit windows.
func (h *Hub) Sweep() {
	for _, c := range h.heartbeats.Stale(h.heartbeatTimeout) {
		h.drop(c, "heartbeat timeout")
	}
	if pruner, ok := h.limiter.(interface{ Prune() }); ok {
		pruner.Prune()
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and admits
// it. Admission parameters come from the query string; authentication is
// assumed done upstream.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	organizationID := r.URL.Query().Get("organizationId")
	if organizationID == "" {
		http.Error(w, "organizationId is required", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	c := newConnection(h, wsConn, uuid.New().String(), organizationID, userID, h.clock.Now(), h.logger)
	if err := h.registry.Register(c); err != nil {
		h.logger.WithError(err).Error("Failed to register connection")
		wsConn.Close()
		return
	}

	if h.metrics != nil {
		h.metrics.ActiveConnections.WithLabelValues(organizationID).Inc()
	}
	h.logger.WithFields(logging.Fields{
		"connection_id":   c.ID,
		"organization_id": organizationID,
		"client_count":    h.registry.Len(),
	}).Info("Client connected")

	h.send(c, ServerMessage{
		Type:         TypeConnectionAck,
		ConnectionID: c.ID,
		Timestamp:    h.clock.Now().UTC(),
	})

	go c.writePump()
	go c.readPump()
}

// BroadcastAnalyticsEvent fans an event out to every connection of the
// organization except excludeID (empty means no exclusion). Returns the
// number of connections notified.
func (h *Hub) BroadcastAnalyticsEvent(organizationID, eventType string, data interface{}, excludeID string) int {
	payload, err := json.Marshal(ServerMessage{
		Type:      TypeAnalyticsEvent,
		EventType: eventType,
		Data:      data,
		Timestamp: h.clock.Now().UTC(),
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal analytics event")
		return 0
	}

	notified := 0
	for _, peer := range h.registry.ListByOrganization(organizationID) {
		if peer.ID == excludeID {
			continue
		}
		if err := peer.Enqueue(payload); err != nil {
			h.drop(peer, "delivery failure")
			continue
		}
		notified++
	}

	if h.metrics != nil && notified > 0 {
		h.metrics.MessagesOut.WithLabelValues(TypeAnalyticsEvent).Add(float64(notified))
	}
	return notified
}

// Stats returns the current hub state.
func (h *Hub) Stats() Stats {
	counts := h.subs.Counts()
	channelCounts := make(map[string]int, len(counts))
	for ch, n := range counts {
		channelCounts[ch.String()] = n
	}
	return Stats{
		ActiveConnections:    h.registry.Len(),
		ChannelSubscriptions: channelCounts,
	}
}

// Registry exposes the connection registry for collaborators and tests.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// handleMessage dispatches one inbound message. Failures are isolated to
// the message: a malformed payload gets an error reply and the connection
// stays open.
func (h *Hub) handleMessage(c *Connection, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		h.sendError(c, "invalid message format")
		return
	}

	if h.metrics != nil {
		h.metrics.MessagesIn.WithLabelValues(msg.Type).Inc()
	}

	// Heartbeats are never rate limited; penalizing liveness signals
	// would kill well-behaved clients under load.
	if msg.Type == TypeHeartbeat {
		h.heartbeats.Touch(c)
		h.send(c, ServerMessage{Type: TypeHeartbeat, Timestamp: h.clock.Now().UTC()})
		return
	}

	allowed, err := h.limiter.Allow(context.Background(), c.Identity())
	if err != nil {
		// Limiter backend trouble fails open: gating control traffic
		// is not worth dropping it on an infrastructure hiccup.
		h.logger.WithError(err).Warn("Rate limiter error, allowing message")
		allowed = true
	}
	if !allowed {
		// Dropped silently; no reply that would tell an abusive
		// client where the limit sits.
		if h.metrics != nil {
			h.metrics.RateLimited.WithLabelValues(msg.Type).Inc()
		}
		h.logger.WithFields(logging.Fields{
			"connection_id": c.ID,
			"identity":      c.Identity(),
			"type":          msg.Type,
		}).Debug("Rate limited control message dropped")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		h.handleSubscribe(c, msg.Channel)
	case TypeUnsubscribe:
		h.handleUnsubscribe(c, msg.Channel)
	case TypeRequestMetrics:
		h.handleRequestMetrics(c, msg.Metrics)
	case TypeAnalyticsEvent:
		h.handleAnalyticsEvent(c, msg)
	default:
		h.sendError(c, fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (h *Hub) handleSubscribe(c *Connection, channelName string) {
	channel, err := analytics.ParseChannel(channelName)
	if err != nil {
		h.sendError(c, fmt.Sprintf("unknown channel: %s", channelName))
		return
	}

	if !c.Subscribed(channel) {
		c.Subscribe(channel)
		if h.metrics != nil {
			h.metrics.Subscriptions.WithLabelValues(channel.String()).Inc()
		}
	}
	h.logger.WithFields(logging.Fields{
		"connection_id": c.ID,
		"channel":       channel,
	}).Info("Client subscribed")

	// First snapshot goes out now, not on the next tick.
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	h.scheduler.Push(ctx, c, channel)
}

func (h *Hub) handleUnsubscribe(c *Connection, channelName string) {
	channel, err := analytics.ParseChannel(channelName)
	if err != nil {
		h.sendError(c, fmt.Sprintf("unknown channel: %s", channelName))
		return
	}

	if c.Subscribed(channel) {
		c.Unsubscribe(channel)
		if h.metrics != nil {
			h.metrics.Subscriptions.WithLabelValues(channel.String()).Dec()
		}
	}
	h.logger.WithFields(logging.Fields{
		"connection_id": c.ID,
		"channel":       channel,
	}).Info("Client unsubscribed")
}

// handleRequestMetrics serves a one-shot pull. It bypasses the tick
// schedule and does not touch the last-sent cache: a pull is not a
// delivery in the diff stream.
func (h *Hub) handleRequestMetrics(c *Connection, names []string) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	snapshot, err := h.scheduler.source.Snapshot(ctx, c.OrganizationID, analytics.ChannelMetrics)
	if err != nil {
		h.logger.WithError(err).WithField("connection_id", c.ID).Warn("Metrics pull failed")
		h.sendError(c, "metrics temporarily unavailable")
		return
	}

	var data interface{}
	if len(names) > 0 && snapshot.Metrics != nil {
		data = snapshot.Metrics.Select(names)
	} else {
		data = snapshot.Metrics
	}

	h.send(c, ServerMessage{
		Type:      TypeMetricUpdate,
		Channel:   analytics.ChannelMetrics.String(),
		Data:      data,
		Timestamp: snapshot.Freshness.GeneratedAt,
	})
}

func (h *Hub) handleAnalyticsEvent(c *Connection, msg ClientMessage) {
	if msg.EventType == "" {
		h.sendError(c, "eventType is required")
		return
	}

	// The sender is excluded: it already knows its own event.
	notified := h.BroadcastAnalyticsEvent(c.OrganizationID, msg.EventType, msg.Data, c.ID)
	h.logger.WithFields(logging.Fields{
		"connection_id":   c.ID,
		"organization_id": c.OrganizationID,
		"event_type":      msg.EventType,
		"notified":        notified,
	}).Debug("Analytics event fanned out")
}

// drop force-closes a connection and removes it from the registry.
// Idempotent: concurrent callers (read pump exit, sweep, delivery
// failure) race safely on the registry.
func (h *Hub) drop(c *Connection, reason string) {
	if removed := h.registry.Unregister(c.ID); removed == nil {
		return
	}
	c.Close()

	if h.metrics != nil {
		h.metrics.ActiveConnections.WithLabelValues(c.OrganizationID).Dec()
		for _, ch := range c.Channels() {
			h.metrics.Subscriptions.WithLabelValues(ch.String()).Dec()
		}
	}
	h.logger.WithFields(logging.Fields{
		"connection_id": c.ID,
		"reason":        reason,
		"client_count":  h.registry.Len(),
	}).Info("Client disconnected")
}

func (h *Hub) send(c *Connection, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal server message")
		return
	}
	if err := c.Enqueue(payload); err != nil {
		h.drop(c, "delivery failure")
	}
}

func (h *Hub) sendError(c *Connection, message string) {
	h.send(c, ServerMessage{
		Type:      TypeError,
		Message:   message,
		Timestamp: h.clock.Now().UTC(),
	})
}
