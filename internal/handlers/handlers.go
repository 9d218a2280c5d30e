// Package handlers contains the HTTP handlers for the realtime analytics
// service.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thrivesend/pulse/internal/kafka"
	"github.com/thrivesend/pulse/internal/logging"
	"github.com/thrivesend/pulse/internal/ws"
)

// PulseHandlers contains the HTTP handlers for the service
type PulseHandlers struct {
	hub       *ws.Hub
	logger    logging.Logger
	startTime time.Time
}

// NewPulseHandlers creates a new handlers instance
func NewPulseHandlers(hub *ws.Hub, logger logging.Logger) *PulseHandlers {
	return &PulseHandlers{
		hub:       hub,
		logger:    logger,
		startTime: time.Now(),
	}
}

// HandleWebSocket serves WebSocket connections for realtime analytics
func (h *PulseHandlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// HandleStatus reports hub state for dashboards and probes
func (h *PulseHandlers) HandleStatus(c *gin.Context) {
	stats := h.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"service":              "pulse",
		"activeConnections":    stats.ActiveConnections,
		"channelSubscriptions": stats.ChannelSubscriptions,
		"uptime":               time.Since(h.startTime).String(),
		"timestamp":            time.Now().UTC(),
	})
}

// TriggerRequest is a server-initiated event injection, used by internal
// services and operators to push an event to an organization's clients.
type TriggerRequest struct {
	OrganizationID string          `json:"organizationId"`
	EventType      string          `json:"eventType"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// HandleTrigger fans a posted event out to the organization's connections
func (h *PulseHandlers) HandleTrigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.OrganizationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizationId is required"})
		return
	}
	if req.EventType == "" {
		req.EventType = "custom"
	}

	notified := h.hub.BroadcastAnalyticsEvent(req.OrganizationID, req.EventType, req.Data, "")

	h.logger.WithFields(logging.Fields{
		"organization_id": req.OrganizationID,
		"event_type":      req.EventType,
		"notified":        notified,
	}).Info("Triggered analytics event")

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"clientsNotified": notified,
	})
}

// HandleNotFound provides a custom 404 handler
func (h *PulseHandlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "not_found",
		"service": "pulse",
		"message": "Endpoint not found",
	})
}

// HandleEvent processes an event from the bus and broadcasts it to the
// owning organization's connections.
func (h *PulseHandlers) HandleEvent(event kafka.Event) error {
	if event.OrganizationID == "" {
		// No organization context; drop to avoid cross-organization
		// leakage.
		h.logger.WithFields(logging.Fields{
			"event_type": event.Type,
			"source":     event.Source,
		}).Warn("Dropping event without organizationId")
		return nil
	}

	notified := h.hub.BroadcastAnalyticsEvent(event.OrganizationID, event.Type, event.Data, "")

	h.logger.WithFields(logging.Fields{
		"event_type":      event.Type,
		"source":          event.Source,
		"organization_id": event.OrganizationID,
		"notified":        notified,
	}).Debug("Processed bus event for WebSocket broadcast")

	return nil
}
