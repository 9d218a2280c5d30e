package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/thrivesend/pulse/internal/analytics"
	"github.com/thrivesend/pulse/internal/logging"
	"github.com/thrivesend/pulse/internal/metrics"
)

// Default tick periods per channel. Alerts move slower than metrics.
const (
	DefaultMetricsTick = 5 * time.Second
	DefaultChartsTick  = 5 * time.Second
	DefaultAlertsTick  = 15 * time.Second
)

// SchedulerConfig wires a broadcast scheduler.
type SchedulerConfig struct {
	Subscriptions *Subscriptions
	Source        analytics.Source
	Logger        logging.Logger
	Metrics       *metrics.Metrics
	Clock         clockwork.Clock
	Periods       map[analytics.Channel]time.Duration

	// Evict force-closes a connection after a delivery failure.
	Evict func(*Connection, string)
}

// Scheduler drives the periodic broadcast cycle. One loop for all
// channels and connections; there are no per-connection timers. Channels
// with zero subscribers cost nothing: the snapshot fetch is skipped.
type Scheduler struct {
	subs    *Subscriptions
	source  analytics.Source
	logger  logging.Logger
	metrics *metrics.Metrics
	clock   clockwork.Clock
	periods map[analytics.Channel]time.Duration
	evict   func(*Connection, string)
}

// NewScheduler creates a broadcast scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	periods := map[analytics.Channel]time.Duration{
		analytics.ChannelMetrics: DefaultMetricsTick,
		analytics.ChannelCharts:  DefaultChartsTick,
		analytics.ChannelAlerts:  DefaultAlertsTick,
	}
	for ch, d := range cfg.Periods {
		if d > 0 {
			periods[ch] = d
		}
	}

	return &Scheduler{
		subs:    cfg.Subscriptions,
		source:  cfg.Source,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		periods: periods,
		evict:   cfg.Evict,
	}
}

// Run drives ticks until the context is cancelled. A failure anywhere in a
// tick never stops the loop.
func (s *Scheduler) Run(ctx context.Context) {
	metricsTicker := s.clock.NewTicker(s.periods[analytics.ChannelMetrics])
	chartsTicker := s.clock.NewTicker(s.periods[analytics.ChannelCharts])
	alertsTicker := s.clock.NewTicker(s.periods[analytics.ChannelAlerts])
	defer metricsTicker.Stop()
	defer chartsTicker.Stop()
	defer alertsTicker.Stop()

	s.logger.WithFields(logging.Fields{
		"metrics_tick": s.periods[analytics.ChannelMetrics].String(),
		"charts_tick":  s.periods[analytics.ChannelCharts].String(),
		"alerts_tick":  s.periods[analytics.ChannelAlerts].String(),
	}).Info("Broadcast scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Broadcast scheduler stopped")
			return
		case <-metricsTicker.Chan():
			s.Tick(ctx, analytics.ChannelMetrics)
		case <-chartsTicker.Chan():
			s.Tick(ctx, analytics.ChannelCharts)
		case <-alertsTicker.Chan():
			s.Tick(ctx, analytics.ChannelAlerts)
		}
	}
}

// Tick runs one broadcast cycle for a channel: collect subscribers, fetch
// one snapshot per organization, diff per subscriber, send what changed.
func (s *Scheduler) Tick(ctx context.Context, channel analytics.Channel) {
	subscribers := s.subs.SubscribersOf(channel)
	if len(subscribers) == 0 {
		return
	}

	if s.metrics != nil {
		s.metrics.BroadcastTicks.WithLabelValues(channel.String()).Inc()
	}

	byOrg := make(map[string][]*Connection)
	for _, c := range subscribers {
		byOrg[c.OrganizationID] = append(byOrg[c.OrganizationID], c)
	}

	for organizationID, conns := range byOrg {
		snapshot, err := s.source.Snapshot(ctx, organizationID, channel)
		if err != nil {
			// This channel+organization is skipped this tick only;
			// the next tick retries.
			if s.metrics != nil {
				s.metrics.SnapshotErrors.WithLabelValues(channel.String()).Inc()
			}
			s.logger.WithError(err).WithFields(logging.Fields{
				"channel":         channel,
				"organization_id": organizationID,
			}).Warn("Snapshot fetch failed, skipping this tick")
			continue
		}

		for _, c := range conns {
			s.deliver(c, channel, snapshot)
		}
	}
}

// Push sends the current snapshot for one channel to one connection,
// bypassing the tick schedule. Used for the immediate first push on
// subscribe.
func (s *Scheduler) Push(ctx context.Context, c *Connection, channel analytics.Channel) {
	snapshot, err := s.source.Snapshot(ctx, c.OrganizationID, channel)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SnapshotErrors.WithLabelValues(channel.String()).Inc()
		}
		s.logger.WithError(err).WithFields(logging.Fields{
			"channel":       channel,
			"connection_id": c.ID,
		}).Warn("Snapshot fetch failed for initial push")
		return
	}
	s.deliver(c, channel, snapshot)
}

func (s *Scheduler) deliver(c *Connection, channel analytics.Channel, snapshot *analytics.Snapshot) {
	delta := analytics.Diff(c.LastSent(channel), snapshot)
	if delta == nil {
		if s.metrics != nil {
			s.metrics.DiffsSuppressed.WithLabelValues(channel.String()).Inc()
		}
		return
	}

	msgType := channel.MessageType()
	payload, err := json.Marshal(ServerMessage{
		Type:      msgType,
		Channel:   channel.String(),
		Data:      delta,
		Timestamp: snapshot.Freshness.GeneratedAt,
	})
	if err != nil {
		s.logger.WithError(err).WithField("channel", channel).Error("Failed to marshal update")
		return
	}

	if err := c.Enqueue(payload); err != nil {
		// Last-sent is not advanced; the next tick diffs against the
		// same baseline. The connection itself is gone though.
		if s.metrics != nil {
			s.metrics.DeliveryFailures.WithLabelValues(channel.String()).Inc()
		}
		s.logger.WithError(err).WithFields(logging.Fields{
			"channel":       channel,
			"connection_id": c.ID,
		}).Warn("Delivery failed, evicting connection")
		if s.evict != nil {
			s.evict(c, "delivery failure")
		}
		return
	}

	c.SetLastSent(channel, snapshot)

	if s.metrics != nil {
		s.metrics.MessagesOut.WithLabelValues(msgType).Inc()
		s.metrics.DeliveryLag.WithLabelValues(channel.String()).Observe(time.Since(snapshot.Freshness.GeneratedAt).Seconds())
	}
}
