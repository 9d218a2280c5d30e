package analytics

import (
	"context"
	"time"
)

// MetricsData is the flat metric set published on the metrics channel.
type MetricsData struct {
	TotalViews        int64   `json:"totalViews"`
	TotalReach        int64   `json:"totalReach"`
	Conversions       int64   `json:"conversions"`
	EngagementRate    string  `json:"engagementRate"`
	ViewsChange       float64 `json:"viewsChange"`
	ReachChange       float64 `json:"reachChange"`
	ConversionsChange float64 `json:"conversionsChange"`
	EngagementChange  float64 `json:"engagementChange"`
}

// Select returns only the requested metric fields, keyed by their wire
// names. Unknown names are skipped. Used by one-shot metric pulls.
func (m *MetricsData) Select(names []string) map[string]interface{} {
	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		switch name {
		case "totalViews":
			out[name] = m.TotalViews
		case "totalReach":
			out[name] = m.TotalReach
		case "conversions":
			out[name] = m.Conversions
		case "engagementRate":
			out[name] = m.EngagementRate
		case "viewsChange":
			out[name] = m.ViewsChange
		case "reachChange":
			out[name] = m.ReachChange
		case "conversionsChange":
			out[name] = m.ConversionsChange
		case "engagementChange":
			out[name] = m.EngagementChange
		}
	}
	return out
}

// TrendPoint is one day of the performance trend series.
type TrendPoint struct {
	Date        string  `json:"date"`
	Views       int64   `json:"views"`
	Engagement  float64 `json:"engagement"`
	Conversions int64   `json:"conversions"`
}

// PlatformScore is one platform's performance score.
type PlatformScore struct {
	Platform    string  `json:"platform"`
	Performance float64 `json:"performance"`
}

// ChartData holds the collection-valued series published on the charts
// channel. Each series is diffed at whole-field granularity.
type ChartData struct {
	PerformanceTrend    []TrendPoint    `json:"performanceTrend"`
	PlatformPerformance []PlatformScore `json:"platformPerformance"`
}

// Alert is a single alert entry on the alerts channel.
type Alert struct {
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
	RaisedAt time.Time `json:"raisedAt"`
}

// AlertData holds the active alerts for an organization.
type AlertData struct {
	Alerts []Alert `json:"alerts"`
}

// Freshness is operational metadata attached to every delivered update.
// It never participates in change detection.
type Freshness struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Realtime    bool      `json:"realTime"`
}

// Snapshot is the immutable state of one channel's data for one
// organization at a point in time. Exactly one of the payload sections is
// populated, matching the channel. Snapshots are shared read-only across
// all subscribers of a tick; never mutate one after it is produced.
type Snapshot struct {
	Channel   Channel      `json:"channel"`
	Metrics   *MetricsData `json:"metrics,omitempty"`
	Charts    *ChartData   `json:"charts,omitempty"`
	Alerts    *AlertData   `json:"alerts,omitempty"`
	Freshness Freshness    `json:"freshness"`
}

// Source produces the current snapshot for an organization and channel.
// The hub injects a concrete implementation; snapshot computation itself
// is outside the distribution subsystem.
type Source interface {
	Snapshot(ctx context.Context, organizationID string, channel Channel) (*Snapshot, error)
}
