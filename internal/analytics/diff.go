package analytics

import (
	"bytes"
	"encoding/json"
)

// MetricsDelta carries only the metric fields that changed since the last
// delivery. Pointer fields keep the wire payload sparse.
type MetricsDelta struct {
	TotalViews        *int64   `json:"totalViews,omitempty"`
	TotalReach        *int64   `json:"totalReach,omitempty"`
	Conversions       *int64   `json:"conversions,omitempty"`
	EngagementRate    *string  `json:"engagementRate,omitempty"`
	ViewsChange       *float64 `json:"viewsChange,omitempty"`
	ReachChange       *float64 `json:"reachChange,omitempty"`
	ConversionsChange *float64 `json:"conversionsChange,omitempty"`
	EngagementChange  *float64 `json:"engagementChange,omitempty"`
}

// ChartsDelta carries only the chart series whose serialized form changed.
// Series are replaced whole; there is no element-level diffing.
type ChartsDelta struct {
	PerformanceTrend    []TrendPoint    `json:"performanceTrend,omitempty"`
	PlatformPerformance []PlatformScore `json:"platformPerformance,omitempty"`
}

// Delta is the minimal update for one connection's delivery history on one
// channel. Freshness is always present; the payload sections only when
// something actually changed.
type Delta struct {
	Channel   Channel      `json:"channel"`
	Metrics   *MetricsDelta `json:"metrics,omitempty"`
	Charts    *ChartsDelta  `json:"charts,omitempty"`
	Alerts    *AlertData    `json:"alerts,omitempty"`
	Freshness Freshness     `json:"freshness"`
}

// Diff computes the minimal delta between the last snapshot delivered to a
// connection and the current one. A nil previous snapshot means first
// delivery: the full current snapshot is returned. A nil result means
// nothing besides freshness metadata changed and delivery must be
// suppressed. Diff is pure: no I/O, no side effects, no mutation of either
// input.
func Diff(previous, current *Snapshot) *Delta {
	if current == nil {
		return nil
	}
	if previous == nil {
		return fullDelta(current)
	}

	delta := &Delta{
		Channel:   current.Channel,
		Freshness: current.Freshness,
	}
	changed := false

	if current.Metrics != nil {
		if md := diffMetrics(previous.Metrics, current.Metrics); md != nil {
			delta.Metrics = md
			changed = true
		}
	}

	if current.Charts != nil {
		if cd := diffCharts(previous.Charts, current.Charts); cd != nil {
			delta.Charts = cd
			changed = true
		}
	}

	if current.Alerts != nil {
		prev := previous.Alerts
		if prev == nil || !jsonEqual(prev.Alerts, current.Alerts.Alerts) {
			delta.Alerts = current.Alerts
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return delta
}

func fullDelta(s *Snapshot) *Delta {
	delta := &Delta{
		Channel:   s.Channel,
		Freshness: s.Freshness,
	}
	if s.Metrics != nil {
		m := *s.Metrics
		delta.Metrics = &MetricsDelta{
			TotalViews:        &m.TotalViews,
			TotalReach:        &m.TotalReach,
			Conversions:       &m.Conversions,
			EngagementRate:    &m.EngagementRate,
			ViewsChange:       &m.ViewsChange,
			ReachChange:       &m.ReachChange,
			ConversionsChange: &m.ConversionsChange,
			EngagementChange:  &m.EngagementChange,
		}
	}
	if s.Charts != nil {
		delta.Charts = &ChartsDelta{
			PerformanceTrend:    s.Charts.PerformanceTrend,
			PlatformPerformance: s.Charts.PlatformPerformance,
		}
	}
	if s.Alerts != nil {
		delta.Alerts = s.Alerts
	}
	return delta
}

func diffMetrics(prev, curr *MetricsData) *MetricsDelta {
	if prev == nil {
		full := fullDelta(&Snapshot{Metrics: curr})
		return full.Metrics
	}

	md := &MetricsDelta{}
	changed := false
	if prev.TotalViews != curr.TotalViews {
		md.TotalViews = &curr.TotalViews
		changed = true
	}
	if prev.TotalReach != curr.TotalReach {
		md.TotalReach = &curr.TotalReach
		changed = true
	}
	if prev.Conversions != curr.Conversions {
		md.Conversions = &curr.Conversions
		changed = true
	}
	if prev.EngagementRate != curr.EngagementRate {
		md.EngagementRate = &curr.EngagementRate
		changed = true
	}
	if prev.ViewsChange != curr.ViewsChange {
		md.ViewsChange = &curr.ViewsChange
		changed = true
	}
	if prev.ReachChange != curr.ReachChange {
		md.ReachChange = &curr.ReachChange
		changed = true
	}
	if prev.ConversionsChange != curr.ConversionsChange {
		md.ConversionsChange = &curr.ConversionsChange
		changed = true
	}
	if prev.EngagementChange != curr.EngagementChange {
		md.EngagementChange = &curr.EngagementChange
		changed = true
	}

	if !changed {
		return nil
	}
	return md
}

func diffCharts(prev, curr *ChartData) *ChartsDelta {
	cd := &ChartsDelta{}
	changed := false

	if prev == nil || !jsonEqual(prev.PerformanceTrend, curr.PerformanceTrend) {
		cd.PerformanceTrend = curr.PerformanceTrend
		changed = true
	}
	if prev == nil || !jsonEqual(prev.PlatformPerformance, curr.PlatformPerformance) {
		cd.PlatformPerformance = curr.PlatformPerformance
		changed = true
	}

	if !changed {
		return nil
	}
	return cd
}

// jsonEqual compares two values by serialized form. Marshal failures count
// as a change so a malformed value is delivered rather than silently held
// back.
func jsonEqual(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
