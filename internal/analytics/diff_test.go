package analytics

import (
	"testing"
	"time"
)

func metricsSnapshot(views int64, generatedAt time.Time) *Snapshot {
	return &Snapshot{
		Channel: ChannelMetrics,
		Metrics: &MetricsData{
			TotalViews:     views,
			TotalReach:     36800,
			Conversions:    1847,
			EngagementRate: "4.2%",
			ViewsChange:    12.3,
		},
		Freshness: Freshness{GeneratedAt: generatedAt, Realtime: true},
	}
}

func TestDiffFirstDeliveryReturnsFullSnapshot(t *testing.T) {
	curr := metricsSnapshot(45230, time.Now())

	delta := Diff(nil, curr)
	if delta == nil {
		t.Fatal("expected full delta on first delivery")
	}
	if delta.Metrics == nil {
		t.Fatal("expected metrics section")
	}
	if delta.Metrics.TotalViews == nil || *delta.Metrics.TotalViews != 45230 {
		t.Fatalf("expected totalViews 45230, got %v", delta.Metrics.TotalViews)
	}
	if delta.Metrics.EngagementRate == nil || *delta.Metrics.EngagementRate != "4.2%" {
		t.Fatalf("expected full engagement rate, got %v", delta.Metrics.EngagementRate)
	}
	if delta.Freshness != curr.Freshness {
		t.Fatal("expected freshness carried through")
	}
}

func TestDiffIdenticalSnapshotsSuppressed(t *testing.T) {
	at := time.Now()
	prev := metricsSnapshot(45230, at)
	curr := metricsSnapshot(45230, at)

	if delta := Diff(prev, curr); delta != nil {
		t.Fatalf("expected nil delta for identical snapshots, got %+v", delta)
	}
}

func TestDiffFreshnessAloneDoesNotTriggerDelivery(t *testing.T) {
	prev := metricsSnapshot(45230, time.Now())
	curr := metricsSnapshot(45230, time.Now().Add(5*time.Second))

	if delta := Diff(prev, curr); delta != nil {
		t.Fatalf("expected nil delta when only freshness changed, got %+v", delta)
	}
}

func TestDiffSingleChangedMetricField(t *testing.T) {
	prev := metricsSnapshot(45230, time.Now())
	curr := metricsSnapshot(45231, time.Now())

	delta := Diff(prev, curr)
	if delta == nil {
		t.Fatal("expected delta for changed metric")
	}
	if delta.Metrics == nil || delta.Metrics.TotalViews == nil {
		t.Fatal("expected totalViews in delta")
	}
	if *delta.Metrics.TotalViews != 45231 {
		t.Fatalf("expected totalViews 45231, got %d", *delta.Metrics.TotalViews)
	}
	// Unchanged fields stay out of the payload.
	if delta.Metrics.TotalReach != nil || delta.Metrics.EngagementRate != nil {
		t.Fatalf("expected unchanged fields omitted, got %+v", delta.Metrics)
	}
}

func TestDiffChartsWholeFieldReplacement(t *testing.T) {
	trend := []TrendPoint{
		{Date: "2026-08-27", Views: 800, Engagement: 3.5, Conversions: 20},
		{Date: "2026-08-28", Views: 900, Engagement: 3.8, Conversions: 25},
	}
	platforms := []PlatformScore{{Platform: "Facebook", Performance: 72}}

	prev := &Snapshot{
		Channel: ChannelCharts,
		Charts:  &ChartData{PerformanceTrend: trend, PlatformPerformance: platforms},
	}

	changedTrend := append([]TrendPoint(nil), trend...)
	changedTrend[1].Views = 950
	curr := &Snapshot{
		Channel: ChannelCharts,
		Charts:  &ChartData{PerformanceTrend: changedTrend, PlatformPerformance: platforms},
	}

	delta := Diff(prev, curr)
	if delta == nil || delta.Charts == nil {
		t.Fatal("expected charts delta")
	}
	if len(delta.Charts.PerformanceTrend) != 2 {
		t.Fatalf("expected whole trend series replaced, got %d points", len(delta.Charts.PerformanceTrend))
	}
	if delta.Charts.PlatformPerformance != nil {
		t.Fatal("expected unchanged platform series omitted")
	}
}

func TestDiffAlertsReplacedWhole(t *testing.T) {
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	prev := &Snapshot{
		Channel: ChannelAlerts,
		Alerts:  &AlertData{Alerts: []Alert{{Message: "engagement dip", Severity: "warning", RaisedAt: at}}},
	}
	curr := &Snapshot{
		Channel: ChannelAlerts,
		Alerts: &AlertData{Alerts: []Alert{
			{Message: "engagement dip", Severity: "warning", RaisedAt: at},
			{Message: "reach up 15%", Severity: "info", RaisedAt: at.Add(time.Minute)},
		}},
	}

	delta := Diff(prev, curr)
	if delta == nil || delta.Alerts == nil {
		t.Fatal("expected alerts delta")
	}
	if len(delta.Alerts.Alerts) != 2 {
		t.Fatalf("expected full alert list, got %d", len(delta.Alerts.Alerts))
	}

	if again := Diff(curr, curr); again != nil {
		t.Fatalf("expected nil delta for unchanged alerts, got %+v", again)
	}
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	prev := metricsSnapshot(100, time.Now())
	curr := metricsSnapshot(200, time.Now())

	_ = Diff(prev, curr)

	if prev.Metrics.TotalViews != 100 || curr.Metrics.TotalViews != 200 {
		t.Fatal("diff mutated its inputs")
	}
}

func TestParseChannel(t *testing.T) {
	for _, name := range []string{"metrics", "charts", "alerts"} {
		if _, err := ParseChannel(name); err != nil {
			t.Fatalf("expected %s to parse, got %v", name, err)
		}
	}
	if _, err := ParseChannel("firehose"); err == nil {
		t.Fatal("expected unknown channel error")
	}
}

func TestMetricsSelect(t *testing.T) {
	m := &MetricsData{TotalViews: 42, EngagementRate: "4.2%"}

	out := m.Select([]string{"totalViews", "engagementRate", "bogus"})
	if len(out) != 2 {
		t.Fatalf("expected 2 selected fields, got %d", len(out))
	}
	if out["totalViews"] != int64(42) {
		t.Fatalf("unexpected totalViews: %v", out["totalViews"])
	}
	if _, ok := out["bogus"]; ok {
		t.Fatal("unknown metric name must be skipped")
	}
}
