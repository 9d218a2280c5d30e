package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ClickHouseSource serves snapshots from the analytics store. One query
// per organization and channel per tick; the scheduler shares the result
// across all subscribers of that organization.
type ClickHouseSource struct {
	db *sql.DB
}

// NewClickHouseSource creates a snapshot source backed by ClickHouse.
func NewClickHouseSource(db *sql.DB) *ClickHouseSource {
	return &ClickHouseSource{db: db}
}

// Snapshot implements Source.
func (s *ClickHouseSource) Snapshot(ctx context.Context, organizationID string, channel Channel) (*Snapshot, error) {
	snap := &Snapshot{
		Channel: channel,
		Freshness: Freshness{
			GeneratedAt: time.Now().UTC(),
			Realtime:    true,
		},
	}

	var err error
	switch channel {
	case ChannelMetrics:
		snap.Metrics, err = s.metrics(ctx, organizationID)
	case ChannelCharts:
		snap.Charts, err = s.charts(ctx, organizationID)
	case ChannelAlerts:
		snap.Alerts, err = s.alerts(ctx, organizationID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *ClickHouseSource) metrics(ctx context.Context, organizationID string) (*MetricsData, error) {
	var m MetricsData
	var engagementRate float64

	err := s.db.QueryRowContext(ctx, `
		SELECT
			sum(views) AS total_views,
			sum(reach) AS total_reach,
			sum(conversions) AS total_conversions,
			avg(engagement_rate) AS engagement_rate
		FROM content_metrics
		WHERE organization_id = ?
		AND timestamp >= now() - INTERVAL 24 HOUR
	`, organizationID).Scan(&m.TotalViews, &m.TotalReach, &m.Conversions, &engagementRate)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	m.EngagementRate = fmt.Sprintf("%.1f%%", engagementRate)

	// Day-over-day change percentages against the preceding 24h window.
	var prevViews, prevReach, prevConversions int64
	var prevEngagement float64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			sum(views),
			sum(reach),
			sum(conversions),
			avg(engagement_rate)
		FROM content_metrics
		WHERE organization_id = ?
		AND timestamp >= now() - INTERVAL 48 HOUR
		AND timestamp < now() - INTERVAL 24 HOUR
	`, organizationID).Scan(&prevViews, &prevReach, &prevConversions, &prevEngagement)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query previous metrics: %w", err)
	}

	m.ViewsChange = changePercent(prevViews, m.TotalViews)
	m.ReachChange = changePercent(prevReach, m.TotalReach)
	m.ConversionsChange = changePercent(prevConversions, m.Conversions)
	if prevEngagement != 0 {
		m.EngagementChange = (engagementRate - prevEngagement) / prevEngagement * 100
	}

	return &m, nil
}

func (s *ClickHouseSource) charts(ctx context.Context, organizationID string) (*ChartData, error) {
	cd := &ChartData{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			toDate(timestamp) AS day,
			sum(views) AS views,
			avg(engagement_rate) AS engagement,
			sum(conversions) AS conversions
		FROM content_metrics
		WHERE organization_id = ?
		AND timestamp >= now() - INTERVAL 7 DAY
		GROUP BY day
		ORDER BY day
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query performance trend: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p TrendPoint
		var day time.Time
		if err := rows.Scan(&day, &p.Views, &p.Engagement, &p.Conversions); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		p.Date = day.Format("2006-01-02")
		cd.PerformanceTrend = append(cd.PerformanceTrend, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate performance trend: %w", err)
	}

	platformRows, err := s.db.QueryContext(ctx, `
		SELECT
			platform,
			avg(performance_score) AS performance
		FROM platform_metrics
		WHERE organization_id = ?
		AND timestamp >= now() - INTERVAL 24 HOUR
		GROUP BY platform
		ORDER BY performance DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query platform performance: %w", err)
	}
	defer platformRows.Close()

	for platformRows.Next() {
		var p PlatformScore
		if err := platformRows.Scan(&p.Platform, &p.Performance); err != nil {
			return nil, fmt.Errorf("scan platform score: %w", err)
		}
		cd.PlatformPerformance = append(cd.PlatformPerformance, p)
	}
	if err := platformRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platform performance: %w", err)
	}

	return cd, nil
}

func (s *ClickHouseSource) alerts(ctx context.Context, organizationID string) (*AlertData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message, severity, raised_at
		FROM analytics_alerts
		WHERE organization_id = ?
		AND raised_at >= now() - INTERVAL 24 HOUR
		ORDER BY raised_at DESC
		LIMIT 20
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	ad := &AlertData{}
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.Message, &a.Severity, &a.RaisedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		ad.Alerts = append(ad.Alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}

	return ad, nil
}

func changePercent(prev, curr int64) float64 {
	if prev == 0 {
		return 0
	}
	return float64(curr-prev) / float64(prev) * 100
}
