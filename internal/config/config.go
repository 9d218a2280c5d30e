package config

import (
	"strings"
	"time"
)

// Config carries all tunables for the realtime distribution service.
type Config struct {
	Port string

	// Rate limiting of client-initiated control messages.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Broadcast tick periods, independently configurable per channel.
	MetricsTick time.Duration
	ChartsTick  time.Duration
	AlertsTick  time.Duration

	// Liveness. Timeout defaults to 3x the expected client ping interval.
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration

	// ClickHouse metrics source.
	ClickHouseAddr     []string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// Kafka analytics event ingest. Disabled when no brokers are configured.
	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string
	KafkaClient  string

	// Redis-backed rate limiting. Falls back to in-memory when unset.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load assembles the service configuration from the environment.
func Load() Config {
	cfg := Config{
		Port: GetEnv("PORT", "18010"),

		RateLimitMax:    GetEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: GetEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),

		MetricsTick: GetEnvDuration("METRICS_TICK", 5*time.Second),
		ChartsTick:  GetEnvDuration("CHARTS_TICK", 5*time.Second),
		AlertsTick:  GetEnvDuration("ALERTS_TICK", 15*time.Second),

		HeartbeatTimeout: GetEnvDuration("HEARTBEAT_TIMEOUT", 90*time.Second),
		SweepInterval:    GetEnvDuration("SWEEP_INTERVAL", 30*time.Second),

		ClickHouseDatabase: GetEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUser:     GetEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: GetEnv("CLICKHOUSE_PASSWORD", ""),

		KafkaGroupID: GetEnv("KAFKA_GROUP_ID", "pulse-group"),
		KafkaTopic:   GetEnv("KAFKA_TOPIC", "analytics_events"),
		KafkaClient:  GetEnv("KAFKA_CLIENT_ID", "pulse"),

		RedisAddr:     GetEnv("REDIS_ADDR", ""),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("REDIS_DB", 0),
	}

	cfg.ClickHouseAddr = splitList(GetEnv("CLICKHOUSE_ADDR", "127.0.0.1:9000"))
	cfg.KafkaBrokers = splitList(GetEnv("KAFKA_BROKERS", ""))

	return cfg
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
