package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("FOO", "")
	if got := GetEnv("FOO", "bar"); got != "bar" {
		t.Fatalf("expected bar, got %s", got)
	}
	t.Setenv("FOO", "baz")
	if got := GetEnv("FOO", "bar"); got != "baz" {
		t.Fatalf("expected baz, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("NUM", "")
	if got := GetEnvInt("NUM", 42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("NUM", "100")
	if got := GetEnvInt("NUM", 42); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	t.Setenv("NUM", "notint")
	if got := GetEnvInt("NUM", 7); got != 7 {
		t.Fatalf("expected 7 on parse error, got %d", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TICK", "")
	if got := GetEnvDuration("TICK", 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected default, got %v", got)
	}
	t.Setenv("TICK", "250ms")
	if got := GetEnvDuration("TICK", 5*time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
	t.Setenv("TICK", "bogus")
	if got := GetEnvDuration("TICK", time.Minute); got != time.Minute {
		t.Fatalf("expected default on parse error, got %v", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if GetLogLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
	t.Setenv("LOG_LEVEL", "")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level by default")
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW",
		"METRICS_TICK", "CHARTS_TICK", "ALERTS_TICK",
		"HEARTBEAT_TIMEOUT", "SWEEP_INTERVAL",
		"CLICKHOUSE_ADDR", "KAFKA_BROKERS", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "18010" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.RateLimitMax != 100 || cfg.RateLimitWindow != 60*time.Second {
		t.Fatalf("unexpected rate limit defaults: %d / %v", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.MetricsTick != 5*time.Second || cfg.AlertsTick != 15*time.Second {
		t.Fatalf("unexpected tick defaults: %v / %v", cfg.MetricsTick, cfg.AlertsTick)
	}
	if cfg.HeartbeatTimeout != 90*time.Second {
		t.Fatalf("expected 90s heartbeat timeout, got %v", cfg.HeartbeatTimeout)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected kafka disabled by default")
	}
}

func TestLoadSplitsLists(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092 ,")
	t.Setenv("CLICKHOUSE_ADDR", "ch-1:9000")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if len(cfg.ClickHouseAddr) != 1 || cfg.ClickHouseAddr[0] != "ch-1:9000" {
		t.Fatalf("unexpected clickhouse addr: %v", cfg.ClickHouseAddr)
	}
}
