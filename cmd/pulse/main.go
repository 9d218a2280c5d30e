package main

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/thrivesend/pulse/internal/analytics"
	"github.com/thrivesend/pulse/internal/config"
	"github.com/thrivesend/pulse/internal/database"
	"github.com/thrivesend/pulse/internal/handlers"
	"github.com/thrivesend/pulse/internal/kafka"
	"github.com/thrivesend/pulse/internal/logging"
	"github.com/thrivesend/pulse/internal/metrics"
	"github.com/thrivesend/pulse/internal/monitoring"
	"github.com/thrivesend/pulse/internal/ratelimit"
	"github.com/thrivesend/pulse/internal/redis"
	"github.com/thrivesend/pulse/internal/server"
	"github.com/thrivesend/pulse/internal/version"
	"github.com/thrivesend/pulse/internal/ws"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("pulse")

	// Load environment variables
	config.LoadEnv(logger)
	cfg := config.Load()

	logger.Info("Starting Pulse (realtime analytics hub)")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("pulse", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("pulse", version.Version, version.GitCommit)

	// Create custom metrics
	serviceMetrics := &metrics.Metrics{
		ActiveConnections: metricsCollector.NewGauge("websocket_connections_active", "Active WebSocket connections", []string{"organization"}),
		Subscriptions:     metricsCollector.NewGauge("channel_subscriptions_active", "Active channel subscriptions", []string{"channel"}),
		MessagesIn:        metricsCollector.NewCounter("websocket_messages_in_total", "Inbound WebSocket messages", []string{"type"}),
		MessagesOut:       metricsCollector.NewCounter("websocket_messages_out_total", "Outbound WebSocket messages", []string{"type"}),
		RateLimited:       metricsCollector.NewCounter("rate_limited_messages_total", "Control messages dropped by rate limiting", []string{"type"}),
		BroadcastTicks:    metricsCollector.NewCounter("broadcast_ticks_total", "Broadcast cycles run", []string{"channel"}),
		DiffsSuppressed:   metricsCollector.NewCounter("diffs_suppressed_total", "Deliveries suppressed by change detection", []string{"channel"}),
		DeliveryFailures:  metricsCollector.NewCounter("delivery_failures_total", "Failed deliveries to slow consumers", []string{"channel"}),
		SnapshotErrors:    metricsCollector.NewCounter("snapshot_errors_total", "Snapshot fetch failures", []string{"channel"}),
		DeliveryLag:       metricsCollector.NewHistogram("delivery_lag_seconds", "Latency from snapshot generation to enqueue", []string{"channel"}, nil),
		KafkaMessages:     metricsCollector.NewCounter("kafka_events_total", "Events consumed from the bus", []string{"status"}),
	}

	// ClickHouse metrics source
	db := database.MustConnectClickHouse(database.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	}, logger)
	defer db.Close()
	source := analytics.NewClickHouseSource(db)
	healthChecker.AddCheck("clickhouse", monitoring.DatabaseHealthCheck(db))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rate limiter: Redis-backed when configured, in-memory otherwise
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb, err := redis.NewClient(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisFixedWindow(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(rdb))
		logger.Info("Using Redis-backed rate limiter")
	} else {
		limiter = ratelimit.NewFixedWindow(clockwork.NewRealClock(), cfg.RateLimitMax, cfg.RateLimitWindow)
		logger.Info("Using in-memory rate limiter")
	}

	// WebSocket hub
	hub := ws.NewHub(ws.Config{
		Limiter: limiter,
		Source:  source,
		Logger:  logger,
		Metrics: serviceMetrics,
		Periods: map[analytics.Channel]time.Duration{
			analytics.ChannelMetrics: cfg.MetricsTick,
			analytics.ChannelCharts:  cfg.ChartsTick,
			analytics.ChannelAlerts:  cfg.AlertsTick,
		},
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		SweepInterval:    cfg.SweepInterval,
	})
	go hub.Run(ctx)

	pulseHandlers := handlers.NewPulseHandlers(hub, logger)

	// Kafka event ingest, enabled when brokers are configured
	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := kafka.NewConsumer(kafka.Config{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			GroupID:  cfg.KafkaGroupID,
			ClientID: cfg.KafkaClient,
		}, pulseHandlers, logger, serviceMetrics)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Kafka consumer")
		}
		defer consumer.Close()

		healthChecker.AddCheck("kafka", monitoring.KafkaConsumerHealthCheck(consumer.GetClient()))

		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Kafka consumer error")
			}
		}()
	} else {
		logger.Info("Kafka ingest disabled, no brokers configured")
	}

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"CLICKHOUSE_ADDR": strings.Join(cfg.ClickHouseAddr, ","),
	}))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, healthChecker, metricsCollector)

	router.GET("/ws", pulseHandlers.HandleWebSocket)
	router.GET("/status", pulseHandlers.HandleStatus)
	router.POST("/trigger", pulseHandlers.HandleTrigger)
	router.NoRoute(pulseHandlers.HandleNotFound)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("pulse", "18010")
	serverConfig.Port = cfg.Port
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
