package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/thrivesend/pulse/internal/logging"
	"github.com/thrivesend/pulse/internal/metrics"
)

// Config describes the event bus connection.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

// Consumer polls the analytics event topic and feeds decoded events to a
// handler. Offsets are committed manually: a handler failure blocks the
// partition so the event is retried on restart, while an undecodable
// record is committed and dropped so poison input cannot wedge a
// partition.
type Consumer struct {
	client  *kgo.Client
	topic   string
	handler EventHandler
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewConsumer creates a consumer for the analytics event topic.
func NewConsumer(cfg Config, handler EventHandler, logger logging.Logger, m *metrics.Metrics) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		client:  client,
		topic:   cfg.Topic,
		handler: handler,
		logger:  logger,
		metrics: m,
	}, nil
}

// Run polls until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.WithField("topic", c.topic).Info("Kafka event consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if errs := fetches.Errors(); len(errs) > 0 {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Errorf("errors while polling: %v", errs)
				continue
			}

			iter := fetches.RecordIter()
			records := make([]*kgo.Record, 0)
			for !iter.Done() {
				records = append(records, iter.Next())
			}

			commitRecords := c.processRecords(records)
			if len(commitRecords) > 0 {
				if err := c.client.CommitRecords(ctx, commitRecords...); err != nil {
					c.logger.WithError(err).Error("failed to commit records")
				}
			}
		}
	}
}

func (c *Consumer) processRecords(records []*kgo.Record) []*kgo.Record {
	blocked := make(map[int32]bool)
	lastSuccess := make(map[int32]*kgo.Record)

	for _, record := range records {
		if blocked[record.Partition] {
			// A prior event in this partition failed. Later offsets must
			// not be committed or the failed event is lost on restart.
			continue
		}

		var event Event
		if err := json.Unmarshal(record.Value, &event); err != nil {
			if c.metrics != nil {
				c.metrics.KafkaMessages.WithLabelValues("invalid").Inc()
			}
			c.logger.WithError(err).WithFields(logging.Fields{
				"partition": record.Partition,
				"offset":    record.Offset,
			}).Warn("Dropping undecodable event record")
			lastSuccess[record.Partition] = record
			continue
		}

		if err := c.handler.HandleEvent(event); err != nil {
			if c.metrics != nil {
				c.metrics.KafkaMessages.WithLabelValues("failed").Inc()
			}
			c.logger.WithError(err).WithFields(logging.Fields{
				"partition":  record.Partition,
				"offset":     record.Offset,
				"event_type": event.Type,
			}).Error("Failed to handle event - will retry on restart")
			blocked[record.Partition] = true
			continue
		}

		if c.metrics != nil {
			c.metrics.KafkaMessages.WithLabelValues("processed").Inc()
		}
		lastSuccess[record.Partition] = record
	}

	if len(lastSuccess) == 0 {
		return nil
	}
	commitRecords := make([]*kgo.Record, 0, len(lastSuccess))
	for _, record := range lastSuccess {
		commitRecords = append(commitRecords, record)
	}
	return commitRecords
}

// HealthCheck pings the broker.
func (c *Consumer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// GetClient exposes the underlying client for health probes.
func (c *Consumer) GetClient() *kgo.Client {
	return c.client
}

// Close closes the underlying client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
