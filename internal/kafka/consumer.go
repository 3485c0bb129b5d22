package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cramwell/backend-go/internal/logger"
	"go.uber.org/zap"
)

// JobHandler processes one ingestion job. A returned error leaves the
// message unmarked so it is redelivered.
type JobHandler func(ctx context.Context, job IngestJob) error

// Consumer reads ingestion jobs from a consumer group.
type Consumer struct {
	group sarama.ConsumerGroup
	topic string
	log   *zap.Logger
}

// NewConsumer joins groupID on the given brokers.
func NewConsumer(brokers []string, groupID, topic string, log *zap.Logger) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	cfg.Version = sarama.V2_6_0_0

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	c := &Consumer{group: group, topic: topic, log: logger.Named(log, "kafka_consumer")}
	c.log.Info("kafka consumer ready",
		zap.Strings("brokers", brokers),
		zap.String("group_id", groupID),
		zap.String("topic", topic))
	return c, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle JobHandler) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Error("kafka consumer error", zap.Error(err))
		}
	}()

	handler := &jobGroupHandler{handle: handle, log: c.log}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	if c == nil || c.group == nil {
		return nil
	}
	return c.group.Close()
}

type jobGroupHandler struct {
	handle JobHandler
	log    *zap.Logger
}

func (h *jobGroupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *jobGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *jobGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if h.process(session.Context(), message) {
				session.MarkMessage(message, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// process reports whether the message should be marked consumed. Malformed
// jobs are marked so they do not block the partition.
func (h *jobGroupHandler) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	fields := []zap.Field{
		zap.String("topic", message.Topic),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset),
	}

	job, err := ParseIngestJob(message.Value)
	if err != nil {
		h.log.Warn("dropping malformed ingest job", append(fields, zap.Error(err))...)
		return true
	}

	if err := h.handle(ctx, *job); err != nil {
		h.log.Error("ingest job failed", append(fields, zap.String("notebook_id", job.NotebookID), zap.Error(err))...)
		return false
	}
	return true
}
