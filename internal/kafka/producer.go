package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cramwell/backend-go/internal/logger"
	"go.uber.org/zap"
)

// Producer publishes ingestion jobs and events.
type Producer struct {
	producer   sarama.SyncProducer
	jobTopic   string
	eventTopic string
	log        *zap.Logger
}

// NewProducer connects a synchronous producer.
func NewProducer(brokers []string, jobTopic, eventTopic string, log *zap.Logger) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Timeout = 10 * time.Second

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p := newProducer(sp, jobTopic, eventTopic, log)
	p.log.Info("kafka producer ready", zap.Strings("brokers", brokers))
	return p, nil
}

func newProducer(sp sarama.SyncProducer, jobTopic, eventTopic string, log *zap.Logger) *Producer {
	return &Producer{
		producer:   sp,
		jobTopic:   jobTopic,
		eventTopic: eventTopic,
		log:        logger.Named(log, "kafka_producer"),
	}
}

// SubmitJob queues an ingestion job keyed by notebook, so jobs of one
// notebook keep their order.
func (p *Producer) SubmitJob(ctx context.Context, job IngestJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	return p.send(ctx, p.jobTopic, job.NotebookID, job)
}

// PublishIngested emits the outcome of an ingestion.
func (p *Producer) PublishIngested(ctx context.Context, event IngestedEvent) error {
	return p.send(ctx, p.eventTopic, event.NotebookID, event)
}

func (p *Producer) send(ctx context.Context, topic, key string, v interface{}) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka producer not initialised")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("notebook_id"), Value: []byte(key)},
		},
	})
	if err != nil {
		p.log.Error("kafka send failed", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	p.log.Debug("kafka message sent",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
