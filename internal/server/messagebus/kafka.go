package messagebus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

const (
	headerNamespace   = "x-collaboration-id"
	headerApplication = "x-collaboration-application"
	headerOp          = "op"
)

// KafkaBus sends each notification as one message keyed by record id, so
// changes to the same record stay ordered within a partition.
type KafkaBus struct {
	producer sarama.SyncProducer
	topic    string
}

var newSyncProducer = sarama.NewSyncProducer

// NewProducerConfig returns the producer settings used by NewKafkaBus.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "recordkeeper"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func NewKafkaBus(brokers []string, topic string) (*KafkaBus, error) {
	p, err := newSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaBusWithProducer(p, topic), nil
}

func NewKafkaBusWithProducer(p sarama.SyncProducer, topic string) *KafkaBus {
	return &KafkaBus{producer: p, topic: topic}
}

func (b *KafkaBus) Publish(ctx context.Context, collab *models.CollaborationContext, batch []models.RecordChanged) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	for _, n := range batch {
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode notification %s: %w", n.ID, err)
		}
		headers := []sarama.RecordHeader{{Key: []byte(headerOp), Value: []byte(n.Op)}}
		if collab != nil && collab.ID != "" {
			headers = append(headers,
				sarama.RecordHeader{Key: []byte(headerNamespace), Value: []byte(collab.ID)},
				sarama.RecordHeader{Key: []byte(headerApplication), Value: []byte(collab.Application)},
			)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:   b.topic,
			Key:     sarama.StringEncoder(n.ID),
			Value:   sarama.ByteEncoder(value),
			Headers: headers,
		})
	}

	if err := b.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return fmt.Errorf("kafka: %d of %d messages failed: %w", len(perrs), len(msgs), perrs[0].Err)
		}
		return fmt.Errorf("kafka: %w", err)
	}
	return nil
}

func (b *KafkaBus) Close() error {
	return b.producer.Close()
}
