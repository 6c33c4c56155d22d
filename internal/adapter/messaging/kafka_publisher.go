package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/logger"
)

// KafkaPublisher sends stock movements to a Kafka topic, keyed by product id
// so movements of one product stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka publisher initialized")

	return NewKafkaPublisherWithProducer(producer, topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishMovement(ctx context.Context, tx domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := StockMovedEvent{
		EventID:     tx.ID,
		EventType:   EventTypeStockMoved,
		ProductID:   tx.ProductID,
		ProductName: tx.ProductName,
		Movement:    string(tx.Type),
		Quantity:    tx.Quantity,
		RecordedAt:  time.UnixMilli(tx.Timestamp).UTC(),
		PublishedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(tx.ProductID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(EventTypeStockMoved)},
			{Key: []byte("event_id"), Value: []byte(tx.ID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Logger.Error().
			Err(err).
			Str("topic", p.topic).
			Str("transaction_id", tx.ID).
			Msg("Failed to publish movement")
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	logger.Logger.Debug().
		Str("transaction_id", tx.ID).
		Str("topic", p.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Movement published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
