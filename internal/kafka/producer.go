package kafka

import (
	"context"
	"fmt"
	"time"

	"ms-ordering/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Producer writes to any topic; the topic travels on each message.
type Producer struct {
	Writer *kafka.Writer
	logger *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, logger: log}
}

// Publish sends value keyed by key so events of one order stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	p.logger.Debug("KAFKA", fmt.Sprintf("Published to %s: %s", topic, string(value)))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
