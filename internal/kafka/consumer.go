package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-ordering/internal/errs"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// PaymentMessage is an external payment reported by another service.
type PaymentMessage struct {
	OrderID       string `json:"order_id"`
	AmountInCents int64  `json:"amount_in_cents"`
	PayerID       string `json:"payer_id"`
	Reference     string `json:"reference"`
}

type PaymentApplier interface {
	AddExternalPayment(ctx context.Context, orderID, payerID string, amountInCents int64, reference string) (*models.Payment, error)
}

type Consumer struct {
	reader     *kafka.Reader
	logger     *logger.Logger
	maxRetries uint64
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log, maxRetries: 5}
}

// Run applies payment messages until ctx is cancelled. A message is
// committed once it is applied or rejected for good; transient failures
// are retried with backoff first.
func (c *Consumer) Run(ctx context.Context, applier PaymentApplier) error {
	c.logger.LogKafka("START", c.reader.Config().Topic, "payment consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		if err := c.handle(ctx, applier, msg.Value); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Dropping payment message at offset %d: %v", msg.Offset, err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d: %v", msg.Offset, err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, applier PaymentApplier, value []byte) error {
	var pm PaymentMessage
	if err := json.Unmarshal(value, &pm); err != nil {
		return fmt.Errorf("unmarshal payment: %w", err)
	}
	if pm.OrderID == "" || pm.PayerID == "" {
		return errors.New("payment message missing order_id or payer_id")
	}

	op := func() error {
		payment, err := applier.AddExternalPayment(ctx, pm.OrderID, pm.PayerID, pm.AmountInCents, pm.Reference)
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("KAFKA", fmt.Sprintf("Retrying payment for order %s: %v", pm.OrderID, err))
			return err
		}
		c.logger.LogOrder("PAYMENT", pm.OrderID, fmt.Sprintf("external payment %s of %d applied", payment.ID, payment.Amount))
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
}

// permanent errors will fail the same way on every retry.
func permanent(err error) bool {
	if _, ok := errs.AsValidation(err); ok {
		return true
	}
	return errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrInvalidStateTransition)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
