// Package events records domain events in an outbox table inside the
// triggering transaction and hands them to a publisher after commit.
package events

import (
	"fmt"

	"ms-ordering/internal/config"
)

type Type string

const (
	OrderCreated   Type = "OrderCreated"
	OrderUpdated   Type = "OrderUpdated"
	OrderCompleted Type = "OrderCompleted"
	OrderRefunded  Type = "OrderRefunded"
	PaymentCreated Type = "PaymentCreated"
)

// TopicFor maps every event type to its configured topic.
func TopicFor(t Type, topics config.TopicConfig) (string, error) {
	switch t {
	case OrderCreated:
		return topics.OrderCreated, nil
	case OrderUpdated:
		return topics.OrderUpdated, nil
	case OrderCompleted:
		return topics.OrderCompleted, nil
	case OrderRefunded:
		return topics.OrderRefunded, nil
	case PaymentCreated:
		return topics.PaymentCreated, nil
	default:
		return "", fmt.Errorf("unknown event type %q", string(t))
	}
}
