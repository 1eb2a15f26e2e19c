package events

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/config"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"

	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/bun"
)

// Publisher delivers one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Message is what consumers of every topic receive.
type Message struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	MainTable string          `json:"main_table"`
	MainID    string          `json:"main_id"`
	UserID    string          `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

// Dispatcher publishes committed outbox rows. A nil publisher leaves rows
// unpublished for a later DispatchPending.
type Dispatcher struct {
	db        bun.IDB
	publisher Publisher
	topics    config.TopicConfig
	clock     clock.Clock
	logger    *logger.Logger
}

func NewDispatcher(db bun.IDB, publisher Publisher, topics config.TopicConfig, clk clock.Clock, log *logger.Logger) *Dispatcher {
	return &Dispatcher{db: db, publisher: publisher, topics: topics, clock: clk, logger: log}
}

// Dispatch publishes evs and marks each delivered row. Failures are logged
// and returned together; they never undo the committed change.
func (d *Dispatcher) Dispatch(ctx context.Context, evs []models.DomainEvent) error {
	if d == nil || d.publisher == nil {
		return nil
	}

	var result *multierror.Error
	for i := range evs {
		if err := d.publish(ctx, &evs[i]); err != nil {
			d.logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s %s: %v", evs[i].EventType, evs[i].ID, err))
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// DispatchPending publishes up to limit rows left behind by earlier
// failures or by a disabled publisher.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) error {
	evs, err := unpublished(ctx, d.db, limit)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, evs)
}

func (d *Dispatcher) publish(ctx context.Context, ev *models.DomainEvent) error {
	t := Type(ev.EventType)
	topic, err := TopicFor(t, d.topics)
	if err != nil {
		return err
	}

	value, err := json.Marshal(Message{
		ID:        ev.ID,
		Type:      t,
		MainTable: ev.MainTable,
		MainID:    ev.MainID,
		UserID:    ev.UserID,
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt.Format("2006-01-02T15:04:05.000000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	if err := d.publisher.Publish(ctx, topic, ev.MainID, value); err != nil {
		return fmt.Errorf("publish %s: %w", ev.ID, err)
	}
	if err := markPublished(ctx, d.db, ev.ID, d.clock.Now()); err != nil {
		return err
	}

	d.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("%s %s", t, ev.MainID))
	return nil
}
