package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-ordering/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record inserts an outbox row on idb, which should be the transaction
// making the change the event describes.
func Record(ctx context.Context, idb bun.IDB, t Type, mainTable, mainID, userID string, payload interface{}, at time.Time) (*models.DomainEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}

	ev := &models.DomainEvent{
		ID:        uuid.NewString(),
		EventType: string(t),
		MainTable: mainTable,
		MainID:    mainID,
		UserID:    userID,
		Payload:   body,
		CreatedAt: at,
	}
	if _, err := idb.NewInsert().Model(ev).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert %s event: %w", t, err)
	}
	return ev, nil
}

// ForMain lists the events recorded against one row, oldest first.
func ForMain(ctx context.Context, idb bun.IDB, mainTable, mainID string) ([]models.DomainEvent, error) {
	var evs []models.DomainEvent
	err := idb.NewSelect().
		Model(&evs).
		Where("main_table = ?", mainTable).
		Where("main_id = ?", mainID).
		Order("created_at", "id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events for %s %s: %w", mainTable, mainID, err)
	}
	return evs, nil
}

func unpublished(ctx context.Context, idb bun.IDB, limit int) ([]models.DomainEvent, error) {
	var evs []models.DomainEvent
	err := idb.NewSelect().
		Model(&evs).
		Where("published_at IS NULL").
		Order("created_at", "id").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return evs, nil
}

func markPublished(ctx context.Context, idb bun.IDB, id string, at time.Time) error {
	_, err := idb.NewUpdate().
		Model((*models.DomainEvent)(nil)).
		Set("published_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark event %s published: %w", id, err)
	}
	return nil
}
