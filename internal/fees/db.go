package fees

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-ordering/internal/errs"
	"ms-ordering/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := d.Bun.NewSelect().Model(&event).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

func (d *DB) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := d.Bun.NewSelect().Model(&org).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

func (d *DB) GetRanges(ctx context.Context, feeScheduleID string) ([]models.FeeScheduleRange, error) {
	var ranges []models.FeeScheduleRange
	err := d.Bun.NewSelect().
		Model(&ranges).
		Where("fee_schedule_id = ?", feeScheduleID).
		Order("min_price_in_cents ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get fee schedule ranges: %w", err)
	}
	return ranges, nil
}
