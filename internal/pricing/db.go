package pricing

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

func (d *DB) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	if err := d.Bun.NewSelect().Model(&tt).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket type %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get ticket type: %w", err)
	}
	return &tt, nil
}

// Tiers returns the ticket type's pricing tiers, latest start first.
func (d *DB) Tiers(ctx context.Context, ticketTypeID string) ([]models.TicketPricing, error) {
	var tiers []models.TicketPricing
	err := d.Bun.NewSelect().
		Model(&tiers).
		Where("ticket_type_id = ?", ticketTypeID).
		OrderExpr("start_date DESC NULLS LAST").
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get ticket pricing: %w", err)
	}
	return tiers, nil
}
