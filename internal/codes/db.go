package codes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-ordering/internal/database"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

func (d *DB) FindHoldByRedemptionCode(ctx context.Context, code string) (*models.Hold, error) {
	var hold models.Hold
	err := d.Bun.NewSelect().Model(&hold).Where("redemption_code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find hold by redemption code: %w", err)
	}
	return &hold, nil
}

func (d *DB) FindCodeByRedemptionCode(ctx context.Context, code string) (*models.Code, error) {
	var c models.Code
	err := d.Bun.NewSelect().Model(&c).Where("redemption_code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find code by redemption code: %w", err)
	}
	return &c, nil
}

func (d *DB) GetHold(ctx context.Context, id string) (*models.Hold, error) {
	return d.getHold(ctx, id, false)
}

// LockHold reads the hold and, on PostgreSQL, keeps its row locked until
// the transaction ends. Everything that changes how much of a hold is
// claimable or comped takes this lock first.
func (d *DB) LockHold(ctx context.Context, id string) (*models.Hold, error) {
	return d.getHold(ctx, id, database.IsPostgres(d.Bun))
}

func (d *DB) getHold(ctx context.Context, id string, forUpdate bool) (*models.Hold, error) {
	var hold models.Hold
	q := d.Bun.NewSelect().Model(&hold).Where("id = ?", id)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("hold %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get hold: %w", err)
	}
	return &hold, nil
}

func (d *DB) GetCode(ctx context.Context, id string) (*models.Code, error) {
	var c models.Code
	if err := d.Bun.NewSelect().Model(&c).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("code %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get code: %w", err)
	}
	return &c, nil
}

func (d *DB) CodeAppliesTo(ctx context.Context, codeID, ticketTypeID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.CodeTicketType)(nil)).
		Where("code_id = ?", codeID).
		Where("ticket_type_id = ?", ticketTypeID).
		Exists(ctx)
}

// CodeUses counts live orders other than excludeOrderID that carry codeID.
func (d *DB) CodeUses(ctx context.Context, codeID, excludeOrderID string) (int, error) {
	var orderIDs []string
	q := d.Bun.NewSelect().
		Model((*models.OrderItem)(nil)).
		ColumnExpr("DISTINCT oi.order_id").
		Join("JOIN orders AS o ON o.id = oi.order_id").
		Where("oi.code_id = ?", codeID).
		Where("o.status != ?", models.OrderStatusCancelled)
	if excludeOrderID != "" {
		q = q.Where("oi.order_id != ?", excludeOrderID)
	}
	if err := q.Scan(ctx, &orderIDs); err != nil {
		return 0, fmt.Errorf("count code uses: %w", err)
	}
	return len(orderIDs), nil
}

// HeldCount counts the hold's instances that are still in circulation.
func (d *DB) HeldCount(ctx context.Context, holdID string) (int, error) {
	n, err := d.Bun.NewSelect().
		Model((*models.TicketInstance)(nil)).
		Where("hold_id = ?", holdID).
		Where("status != ?", models.TicketInstanceNullified).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count held instances: %w", err)
	}
	return n, nil
}

// FreeIDs returns up to limit Available, unlinked instances of ticketTypeID
// in holdID ("" for the general pool).
func (d *DB) FreeIDs(ctx context.Context, ticketTypeID, holdID string, limit int) ([]string, error) {
	var ids []string
	q := d.Bun.NewSelect().
		Model((*models.TicketInstance)(nil)).
		Column("id").
		Where("ticket_type_id = ?", ticketTypeID).
		Where("status = ?", models.TicketInstanceAvailable).
		Where("order_item_id IS NULL")
	if holdID == "" {
		q = q.Where("hold_id IS NULL")
	} else {
		q = q.Where("hold_id = ?", holdID)
	}
	if err := q.Order("id").Limit(limit).Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("select free instances: %w", err)
	}
	return ids, nil
}

// MoveToHold sets hold_id on ids; holdID "" returns them to the pool.
func (d *DB) MoveToHold(ctx context.Context, ids []string, holdID string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q := d.Bun.NewUpdate().
		Model((*models.TicketInstance)(nil)).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids))
	if holdID == "" {
		q = q.Set("hold_id = NULL")
	} else {
		q = q.Set("hold_id = ?", holdID)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("move instances to hold: %w", err)
	}
	return nil
}

func (d *DB) CompsSum(ctx context.Context, holdID string) (int64, error) {
	var sum sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Comp)(nil)).
		ColumnExpr("SUM(quantity)").
		Where("hold_id = ?", holdID).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum comps: %w", err)
	}
	return sum.Int64, nil
}

func (d *DB) Comps(ctx context.Context, holdID string) ([]models.Comp, error) {
	var comps []models.Comp
	err := d.Bun.NewSelect().
		Model(&comps).
		Where("hold_id = ?", holdID).
		Order("created_at", "id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list comps: %w", err)
	}
	return comps, nil
}

func (d *DB) InsertComp(ctx context.Context, comp *models.Comp) error {
	_, err := d.Bun.NewInsert().Model(comp).Exec(ctx)
	return err
}

func (d *DB) InsertHold(ctx context.Context, hold *models.Hold) error {
	_, err := d.Bun.NewInsert().Model(hold).Exec(ctx)
	return err
}
