package inventory

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

// DB holds the ticket instance queries. Bun may be a *bun.DB or a bun.Tx.
type DB struct {
	Bun bun.IDB
}

// eligible restricts q to instances a new reservation may take: unheld (or
// in holdID) and either Available or Reserved with a lapsed reservation.
func eligible(q *bun.SelectQuery, ticketTypeID, holdID string, now time.Time) *bun.SelectQuery {
	q = q.Where("ticket_type_id = ?", ticketTypeID)
	if holdID == "" {
		q = q.Where("hold_id IS NULL")
	} else {
		q = q.Where("hold_id = ?", holdID)
	}
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("status = ?", models.TicketInstanceAvailable).
			WhereOr("status = ? AND reserved_until < ?", models.TicketInstanceReserved, now)
	})
}

// EligibleIDs returns up to limit claimable instance ids. On PostgreSQL the
// rows stay locked until the transaction ends and rows locked by other
// carts are skipped.
func (d *DB) EligibleIDs(ctx context.Context, ticketTypeID, holdID string, now time.Time, limit int) ([]string, error) {
	var ids []string
	q := d.Bun.NewSelect().
		Model((*models.TicketInstance)(nil)).
		Column("id")
	q = eligible(q, ticketTypeID, holdID, now).
		Order("id").
		Limit(limit)
	if database.IsPostgres(d.Bun) {
		q = q.For("UPDATE SKIP LOCKED")
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("select eligible instances: %w", err)
	}
	return ids, nil
}

func (d *DB) CountEligible(ctx context.Context, ticketTypeID, holdID string, now time.Time) (int, error) {
	q := d.Bun.NewSelect().Model((*models.TicketInstance)(nil))
	n, err := eligible(q, ticketTypeID, holdID, now).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count eligible instances: %w", err)
	}
	return n, nil
}

// Claim links ids to orderItemID. The eligibility predicate is repeated so
// an instance claimed since EligibleIDs is not counted.
func (d *DB) Claim(ctx context.Context, ids []string, orderItemID string, now, until time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketInstance)(nil)).
		Set("status = ?", models.TicketInstanceReserved).
		Set("order_item_id = ?", orderItemID).
		Set("reserved_until = ?", until).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("status = ?", models.TicketInstanceAvailable).
				WhereOr("status = ? AND reserved_until < ?", models.TicketInstanceReserved, now)
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("claim instances: %w", err)
	}
	return res.RowsAffected()
}

// LinkedIDs returns up to limit ids linked to orderItemID, nullified first.
// A limit of 0 returns all.
func (d *DB) LinkedIDs(ctx context.Context, orderItemID string, limit int) ([]string, error) {
	var ids []string
	q := d.Bun.NewSelect().
		Model((*models.TicketInstance)(nil)).
		Column("id").
		Where("order_item_id = ?", orderItemID).
		OrderExpr("CASE WHEN status = ? THEN 0 ELSE 1 END", models.TicketInstanceNullified).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("select linked instances: %w", err)
	}
	return ids, nil
}

// Unlink returns reserved ids to the pool and detaches nullified ones.
func (d *DB) Unlink(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.TicketInstance)(nil)).
		Set("status = ?", models.TicketInstanceAvailable).
		Set("order_item_id = NULL").
		Set("reserved_until = NULL").
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Where("status IN (?)", bun.In([]models.TicketInstanceStatus{
			models.TicketInstanceReserved,
			models.TicketInstancePurchased,
		})).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("release instances: %w", err)
	}
	released, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = d.Bun.NewUpdate().
		Model((*models.TicketInstance)(nil)).
		Set("order_item_id = NULL").
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Where("status = ?", models.TicketInstanceNullified).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("detach nullified instances: %w", err)
	}
	detached, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return released + detached, nil
}

func (d *DB) Extend(ctx context.Context, orderItemIDs []string, now, until time.Time) (int64, error) {
	if len(orderItemIDs) == 0 {
		return 0, nil
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketInstance)(nil)).
		Set("reserved_until = ?", until).
		Set("updated_at = ?", now).
		Where("order_item_id IN (?)", bun.In(orderItemIDs)).
		Where("status = ?", models.TicketInstanceReserved).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("extend reservations: %w", err)
	}
	return res.RowsAffected()
}

func (d *DB) MarkPurchased(ctx context.Context, orderItemID string, now time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketInstance)(nil)).
		Set("status = ?", models.TicketInstancePurchased).
		Set("updated_at = ?", now).
		Where("order_item_id = ?", orderItemID).
		Where("status = ?", models.TicketInstanceReserved).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("mark instances purchased: %w", err)
	}
	return res.RowsAffected()
}

func (d *DB) GetInstance(ctx context.Context, id string) (*models.TicketInstance, error) {
	var instance models.TicketInstance
	q := d.Bun.NewSelect().Model(&instance).Where("id = ?", id)
	if database.IsPostgres(d.Bun) {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket instance %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get ticket instance: %w", err)
	}
	return &instance, nil
}

// SetStatus moves id from one status to another, failing if the row changed
// in between.
func (d *DB) SetStatus(ctx context.Context, id string, from, to models.TicketInstanceStatus, now time.Time) error {
	q := d.Bun.NewUpdate().
		Model((*models.TicketInstance)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from)
	if to == models.TicketInstanceRedeemed {
		q = q.Set("redeemed_at = ?", now)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("instance %s no longer %s: %w", id, from, errs.ErrInvalidStateTransition)
	}
	return nil
}

// ForItems returns every instance linked to one of orderItemIDs.
func (d *DB) ForItems(ctx context.Context, orderItemIDs []string) ([]models.TicketInstance, error) {
	var instances []models.TicketInstance
	if len(orderItemIDs) == 0 {
		return instances, nil
	}
	err := d.Bun.NewSelect().
		Model(&instances).
		Where("order_item_id IN (?)", bun.In(orderItemIDs)).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select instances for items: %w", err)
	}
	return instances, nil
}
