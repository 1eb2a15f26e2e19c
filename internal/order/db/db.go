package db

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

// DB holds the order queries. Bun may be a *bun.DB or a bun.Tx.
type DB struct {
	Bun bun.IDB
}

// ---------------- ORDERS ----------------

func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return d.getOrder(ctx, id, false)
}

// LockOrder reads the order for update. On PostgreSQL the row stays locked
// until the transaction ends.
func (d *DB) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return d.getOrder(ctx, id, database.IsPostgres(d.Bun))
}

func (d *DB) getOrder(ctx context.Context, id string, forUpdate bool) (*models.Order, error) {
	var order models.Order
	q := d.Bun.NewSelect().Model(&order).Where("id = ?", id)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

// FindDraftCart returns the user's draft cart or nil.
func (d *DB) FindDraftCart(ctx context.Context, userID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("user_id = ?", userID).
		Where("status = ?", models.OrderStatusDraft).
		Where("order_type = ?", models.OrderTypeCart).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find draft cart: %w", err)
	}
	return &order, nil
}

func (d *DB) InsertOrder(ctx context.Context, order *models.Order) error {
	if _, err := d.Bun.NewInsert().Model(order).Exec(ctx); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrder writes the given columns, or every column when none are named.
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order, columns ...string) error {
	q := d.Bun.NewUpdate().Model(order).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}
	return nil
}

// DeleteOrder removes the order and its items.
func (d *DB) DeleteOrder(ctx context.Context, id string) error {
	if _, err := d.Bun.NewDelete().Model((*models.OrderItem)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete items of order %s: %w", id, err)
	}
	if _, err := d.Bun.NewDelete().Model((*models.Order)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

// AbandonedCarts returns draft carts past expiry that hold no items.
func (d *DB) AbandonedCarts(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("o.id").
		Where("o.status = ?", models.OrderStatusDraft).
		Where("o.order_type = ?", models.OrderTypeCart).
		Where("o.expires_at <= ?", now).
		Where("NOT EXISTS (SELECT 1 FROM order_items AS oi WHERE oi.order_id = o.id)").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("find abandoned carts: %w", err)
	}
	return ids, nil
}

// ---------------- ITEMS ----------------

// Items returns the order's items, oldest first.
func (d *DB) Items(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Order("created_at", "id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get items of order %s: %w", orderID, err)
	}
	return items, nil
}

func (d *DB) HasItems(ctx context.Context, orderID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.OrderItem)(nil)).
		Where("order_id = ?", orderID).
		Exists(ctx)
}

// GetItem finds itemID within orderID only.
func (d *DB) GetItem(ctx context.Context, orderID, itemID string) (*models.OrderItem, error) {
	var item models.OrderItem
	err := d.Bun.NewSelect().
		Model(&item).
		Where("id = ?", itemID).
		Where("order_id = ?", orderID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order item %s: %w", itemID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get order item: %w", err)
	}
	return &item, nil
}

func (d *DB) InsertItem(ctx context.Context, item *models.OrderItem) error {
	if _, err := d.Bun.NewInsert().Model(item).Exec(ctx); err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (d *DB) UpdateItem(ctx context.Context, item *models.OrderItem, columns ...string) error {
	q := d.Bun.NewUpdate().Model(item).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update order item %s: %w", item.ID, err)
	}
	return nil
}

func (d *DB) DeleteItems(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := d.Bun.NewDelete().
		Model((*models.OrderItem)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}

// ---------------- PAYMENTS & REFUNDS ----------------

func (d *DB) Payments(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := d.Bun.NewSelect().
		Model(&payments).
		Where("order_id = ?", orderID).
		Order("created_at", "id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get payments of order %s: %w", orderID, err)
	}
	return payments, nil
}

// PaidSum totals the order's completed payments.
func (d *DB) PaidSum(ctx context.Context, orderID string) (int64, error) {
	var sum sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Payment)(nil)).
		ColumnExpr("SUM(amount)").
		Where("order_id = ?", orderID).
		Where("status = ?", models.PaymentStatusCompleted).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return sum.Int64, nil
}

func (d *DB) InsertPayment(ctx context.Context, p *models.Payment) error {
	if _, err := d.Bun.NewInsert().Model(p).Exec(ctx); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (d *DB) InsertRefund(ctx context.Context, r *models.Refund, tickets []models.RefundedTicket) error {
	if _, err := d.Bun.NewInsert().Model(r).Exec(ctx); err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	if len(tickets) == 0 {
		return nil
	}
	if _, err := d.Bun.NewInsert().Model(&tickets).Exec(ctx); err != nil {
		return fmt.Errorf("insert refunded tickets: %w", err)
	}
	return nil
}

func (d *DB) TicketRefunded(ctx context.Context, orderItemID, ticketInstanceID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.RefundedTicket)(nil)).
		Where("order_item_id = ?", orderItemID).
		Where("ticket_instance_id = ?", ticketInstanceID).
		Exists(ctx)
}

// RefundedTickets lists refunded instances of the given items.
func (d *DB) RefundedTickets(ctx context.Context, orderItemIDs []string) ([]models.RefundedTicket, error) {
	var rows []models.RefundedTicket
	if len(orderItemIDs) == 0 {
		return rows, nil
	}
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("order_item_id IN (?)", bun.In(orderItemIDs)).
		Order("ticket_instance_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get refunded tickets: %w", err)
	}
	return rows, nil
}

func (d *DB) Refunds(ctx context.Context, orderID string) ([]models.Refund, error) {
	var refunds []models.Refund
	err := d.Bun.NewSelect().
		Model(&refunds).
		Where("order_id = ?", orderID).
		Order("created_at", "id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get refunds of order %s: %w", orderID, err)
	}
	return refunds, nil
}

// ---------------- CATALOGUE ----------------

func (d *DB) TicketTypes(ctx context.Context, ids []string) (map[string]*models.TicketType, error) {
	out := make(map[string]*models.TicketType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var tts []models.TicketType
	if err := d.Bun.NewSelect().Model(&tts).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("get ticket types: %w", err)
	}
	for i := range tts {
		out[tts[i].ID] = &tts[i]
	}
	return out, nil
}

// Events returns the events in ids ordered by start then name.
func (d *DB) Events(ctx context.Context, ids []string) ([]models.Event, error) {
	var evs []models.Event
	if len(ids) == 0 {
		return evs, nil
	}
	err := d.Bun.NewSelect().
		Model(&evs).
		Where("id IN (?)", bun.In(ids)).
		Order("event_start", "name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return evs, nil
}

func (d *DB) Organizations(ctx context.Context, ids []string) ([]models.Organization, error) {
	var orgs []models.Organization
	if len(ids) == 0 {
		return orgs, nil
	}
	err := d.Bun.NewSelect().
		Model(&orgs).
		Where("id IN (?)", bun.In(ids)).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get organizations: %w", err)
	}
	return orgs, nil
}

// Memberships returns userID's organization memberships keyed by
// organization id.
func (d *DB) Memberships(ctx context.Context, userID string) (map[string]*models.OrganizationUser, error) {
	var rows []models.OrganizationUser
	if err := d.Bun.NewSelect().Model(&rows).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("get memberships: %w", err)
	}
	out := make(map[string]*models.OrganizationUser, len(rows))
	for i := range rows {
		out[rows[i].OrganizationID] = &rows[i]
	}
	return out, nil
}

func (d *DB) RedemptionCodes(ctx context.Context, holdIDs, codeIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(holdIDs) > 0 {
		var holds []models.Hold
		if err := d.Bun.NewSelect().Model(&holds).Where("id IN (?)", bun.In(holdIDs)).Scan(ctx); err != nil {
			return nil, fmt.Errorf("get holds: %w", err)
		}
		for _, h := range holds {
			out[h.ID] = h.RedemptionCode
		}
	}
	if len(codeIDs) > 0 {
		var cs []models.Code
		if err := d.Bun.NewSelect().Model(&cs).Where("id IN (?)", bun.In(codeIDs)).Scan(ctx); err != nil {
			return nil, fmt.Errorf("get codes: %w", err)
		}
		for _, c := range cs {
			out[c.ID] = c.RedemptionCode
		}
	}
	return out, nil
}
