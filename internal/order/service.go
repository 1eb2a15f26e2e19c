// Package order is the cart and order aggregate: it prices cart lines,
// reserves their inventory, takes payments and performs refunds.
package order

import (
	"context"
	"errors"
	"fmt"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/codes"
	"ms-ordering/internal/config"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/events"
	"ms-ordering/internal/fees"
	"ms-ordering/internal/inventory"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	orderdb "ms-ordering/internal/order/db"
	"ms-ordering/internal/pricing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CartLocker serializes mutations of one cart across processes.
type CartLocker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

type Service struct {
	db         *bun.DB
	lock       CartLocker
	dispatcher *events.Dispatcher
	ledger     *inventory.Ledger
	validator  *codes.Validator
	pricing    *pricing.Resolver
	fees       *fees.Material
	clock      clock.Clock
	cfg        config.OrderConfig
	logger     *logger.Logger
}

func NewService(db *bun.DB, lock CartLocker, dispatcher *events.Dispatcher, cfg *config.Config, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		db:         db,
		lock:       lock,
		dispatcher: dispatcher,
		ledger:     inventory.NewLedger(clk, cfg.Orders.ReservationWindow, log),
		validator:  codes.NewValidator(),
		pricing:    pricing.NewResolver(clk, log),
		fees:       fees.NewMaterial(cfg.Fees),
		clock:      clk,
		cfg:        cfg.Orders,
		logger:     log,
	}
}

// Ledger exposes the inventory ledger the service reserves through.
func (s *Service) Ledger() *inventory.Ledger { return s.ledger }

// txn is the state one mutation works on.
type txn struct {
	ctx    context.Context
	tx     bun.Tx
	store  *orderdb.DB
	order  *models.Order
	events []models.DomainEvent
}

// emit writes an outbox row for the current order.
func (s *Service) emit(t *txn, typ events.Type, userID string, payload interface{}) error {
	ev, err := events.Record(t.ctx, t.tx, typ, "orders", t.order.ID, userID, payload, s.clock.Now())
	if err != nil {
		return err
	}
	t.events = append(t.events, *ev)
	return nil
}

// mutate runs fn under the cart lock in one transaction with the order row
// locked, then publishes whatever events fn recorded.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(t *txn) error) error {
	var t *txn
	err := s.withLock(ctx, orderID, func() error {
		return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			store := &orderdb.DB{Bun: tx}
			order, err := store.LockOrder(ctx, orderID)
			if err != nil {
				return err
			}
			t = &txn{ctx: ctx, tx: tx, store: store, order: order}
			return fn(t)
		})
	})
	if err != nil {
		return err
	}
	s.publish(ctx, t.events)
	return nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	if s.lock == nil {
		return fn()
	}
	return s.lock.WithLock(ctx, key, fn)
}

func (s *Service) publish(ctx context.Context, evs []models.DomainEvent) {
	if len(evs) == 0 {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, evs); err != nil {
		s.logger.Warn("ORDER", fmt.Sprintf("Events left for redelivery: %v", err))
	}
}

func ownedBy(order *models.Order, userID string) error {
	if order.UserID != userID {
		return fmt.Errorf("order %s: %w", order.ID, errs.ErrNotFound)
	}
	return nil
}

func requireDraft(order *models.Order) error {
	if order.Status != models.OrderStatusDraft {
		return errs.NewValidationError("status", "order_not_draft",
			"Cannot change the order items unless the order is in draft status")
	}
	return nil
}

// ---------------- CARTS ----------------

// FindOrCreateCart returns the user's live draft cart or opens a new one.
// An expired cart is cancelled, or deleted when it is empty, first.
func (s *Service) FindOrCreateCart(ctx context.Context, userID string) (*models.Order, error) {
	var cart *models.Order
	var evs []models.DomainEvent

	err := s.withLock(ctx, "user:"+userID, func() error {
		return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			store := &orderdb.DB{Bun: tx}
			now := s.clock.Now()

			existing, err := store.FindDraftCart(ctx, userID)
			if err != nil {
				return err
			}
			if existing != nil {
				if !existing.Expired(now) {
					cart = existing
					return nil
				}
				if err := s.retire(ctx, tx, existing); err != nil {
					return err
				}
			}

			cart = &models.Order{
				ID:        uuid.NewString(),
				UserID:    userID,
				Status:    models.OrderStatusDraft,
				OrderType: models.OrderTypeCart,
				ExpiresAt: now.Add(s.cfg.CartExpiry),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := store.InsertOrder(ctx, cart); err != nil {
				return err
			}
			ev, err := events.Record(ctx, tx, events.OrderCreated, "orders", cart.ID, userID, cart, now)
			if err != nil {
				return err
			}
			evs = append(evs, *ev)
			s.logger.LogOrder("CREATE", cart.ID, "cart created for user "+userID)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evs)
	return cart, nil
}

// retire removes an expired draft cart so the user can open a new one.
func (s *Service) retire(ctx context.Context, tx bun.Tx, cart *models.Order) error {
	store := &orderdb.DB{Bun: tx}

	items, err := store.Items(ctx, cart.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		s.logger.LogOrder("DELETE", cart.ID, "expired empty cart removed")
		return store.DeleteOrder(ctx, cart.ID)
	}

	if _, err := s.ledger.ReleaseItems(ctx, tx, itemIDs(items, models.OrderItemTypeTickets)); err != nil {
		return err
	}
	cart.Status = models.OrderStatusCancelled
	cart.UpdatedAt = s.clock.Now()
	s.logger.LogOrder("CANCEL", cart.ID, "expired cart cancelled")
	return store.UpdateOrder(ctx, cart, "status", "updated_at")
}

// FindCartForUser returns the user's live draft cart, or nil.
func (s *Service) FindCartForUser(ctx context.Context, userID string) (*models.Order, error) {
	cart, err := (&orderdb.DB{Bun: s.db}).FindDraftCart(ctx, userID)
	if err != nil || cart == nil {
		return nil, err
	}
	if cart.Expired(s.clock.Now()) {
		return nil, nil
	}
	return cart, nil
}

// UpdateNote replaces the order's note.
func (s *Service) UpdateNote(ctx context.Context, orderID, userID, note string) (*models.Order, error) {
	var out *models.Order
	err := s.mutate(ctx, orderID, func(t *txn) error {
		if err := ownedBy(t.order, userID); err != nil {
			return err
		}
		t.order.Note = note
		t.order.UpdatedAt = s.clock.Now()
		if err := t.store.UpdateOrder(t.ctx, t.order, "note", "updated_at"); err != nil {
			return err
		}
		out = t.order
		return s.emit(t, events.OrderUpdated, userID, map[string]string{"note": note})
	})
	return out, err
}

// Cancel moves a draft order to Cancelled and releases its inventory.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) error {
	return s.mutate(ctx, orderID, func(t *txn) error {
		if err := ownedBy(t.order, userID); err != nil {
			return err
		}
		if t.order.Status != models.OrderStatusDraft {
			return fmt.Errorf("cancel %s order %s: %w", t.order.Status, orderID, errs.ErrInvalidStateTransition)
		}
		items, err := t.store.Items(t.ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ReleaseItems(t.ctx, t.tx, itemIDs(items, models.OrderItemTypeTickets)); err != nil {
			return err
		}
		t.order.Status = models.OrderStatusCancelled
		t.order.UpdatedAt = s.clock.Now()
		s.logger.LogOrder("CANCEL", orderID, "cancelled by user")
		return t.store.UpdateOrder(t.ctx, t.order, "status", "updated_at")
	})
}

// ClearCart removes every item from a draft cart.
func (s *Service) ClearCart(ctx context.Context, orderID, userID string) error {
	return s.mutate(ctx, orderID, func(t *txn) error {
		if err := ownedBy(t.order, userID); err != nil {
			return err
		}
		if err := requireDraft(t.order); err != nil {
			return err
		}
		items, err := t.store.Items(t.ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ReleaseItems(t.ctx, t.tx, itemIDs(items, models.OrderItemTypeTickets)); err != nil {
			return err
		}
		s.logger.LogOrder("CLEAR", orderID, fmt.Sprintf("%d items removed", len(items)))
		return t.store.DeleteItems(t.ctx, itemIDs(items, "")...)
	})
}

// Destroy deletes an unpaid draft order outright.
func (s *Service) Destroy(ctx context.Context, orderID, userID string) error {
	return s.mutate(ctx, orderID, func(t *txn) error {
		if err := ownedBy(t.order, userID); err != nil {
			return err
		}
		if err := requireDraft(t.order); err != nil {
			return err
		}
		items, err := t.store.Items(t.ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ReleaseItems(t.ctx, t.tx, itemIDs(items, models.OrderItemTypeTickets)); err != nil {
			return err
		}
		s.logger.LogOrder("DELETE", orderID, "destroyed")
		return t.store.DeleteOrder(t.ctx, orderID)
	})
}

// RemoveAbandonedCarts deletes empty draft carts past expiry.
func (s *Service) RemoveAbandonedCarts(ctx context.Context) (int, error) {
	removed := 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		store := &orderdb.DB{Bun: tx}
		ids, err := store.AbandonedCarts(ctx, s.clock.Now())
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := store.DeleteOrder(ctx, id); err != nil {
				return err
			}
		}
		removed = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("ORDER", fmt.Sprintf("Removed %d abandoned carts", removed))
	}
	return removed, nil
}

// ---------------- READS ----------------

func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return (&orderdb.DB{Bun: s.db}).GetOrder(ctx, orderID)
}

func (s *Service) HasItems(ctx context.Context, orderID string) (bool, error) {
	return (&orderdb.DB{Bun: s.db}).HasItems(ctx, orderID)
}

// FindItem looks itemID up inside orderID. Items of other orders are
// reported as not found.
func (s *Service) FindItem(ctx context.Context, orderID, itemID string) (*models.OrderItem, error) {
	return (&orderdb.DB{Bun: s.db}).GetItem(ctx, orderID, itemID)
}

func (s *Service) Items(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return (&orderdb.DB{Bun: s.db}).Items(ctx, orderID)
}

func (s *Service) Payments(ctx context.Context, orderID string) ([]models.Payment, error) {
	return (&orderdb.DB{Bun: s.db}).Payments(ctx, orderID)
}

func (s *Service) Refunds(ctx context.Context, orderID string) ([]models.Refund, error) {
	return (&orderdb.DB{Bun: s.db}).Refunds(ctx, orderID)
}

// Events returns the distinct events the order's items belong to.
func (s *Service) Events(ctx context.Context, orderID string) ([]models.Event, error) {
	store := &orderdb.DB{Bun: s.db}
	items, err := store.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return store.Events(ctx, eventIDs(items))
}

// Organizations returns the organizations behind the order's events.
func (s *Service) Organizations(ctx context.Context, orderID string) ([]models.Organization, error) {
	evs, err := s.Events(ctx, orderID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, ev := range evs {
		if !seen[ev.OrganizationID] {
			seen[ev.OrganizationID] = true
			ids = append(ids, ev.OrganizationID)
		}
	}
	return (&orderdb.DB{Bun: s.db}).Organizations(ctx, ids)
}

// CalculateTotal sums the unrefunded value of every item.
func (s *Service) CalculateTotal(ctx context.Context, orderID string) (int64, error) {
	items, err := s.Items(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return total(items), nil
}

func total(items []models.OrderItem) int64 {
	var sum int64
	for i := range items {
		sum += items[i].Total()
	}
	return sum
}

// itemIDs returns the ids of items of type typ, or of all items when typ
// is empty.
func itemIDs(items []models.OrderItem, typ models.OrderItemType) []string {
	var ids []string
	for _, item := range items {
		if typ == "" || item.ItemType == typ {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

func eventIDs(items []models.OrderItem) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, item := range items {
		if item.EventID != "" && !seen[item.EventID] {
			seen[item.EventID] = true
			ids = append(ids, item.EventID)
		}
	}
	return ids
}

// IsConflict reports errors a client resolves by re-reading the order.
func IsConflict(err error) bool {
	return errors.Is(err, errs.ErrInsufficientInventory) ||
		errors.Is(err, errs.ErrAlreadyRefunded) ||
		errors.Is(err, errs.ErrInvalidStateTransition)
}
