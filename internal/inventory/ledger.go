package inventory

import (
	"context"
	"fmt"
	"time"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"

	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/bun"
)

// Ledger applies instance transitions. Every method runs on the bun.IDB it
// is given, normally the caller's transaction.
type Ledger struct {
	clock  clock.Clock
	window time.Duration
	logger *logger.Logger
}

func NewLedger(clk clock.Clock, reservationWindow time.Duration, log *logger.Logger) *Ledger {
	return &Ledger{clock: clk, window: reservationWindow, logger: log}
}

// ReservedUntil is the expiry a reservation made now receives.
func (l *Ledger) ReservedUntil() time.Time {
	return l.clock.Now().Add(l.window)
}

// Reserve claims quantity instances of ticketTypeID for orderItemID. With a
// holdID only that hold's instances are eligible, otherwise only unheld
// ones. Fewer eligible instances than quantity fails with
// errs.ErrInsufficientInventory and claims nothing.
func (l *Ledger) Reserve(ctx context.Context, idb bun.IDB, ticketTypeID, holdID string, quantity int, orderItemID string) ([]string, error) {
	if quantity <= 0 {
		return nil, nil
	}
	store := &DB{Bun: idb}
	now := l.clock.Now()

	ids, err := store.EligibleIDs(ctx, ticketTypeID, holdID, now, quantity)
	if err != nil {
		return nil, err
	}
	if len(ids) < quantity {
		return nil, fmt.Errorf("ticket type %s: requested %d, %d available: %w",
			ticketTypeID, quantity, len(ids), errs.ErrInsufficientInventory)
	}

	claimed, err := store.Claim(ctx, ids, orderItemID, now, now.Add(l.window))
	if err != nil {
		return nil, err
	}
	if int(claimed) != quantity {
		return nil, fmt.Errorf("ticket type %s: claimed %d of %d: %w",
			ticketTypeID, claimed, quantity, errs.ErrInsufficientInventory)
	}

	l.logger.LogInventory("RESERVE", ticketTypeID, fmt.Sprintf("%d instances for item %s", quantity, orderItemID))
	return ids, nil
}

// ReserveHeld claims quantity instances of holdID like Reserve, but fails
// with errs.ErrInsufficientInventory unless at least keep eligible
// instances of the hold remain afterwards. Callers hold the hold's row
// lock so the count and the claim see the same pool.
func (l *Ledger) ReserveHeld(ctx context.Context, idb bun.IDB, ticketTypeID, holdID string, quantity int, keep int64, orderItemID string) ([]string, error) {
	if quantity <= 0 {
		return nil, nil
	}
	free, err := (&DB{Bun: idb}).CountEligible(ctx, ticketTypeID, holdID, l.clock.Now())
	if err != nil {
		return nil, err
	}
	if int64(free-quantity) < keep {
		return nil, fmt.Errorf("hold %s: requested %d, %d free and %d owed to comps: %w",
			holdID, quantity, free, keep, errs.ErrInsufficientInventory)
	}
	return l.Reserve(ctx, idb, ticketTypeID, holdID, quantity, orderItemID)
}

// ReleaseAll returns every instance linked to orderItemID to the pool.
func (l *Ledger) ReleaseAll(ctx context.Context, idb bun.IDB, orderItemID string) (int, error) {
	return l.release(ctx, idb, orderItemID, 0)
}

// Release unlinks up to count instances from orderItemID, nullified ones
// first.
func (l *Ledger) Release(ctx context.Context, idb bun.IDB, orderItemID string, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	return l.release(ctx, idb, orderItemID, count)
}

func (l *Ledger) release(ctx context.Context, idb bun.IDB, orderItemID string, limit int) (int, error) {
	store := &DB{Bun: idb}

	ids, err := store.LinkedIDs(ctx, orderItemID, limit)
	if err != nil {
		return 0, err
	}
	released, err := store.Unlink(ctx, ids, l.clock.Now())
	if err != nil {
		return 0, err
	}

	if released > 0 {
		l.logger.LogInventory("RELEASE", orderItemID, fmt.Sprintf("%d instances", released))
	}
	return int(released), nil
}

// ReleaseItems releases every instance of each item and reports all
// failures together.
func (l *Ledger) ReleaseItems(ctx context.Context, idb bun.IDB, orderItemIDs []string) (int, error) {
	var result *multierror.Error
	total := 0
	for _, id := range orderItemIDs {
		n, err := l.ReleaseAll(ctx, idb, id)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("item %s: %w", id, err))
			continue
		}
		total += n
	}
	return total, result.ErrorOrNil()
}

// ReleaseInstance unlinks one instance from orderItemID, as a refund does.
func (l *Ledger) ReleaseInstance(ctx context.Context, idb bun.IDB, orderItemID, instanceID string) error {
	store := &DB{Bun: idb}

	instance, err := store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.OrderItemID != orderItemID {
		return fmt.Errorf("ticket instance %s is not linked to item %s: %w", instanceID, orderItemID, errs.ErrNotFound)
	}
	if instance.Status != models.TicketInstanceNullified && !CanTransition(instance.Status, models.TicketInstanceAvailable) {
		return fmt.Errorf("release %s instance %s: %w", instance.Status, instanceID, errs.ErrInvalidStateTransition)
	}

	if _, err := store.Unlink(ctx, []string{instanceID}, l.clock.Now()); err != nil {
		return err
	}
	l.logger.LogInventory("RELEASE", instance.TicketTypeID, fmt.Sprintf("instance %s from item %s", instanceID, orderItemID))
	return nil
}

// Extend pushes reserved_until forward for instances still linked to the
// items. Lapsed reservations nobody has taken over are renewed too.
func (l *Ledger) Extend(ctx context.Context, idb bun.IDB, orderItemIDs []string) (time.Time, error) {
	until := l.ReservedUntil()
	_, err := (&DB{Bun: idb}).Extend(ctx, orderItemIDs, l.clock.Now(), until)
	return until, err
}

// MarkPurchased moves the item's reserved instances to Purchased.
func (l *Ledger) MarkPurchased(ctx context.Context, idb bun.IDB, orderItemID string) (int, error) {
	n, err := (&DB{Bun: idb}).MarkPurchased(ctx, orderItemID, l.clock.Now())
	return int(n), err
}

// Redeem marks a reserved or purchased instance as used at the door.
func (l *Ledger) Redeem(ctx context.Context, idb bun.IDB, instanceID string) error {
	return l.transition(ctx, idb, instanceID, models.TicketInstanceRedeemed)
}

// Nullify takes an instance out of circulation for good.
func (l *Ledger) Nullify(ctx context.Context, idb bun.IDB, instanceID string) error {
	return l.transition(ctx, idb, instanceID, models.TicketInstanceNullified)
}

func (l *Ledger) transition(ctx context.Context, idb bun.IDB, instanceID string, to models.TicketInstanceStatus) error {
	store := &DB{Bun: idb}

	instance, err := store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if !CanTransition(instance.Status, to) {
		return fmt.Errorf("instance %s %s -> %s: %w", instanceID, instance.Status, to, errs.ErrInvalidStateTransition)
	}
	if err := store.SetStatus(ctx, instanceID, instance.Status, to, l.clock.Now()); err != nil {
		return err
	}

	l.logger.LogInventory(string(to), instance.TicketTypeID, instanceID)
	return nil
}

// Available counts instances a reservation could claim right now.
func (l *Ledger) Available(ctx context.Context, idb bun.IDB, ticketTypeID, holdID string) (int, error) {
	return (&DB{Bun: idb}).CountEligible(ctx, ticketTypeID, holdID, l.clock.Now())
}

// Linked returns the instances currently linked to the items.
func (l *Ledger) Linked(ctx context.Context, idb bun.IDB, orderItemIDs []string) ([]models.TicketInstance, error) {
	return (&DB{Bun: idb}).ForItems(ctx, orderItemIDs)
}
