package order

import (
	"context"
	"time"

	"ms-ordering/internal/codes"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/models"
	orderdb "ms-ordering/internal/order/db"

	"github.com/uptrace/bun"
)

// ItemStatus is the purchase state of one Tickets item.
type ItemStatus string

const (
	ItemValid             ItemStatus = "Valid"
	ItemTicketNotReserved ItemStatus = "TicketNotReserved"
	ItemTicketNullified   ItemStatus = "TicketNullified"
	ItemCodeExpired       ItemStatus = "CodeExpired"
	ItemHoldExpired       ItemStatus = "HoldExpired"
	ItemRefunded          ItemStatus = "Refunded"
)

// Err is the field error payment reports for a stale item.
func (st ItemStatus) Err() *errs.ValidationError {
	switch st {
	case ItemTicketNotReserved:
		return errs.NewValidationError("ticket_instances", "ticket_not_reserved", "Tickets are no longer reserved")
	case ItemTicketNullified:
		return errs.NewValidationError("ticket_instances", "ticket_nullified", "Tickets have been nullified")
	case ItemCodeExpired:
		return errs.NewValidationError("code_id", "code_expired", "Code is no longer valid")
	case ItemHoldExpired:
		return errs.NewValidationError("hold_id", "hold_expired", "Hold is no longer valid")
	default:
		return nil
	}
}

// itemStatuses classifies every Tickets item of order at now. Reservation
// expiry and code windows only matter while the order is unpaid.
func (s *Service) itemStatuses(ctx context.Context, idb bun.IDB, order *models.Order, items []models.OrderItem, now time.Time) (map[string]ItemStatus, error) {
	ticketIDs := itemIDs(items, models.OrderItemTypeTickets)
	instances, err := s.ledger.Linked(ctx, idb, ticketIDs)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string][]models.TicketInstance)
	for _, in := range instances {
		byItem[in.OrderItemID] = append(byItem[in.OrderItemID], in)
	}

	unpaid := order.Status.Unpaid()
	codeStore := &codes.DB{Bun: idb}
	statuses := make(map[string]ItemStatus, len(ticketIDs))

	for i := range items {
		item := &items[i]
		if item.ItemType != models.OrderItemTypeTickets {
			continue
		}
		status, err := s.itemStatus(ctx, codeStore, item, byItem[item.ID], unpaid, now)
		if err != nil {
			return nil, err
		}
		statuses[item.ID] = status
	}
	return statuses, nil
}

func (s *Service) itemStatus(ctx context.Context, codeStore *codes.DB, item *models.OrderItem, linked []models.TicketInstance, unpaid bool, now time.Time) (ItemStatus, error) {
	if item.Quantity > 0 && item.RemainingQuantity() <= 0 {
		return ItemRefunded, nil
	}

	live := 0
	for _, in := range linked {
		if in.Status == models.TicketInstanceNullified {
			return ItemTicketNullified, nil
		}
		if unpaid && !in.ReservedUntil.After(now) {
			return ItemTicketNotReserved, nil
		}
		live++
	}
	if int64(live) < item.RemainingQuantity() {
		return ItemTicketNotReserved, nil
	}

	if !unpaid {
		return ItemValid, nil
	}

	if item.CodeID != "" {
		code, err := codeStore.GetCode(ctx, item.CodeID)
		if err != nil {
			return "", err
		}
		if s.validator.InWindow(&codes.Redemption{Code: code}, now) != codes.Valid {
			return ItemCodeExpired, nil
		}
	}
	if item.HoldID != "" {
		hold, err := codeStore.GetHold(ctx, item.HoldID)
		if err != nil {
			return "", err
		}
		if s.validator.InWindow(&codes.Redemption{Hold: hold}, now) != codes.Valid {
			return ItemHoldExpired, nil
		}
	}
	return ItemValid, nil
}

// validityError merges the field errors of every stale item.
func validityError(statuses map[string]ItemStatus) *errs.ValidationError {
	verr := &errs.ValidationError{}
	seen := make(map[ItemStatus]bool)
	for _, st := range statuses {
		if st == ItemValid || seen[st] {
			continue
		}
		seen[st] = true
		verr.Merge(st.Err())
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// ItemsValidForPurchase reports whether every ticket line still holds its
// reservations and its code or hold is still in its window.
func (s *Service) ItemsValidForPurchase(ctx context.Context, orderID string) (bool, error) {
	store := &orderdb.DB{Bun: s.db}
	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	items, err := store.Items(ctx, orderID)
	if err != nil {
		return false, err
	}
	statuses, err := s.itemStatuses(ctx, s.db, order, items, s.clock.Now())
	if err != nil {
		return false, err
	}
	return validityError(statuses) == nil, nil
}

// ClearInvalidItems drops every stale ticket line from a draft cart and
// returns how many were removed.
func (s *Service) ClearInvalidItems(ctx context.Context, orderID, userID string) (int, error) {
	removed := 0
	err := s.mutate(ctx, orderID, func(t *txn) error {
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
		statuses, err := s.itemStatuses(t.ctx, t.tx, t.order, items, s.clock.Now())
		if err != nil {
			return err
		}

		for i := range items {
			st, ok := statuses[items[i].ID]
			if !ok || st == ItemValid {
				continue
			}
			if err := s.removeLine(t, &items[i], items); err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return nil
		}

		s.logger.LogOrder("CLEAR", orderID, "removed stale items")
		return s.syncEventFees(t)
	})
	return removed, err
}
