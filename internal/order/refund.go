package order

import (
	"context"
	"fmt"

	"ms-ordering/internal/errs"
	"ms-ordering/internal/events"
	"ms-ordering/internal/models"

	"github.com/google/uuid"
)

// RefundItem names one unit to refund: a ticket instance of a Tickets
// item, or an EventFees item with no instance.
type RefundItem struct {
	OrderItemID      string `json:"order_item_id"`
	TicketInstanceID string `json:"ticket_instance_id,omitempty"`
}

// Refund refunds the given units of a paid order and returns the cents
// refunded by this call. A ticket refund takes its per-unit fee with it;
// refunding the last ticket of an event also refunds that event's fee.
func (s *Service) Refund(ctx context.Context, orderID, requesterID string, refundItems []RefundItem) (int64, error) {
	var refunded int64
	err := s.mutate(ctx, orderID, func(t *txn) error {
		if t.order.Status != models.OrderStatusPaid {
			return errs.NewValidationError("status", "order_not_paid", "Only paid orders can be refunded")
		}
		if len(refundItems) == 0 {
			return errs.NewValidationError("items", "required", "Nothing to refund")
		}

		items, err := t.store.Items(t.ctx, orderID)
		if err != nil {
			return err
		}
		byID := make(map[string]*models.OrderItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		refundID := uuid.NewString()
		var tickets []models.RefundedTicket
		touched := make(map[string]*models.OrderItem)
		seen := make(map[RefundItem]bool)

		for _, ri := range refundItems {
			item, ok := byID[ri.OrderItemID]
			if !ok {
				return fmt.Errorf("order item %s: %w", ri.OrderItemID, errs.ErrNotFound)
			}
			if seen[ri] {
				return fmt.Errorf("order item %s instance %s: %w", ri.OrderItemID, ri.TicketInstanceID, errs.ErrAlreadyRefunded)
			}
			seen[ri] = true

			switch item.ItemType {
			case models.OrderItemTypeTickets:
				amount, err := s.refundTicket(t, item, feeChild(items, item.ID), ri.TicketInstanceID)
				if err != nil {
					return err
				}
				refunded += amount
				tickets = append(tickets, models.RefundedTicket{
					ID:               uuid.NewString(),
					RefundID:         refundID,
					OrderItemID:      item.ID,
					TicketInstanceID: ri.TicketInstanceID,
				})
				touched[item.ID] = item
				if child := feeChild(items, item.ID); child != nil {
					touched[child.ID] = child
				}
			case models.OrderItemTypeEventFees:
				if item.RemainingQuantity() <= 0 {
					return fmt.Errorf("event fee %s: %w", item.ID, errs.ErrAlreadyRefunded)
				}
				item.RefundedQuantity++
				refunded += item.UnitPriceInCents
				touched[item.ID] = item
			default:
				return errs.NewValidationError("order_item_id", "fee_refunded_with_ticket",
					"Per ticket fees are refunded with their ticket")
			}
		}

		refunded += refundOrphanedEventFees(items, touched)

		now := s.clock.Now()
		for _, item := range touched {
			item.UpdatedAt = now
			if err := t.store.UpdateItem(t.ctx, item, "refunded_quantity", "updated_at"); err != nil {
				return err
			}
		}

		refund := &models.Refund{
			ID:        refundID,
			OrderID:   orderID,
			UserID:    requesterID,
			Amount:    refunded,
			CreatedAt: now,
		}
		if err := t.store.InsertRefund(t.ctx, refund, tickets); err != nil {
			return err
		}

		s.logger.LogOrder("REFUND", orderID, fmt.Sprintf("%d cents refunded", refunded))
		return s.emit(t, events.OrderRefunded, requesterID, map[string]interface{}{
			"refund_id":       refundID,
			"amount_in_cents": refunded,
			"items":           refundItems,
		})
	})
	if err != nil {
		return 0, err
	}
	return refunded, nil
}

func (s *Service) refundTicket(t *txn, item, fee *models.OrderItem, instanceID string) (int64, error) {
	if instanceID == "" {
		return 0, errs.NewValidationError("ticket_instance_id", "required", "Ticket refunds must name the ticket instance")
	}
	already, err := t.store.TicketRefunded(t.ctx, item.ID, instanceID)
	if err != nil {
		return 0, err
	}
	if already || item.RemainingQuantity() <= 0 {
		return 0, fmt.Errorf("ticket %s of item %s: %w", instanceID, item.ID, errs.ErrAlreadyRefunded)
	}

	if err := s.ledger.ReleaseInstance(t.ctx, t.tx, item.ID, instanceID); err != nil {
		return 0, err
	}

	item.RefundedQuantity++
	amount := item.UnitPriceInCents
	if fee != nil && fee.RemainingQuantity() > 0 {
		fee.RefundedQuantity++
		amount += fee.UnitPriceInCents
	}
	return amount, nil
}

// refundOrphanedEventFees fully refunds the event fee of every event whose
// tickets are now all refunded and returns the amount.
func refundOrphanedEventFees(items []models.OrderItem, touched map[string]*models.OrderItem) int64 {
	remaining := make(map[string]int64)
	for i := range items {
		if items[i].ItemType == models.OrderItemTypeTickets {
			remaining[items[i].EventID] += items[i].RemainingQuantity()
		}
	}

	var amount int64
	for i := range items {
		item := &items[i]
		if item.ItemType != models.OrderItemTypeEventFees || item.RemainingQuantity() <= 0 {
			continue
		}
		if remaining[item.EventID] > 0 {
			continue
		}
		amount += item.Total()
		item.RefundedQuantity = item.Quantity
		touched[item.ID] = item
	}
	return amount
}
