package order

import (
	"context"
	"fmt"

	"ms-ordering/internal/errs"
	"ms-ordering/internal/events"
	"ms-ordering/internal/models"

	"github.com/google/uuid"
)

// AddExternalPayment records a payment made outside the gateway. The first
// payment that covers the total marks the order Paid, purchases its
// instances and emits OrderCompleted.
func (s *Service) AddExternalPayment(ctx context.Context, orderID, userID string, amountInCents int64, reference string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.mutate(ctx, orderID, func(t *txn) error {
		if amountInCents <= 0 {
			return errs.NewValidationError("amount", "invalid", "Payment amount must be positive")
		}
		if !t.order.Status.Unpaid() {
			return errs.NewValidationError("status", "order_not_payable",
				fmt.Sprintf("Cannot add a payment to a %s order", t.order.Status))
		}

		items, err := t.store.Items(t.ctx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return errs.NewValidationError("order", "empty", "Cannot pay for an empty order")
		}

		now := s.clock.Now()
		statuses, err := s.itemStatuses(t.ctx, t.tx, t.order, items, now)
		if err != nil {
			return err
		}
		if verr := validityError(statuses); verr != nil {
			return verr
		}

		payment = &models.Payment{
			ID:                uuid.NewString(),
			OrderID:           orderID,
			CreatedBy:         userID,
			Status:            models.PaymentStatusCompleted,
			PaymentMethod:     models.PaymentMethodExternal,
			Amount:            amountInCents,
			ExternalReference: reference,
			CreatedAt:         now,
		}
		if err := t.store.InsertPayment(t.ctx, payment); err != nil {
			return err
		}
		if err := s.emit(t, events.PaymentCreated, userID, payment); err != nil {
			return err
		}

		paid, err := t.store.PaidSum(t.ctx, orderID)
		if err != nil {
			return err
		}
		orderTotal := total(items)

		switch {
		case paid >= orderTotal:
			return s.complete(t, items, paid, orderTotal, userID)
		case t.order.Status != models.OrderStatusPartiallyPaid:
			t.order.Status = models.OrderStatusPartiallyPaid
			t.order.UpdatedAt = now
			if err := t.store.UpdateOrder(t.ctx, t.order, "status", "updated_at"); err != nil {
				return err
			}
		}
		s.logger.LogOrder("PAYMENT", orderID, fmt.Sprintf("%d of %d paid", paid, orderTotal))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) complete(t *txn, items []models.OrderItem, paid, orderTotal int64, userID string) error {
	now := s.clock.Now()
	for _, id := range itemIDs(items, models.OrderItemTypeTickets) {
		if _, err := s.ledger.MarkPurchased(t.ctx, t.tx, id); err != nil {
			return err
		}
	}

	t.order.Status = models.OrderStatusPaid
	t.order.PaidAt = now
	t.order.UpdatedAt = now
	if err := t.store.UpdateOrder(t.ctx, t.order, "status", "paid_at", "updated_at"); err != nil {
		return err
	}

	s.logger.LogOrder("PAID", t.order.ID, fmt.Sprintf("%d paid against %d", paid, orderTotal))
	return s.emit(t, events.OrderCompleted, userID, map[string]interface{}{
		"order_id":       t.order.ID,
		"user_id":        t.order.UserID,
		"total_in_cents": orderTotal,
		"paid_in_cents":  paid,
	})
}
