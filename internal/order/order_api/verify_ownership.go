package order_api

import (
	"context"
	"fmt"

	"ms-ordering/internal/errs"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"
)

// scopeFor decides how much of o viewerID may see. The purchaser sees the
// whole order; anyone else sees the events their memberships cover.
func (h *Handler) scopeFor(ctx context.Context, o *models.Order, viewerID string) (order.Scope, bool, error) {
	if o.UserID == viewerID {
		return order.Scope{ViewerID: viewerID}, true, nil
	}
	scope, err := h.Orders.StaffScope(ctx, o.ID, viewerID)
	return scope, false, err
}

// verifyManager fails with not found unless viewerID manages every event of
// the order, so the order's existence does not leak.
func (h *Handler) verifyManager(ctx context.Context, orderID, viewerID string) error {
	ok, err := h.Orders.Manages(ctx, orderID, viewerID)
	if err != nil {
		return err
	}
	if !ok {
		h.Logger.LogSecurity("ORDER_ACCESS_DENIED", fmt.Sprintf("user %s on order %s", viewerID, orderID))
		return fmt.Errorf("order %s: %w", orderID, errs.ErrNotFound)
	}
	return nil
}
