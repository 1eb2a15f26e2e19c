package order_api

import (
	"net/http"

	"ms-ordering/internal/auth"
	"ms-ordering/internal/order"

	"github.com/go-chi/chi/v5"
)

type PaymentRequest struct {
	AmountInCents int64  `json:"amount_in_cents"`
	Reference     string `json:"reference"`
}

// AddPayment records an external payment. The purchaser or a manager of
// every event in the order may pay.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	userID := auth.UserID(r.Context())

	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if o.UserID != userID {
		if err := h.verifyManager(r.Context(), orderID, userID); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	payment, err := h.Orders.AddExternalPayment(r.Context(), orderID, userID, req.AmountInCents, req.Reference)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Payment recorded", payment)
}

type RefundRequest struct {
	Items []order.RefundItem `json:"items"`
}

type RefundResponse struct {
	OrderID             string `json:"order_id"`
	RefundedAmountCents int64  `json:"refunded_amount_in_cents"`
}

// RefundOrder is for organization staff only.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	userID := auth.UserID(r.Context())

	var req RefundRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.verifyManager(r.Context(), orderID, userID); err != nil {
		h.fail(w, r, err)
		return
	}

	amount, err := h.Orders.Refund(r.Context(), orderID, userID, req.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Order refunded", RefundResponse{OrderID: orderID, RefundedAmountCents: amount})
}
