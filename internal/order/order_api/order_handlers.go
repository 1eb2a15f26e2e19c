package order_api

import (
	"fmt"
	"net/http"

	"ms-ordering/internal/auth"
	"ms-ordering/internal/errs"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	userID := auth.UserID(r.Context())

	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	scope, owner, err := h.scopeFor(r.Context(), o, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	d, err := h.Orders.ForDisplay(r.Context(), orderID, scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !owner && len(d.Items) == 0 {
		h.fail(w, r, fmt.Errorf("order %s: %w", orderID, errs.ErrNotFound))
		return
	}
	h.respond(w, http.StatusOK, "Order retrieved", d)
}

func (h *Handler) GetOrderDetails(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	userID := auth.UserID(r.Context())

	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	scope, owner, err := h.scopeFor(r.Context(), o, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	lines, err := h.Orders.Details(r.Context(), orderID, scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !owner && len(lines) == 0 {
		h.fail(w, r, fmt.Errorf("order %s: %w", orderID, errs.ErrNotFound))
		return
	}
	h.respond(w, http.StatusOK, "Order details retrieved", lines)
}

type UpdateOrderRequest struct {
	Note string `json:"note"`
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req UpdateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.Orders.UpdateNote(r.Context(), orderID, auth.UserID(r.Context()), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Order updated", o)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	if err := h.Orders.Cancel(r.Context(), orderID, auth.UserID(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.LogOrder("CANCEL", orderID, "cancelled through API")
	w.WriteHeader(http.StatusNoContent)
}
