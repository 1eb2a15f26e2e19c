package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-ordering/internal/auth"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"
	orderredis "ms-ordering/internal/order/redis"
	"ms-ordering/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OrderService is the part of the order aggregate the HTTP layer uses.
type OrderService interface {
	FindOrCreateCart(ctx context.Context, userID string) (*models.Order, error)
	FindCartForUser(ctx context.Context, userID string) (*models.Order, error)
	UpdateQuantities(ctx context.Context, orderID, userID string, lines []order.LineRequest, boxOffice, replace bool) ([]models.OrderItem, error)
	ClearCart(ctx context.Context, orderID, userID string) error
	ClearInvalidItems(ctx context.Context, orderID, userID string) (int, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ForDisplay(ctx context.Context, orderID string, scope order.Scope) (*order.DisplayOrder, error)
	Details(ctx context.Context, orderID string, scope order.Scope) ([]order.DetailLine, error)
	StaffScope(ctx context.Context, orderID, viewerID string) (order.Scope, error)
	Manages(ctx context.Context, orderID, viewerID string) (bool, error)
	UpdateNote(ctx context.Context, orderID, userID, note string) (*models.Order, error)
	Cancel(ctx context.Context, orderID, userID string) error
	AddExternalPayment(ctx context.Context, orderID, userID string, amountInCents int64, reference string) (*models.Payment, error)
	Refund(ctx context.Context, orderID, requesterID string, items []order.RefundItem) (int64, error)
}

type Handler struct {
	Orders OrderService
	Logger *logger.Logger
}

func NewHandler(orders OrderService, log *logger.Logger) *Handler {
	return &Handler{Orders: orders, Logger: log}
}

// Routes mounts the cart and order endpoints. Callers put them behind
// auth.Middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.logRequests)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Put("/", h.UpdateCart)
		r.Delete("/", h.ClearCart)
		r.Post("/clear-invalid-items", h.ClearInvalidItems)
	})

	r.Route("/orders/{orderId}", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Patch("/", h.UpdateOrder)
		r.Delete("/", h.CancelOrder)
		r.Get("/details", h.GetOrderDetails)
		r.Post("/payments", h.AddPayment)
		r.Post("/refund", h.RefundOrder)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.Status()), time.Since(start).String())
	})
}

func (h *Handler) respond(w http.ResponseWriter, status int, message string, data interface{}) {
	if err := utils.WriteJSON(w, status, utils.SuccessResponse(message, data)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

// fail maps err onto a status: field errors 422, missing 404, conflicts
// 409, anything else 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := errs.AsValidation(err); ok {
		_ = utils.WriteJSON(w, http.StatusUnprocessableEntity, utils.ValidationResponse(v))
		return
	}

	status, message := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case order.IsConflict(err), errors.Is(err, orderredis.ErrLockTimeout):
		status, message = http.StatusConflict, "Conflict"
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		_ = utils.WriteJSON(w, status, utils.ErrorResponse(message, "unexpected error"))
		return
	}
	_ = utils.WriteJSON(w, status, utils.ErrorResponse(message, err.Error()))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}

// ---------------- CART ----------------

type UpdateCartRequest struct {
	Items            []order.LineRequest `json:"items"`
	BoxOfficePricing bool                `json:"box_office_pricing"`
	// Replace makes Items the whole cart; otherwise they are merged in.
	Replace bool `json:"replace"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	cart, err := h.Orders.FindCartForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cart == nil {
		h.respond(w, http.StatusOK, "No active cart", nil)
		return
	}

	d, err := h.Orders.ForDisplay(r.Context(), cart.ID, order.Scope{ViewerID: userID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Cart retrieved", d)
}

func (h *Handler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req UpdateCartRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.Orders.FindOrCreateCart(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Orders.UpdateQuantities(r.Context(), cart.ID, userID, req.Items, req.BoxOfficePricing, req.Replace); err != nil {
		h.fail(w, r, err)
		return
	}

	d, err := h.Orders.ForDisplay(r.Context(), cart.ID, order.Scope{ViewerID: userID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Cart updated", d)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	cart, err := h.Orders.FindCartForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cart != nil {
		if err := h.Orders.ClearCart(r.Context(), cart.ID, userID); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearInvalidItems(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	cart, err := h.Orders.FindCartForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cart == nil {
		h.fail(w, r, fmt.Errorf("cart of %s: %w", userID, errs.ErrNotFound))
		return
	}

	removed, err := h.Orders.ClearInvalidItems(r.Context(), cart.ID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Invalid items removed", map[string]int{"removed": removed})
}
