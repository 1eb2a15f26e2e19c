package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ms-ordering/internal/auth"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"
	"ms-ordering/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) FindOrCreateCart(ctx context.Context, userID string) (*models.Order, error) {
	args := m.Called(ctx, userID)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) FindCartForUser(ctx context.Context, userID string) (*models.Order, error) {
	args := m.Called(ctx, userID)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) UpdateQuantities(ctx context.Context, orderID, userID string, lines []order.LineRequest, boxOffice, replace bool) ([]models.OrderItem, error) {
	args := m.Called(ctx, orderID, userID, lines, boxOffice, replace)
	items, _ := args.Get(0).([]models.OrderItem)
	return items, args.Error(1)
}

func (m *MockOrderService) ClearCart(ctx context.Context, orderID, userID string) error {
	return m.Called(ctx, orderID, userID).Error(0)
}

func (m *MockOrderService) ClearInvalidItems(ctx context.Context, orderID, userID string) (int, error) {
	args := m.Called(ctx, orderID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) ForDisplay(ctx context.Context, orderID string, scope order.Scope) (*order.DisplayOrder, error) {
	args := m.Called(ctx, orderID, scope)
	d, _ := args.Get(0).(*order.DisplayOrder)
	return d, args.Error(1)
}

func (m *MockOrderService) Details(ctx context.Context, orderID string, scope order.Scope) ([]order.DetailLine, error) {
	args := m.Called(ctx, orderID, scope)
	lines, _ := args.Get(0).([]order.DetailLine)
	return lines, args.Error(1)
}

func (m *MockOrderService) StaffScope(ctx context.Context, orderID, viewerID string) (order.Scope, error) {
	args := m.Called(ctx, orderID, viewerID)
	return args.Get(0).(order.Scope), args.Error(1)
}

func (m *MockOrderService) Manages(ctx context.Context, orderID, viewerID string) (bool, error) {
	args := m.Called(ctx, orderID, viewerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderService) UpdateNote(ctx context.Context, orderID, userID, note string) (*models.Order, error) {
	args := m.Called(ctx, orderID, userID, note)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) Cancel(ctx context.Context, orderID, userID string) error {
	return m.Called(ctx, orderID, userID).Error(0)
}

func (m *MockOrderService) AddExternalPayment(ctx context.Context, orderID, userID string, amountInCents int64, reference string) (*models.Payment, error) {
	args := m.Called(ctx, orderID, userID, amountInCents, reference)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *MockOrderService) Refund(ctx context.Context, orderID, requesterID string, items []order.RefundItem) (int64, error) {
	args := m.Called(ctx, orderID, requesterID, items)
	return args.Get(0).(int64), args.Error(1)
}

// newTestServer routes through the handler with the user taken from the
// X-User header instead of a bearer token.
func newTestServer(svc OrderService) http.Handler {
	h := NewHandler(svc, logger.Discard())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithUserID(req.Context(), req.Header.Get("X-User"))))
		})
	})
	r.Route("/api", h.Routes)
	return r
}

func do(t *testing.T, srv http.Handler, method, path, user, body string) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp utils.APIResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestGetCartWithoutCart(t *testing.T) {
	svc := &MockOrderService{}
	svc.On("FindCartForUser", mock.Anything, "user-1").Return(nil, nil)

	w, resp := do(t, newTestServer(svc), http.MethodGet, "/api/cart", "user-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data)
	svc.AssertExpectations(t)
}

func TestUpdateCart(t *testing.T) {
	svc := &MockOrderService{}
	cart := &models.Order{ID: "cart-1", UserID: "user-1"}
	lines := []order.LineRequest{{TicketTypeID: "tt-1", Quantity: 2}}
	svc.On("FindOrCreateCart", mock.Anything, "user-1").Return(cart, nil)
	svc.On("UpdateQuantities", mock.Anything, "cart-1", "user-1", lines, false, true).Return([]models.OrderItem{}, nil)
	svc.On("ForDisplay", mock.Anything, "cart-1", order.Scope{ViewerID: "user-1"}).
		Return(&order.DisplayOrder{ID: "cart-1", TotalInCents: 340}, nil)

	w, resp := do(t, newTestServer(svc), http.MethodPut, "/api/cart", "user-1",
		`{"items":[{"ticket_type_id":"tt-1","quantity":2}],"replace":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(340), data["total_in_cents"])
	svc.AssertExpectations(t)
}

func TestUpdateCartValidationFailure(t *testing.T) {
	svc := &MockOrderService{}
	svc.On("FindOrCreateCart", mock.Anything, "user-1").Return(&models.Order{ID: "cart-1"}, nil)
	verr := errs.NewValidationError("quantity", "insufficient_inventory", "Could not reserve 6 more tickets").
		WithCause(errs.ErrInsufficientInventory)
	svc.On("UpdateQuantities", mock.Anything, "cart-1", "user-1", mock.Anything, false, false).Return(nil, verr)

	w, resp := do(t, newTestServer(svc), http.MethodPut, "/api/cart", "user-1",
		`{"items":[{"ticket_type_id":"tt-1","quantity":6}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Contains(t, resp.Fields, "quantity")
	assert.Equal(t, "insufficient_inventory", resp.Fields["quantity"][0].Code)
}

func TestMalformedBody(t *testing.T) {
	svc := &MockOrderService{}
	w, _ := do(t, newTestServer(svc), http.MethodPut, "/api/cart", "user-1", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "FindOrCreateCart", mock.Anything, mock.Anything)
}

func TestClearInvalidItems(t *testing.T) {
	svc := &MockOrderService{}
	svc.On("FindCartForUser", mock.Anything, "user-1").Return(&models.Order{ID: "cart-1"}, nil)
	svc.On("ClearInvalidItems", mock.Anything, "cart-1", "user-1").Return(2, nil)

	w, resp := do(t, newTestServer(svc), http.MethodPost, "/api/cart/clear-invalid-items", "user-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["removed"])

	svc = &MockOrderService{}
	svc.On("FindCartForUser", mock.Anything, "user-1").Return(nil, nil)
	w, _ = do(t, newTestServer(svc), http.MethodPost, "/api/cart/clear-invalid-items", "user-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderVisibility(t *testing.T) {
	svc := &MockOrderService{}
	o := &models.Order{ID: "order-1", UserID: "user-1"}
	staff := order.Scope{ViewerID: "staff-1", Organizations: []string{"org-1"}}
	svc.On("GetOrder", mock.Anything, "order-1").Return(o, nil)
	svc.On("ForDisplay", mock.Anything, "order-1", order.Scope{ViewerID: "user-1"}).
		Return(&order.DisplayOrder{ID: "order-1", Items: []order.DisplayOrderItem{{ID: "item-1"}}}, nil)
	svc.On("StaffScope", mock.Anything, "order-1", "staff-1").Return(staff, nil)
	svc.On("ForDisplay", mock.Anything, "order-1", staff).
		Return(&order.DisplayOrder{ID: "order-1", Items: []order.DisplayOrderItem{}}, nil)

	srv := newTestServer(svc)
	w, _ := do(t, srv, http.MethodGet, "/api/orders/order-1", "user-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, srv, http.MethodGet, "/api/orders/order-1", "staff-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorMapping(t *testing.T) {
	for err, status := range map[error]int{
		fmt.Errorf("order x: %w", errs.ErrNotFound):               http.StatusNotFound,
		fmt.Errorf("cancel: %w", errs.ErrInvalidStateTransition): http.StatusConflict,
		errs.NewValidationError("status", "order_not_draft", "x"): http.StatusUnprocessableEntity,
		errors.New("connection reset"):                            http.StatusInternalServerError,
	} {
		svc := &MockOrderService{}
		svc.On("Cancel", mock.Anything, "order-1", "user-1").Return(err)

		w, resp := do(t, newTestServer(svc), http.MethodDelete, "/api/orders/order-1", "user-1", "")
		assert.Equal(t, status, w.Code, err.Error())
		assert.False(t, resp.Success)
		if status == http.StatusInternalServerError {
			assert.NotContains(t, resp.Error, "connection reset")
		}
	}

	svc := &MockOrderService{}
	svc.On("Cancel", mock.Anything, "order-1", "user-1").Return(nil)
	w, _ := do(t, newTestServer(svc), http.MethodDelete, "/api/orders/order-1", "user-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAddPayment(t *testing.T) {
	svc := &MockOrderService{}
	svc.On("GetOrder", mock.Anything, "order-1").Return(&models.Order{ID: "order-1", UserID: "user-1"}, nil)
	svc.On("AddExternalPayment", mock.Anything, "order-1", "user-1", int64(590), "cash").
		Return(&models.Payment{ID: "pay-1", Amount: 590}, nil)
	svc.On("Manages", mock.Anything, "order-1", "stranger").Return(false, nil)

	srv := newTestServer(svc)
	w, _ := do(t, srv, http.MethodPost, "/api/orders/order-1/payments", "user-1", `{"amount_in_cents":590,"reference":"cash"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = do(t, srv, http.MethodPost, "/api/orders/order-1/payments", "stranger", `{"amount_in_cents":590}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertNumberOfCalls(t, "AddExternalPayment", 1)
}

func TestRefundRequiresManager(t *testing.T) {
	svc := &MockOrderService{}
	items := []order.RefundItem{{OrderItemID: "item-1", TicketInstanceID: "ti-1"}}
	svc.On("Manages", mock.Anything, "order-1", "user-1").Return(false, nil)
	svc.On("Manages", mock.Anything, "order-1", "admin-1").Return(true, nil)
	svc.On("Refund", mock.Anything, "order-1", "admin-1", items).Return(int64(170), nil)

	srv := newTestServer(svc)
	body := `{"items":[{"order_item_id":"item-1","ticket_instance_id":"ti-1"}]}`

	w, _ := do(t, srv, http.MethodPost, "/api/orders/order-1/refund", "user-1", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertNotCalled(t, "Refund", mock.Anything, "order-1", "user-1", mock.Anything)

	w, resp := do(t, srv, http.MethodPost, "/api/orders/order-1/refund", "admin-1", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(170), resp.Data.(map[string]interface{})["refunded_amount_in_cents"])
}

func TestGetOrderDetails(t *testing.T) {
	svc := &MockOrderService{}
	svc.On("GetOrder", mock.Anything, "order-1").Return(&models.Order{ID: "order-1", UserID: "user-1"}, nil)
	svc.On("Details", mock.Anything, "order-1", order.Scope{ViewerID: "user-1"}).Return([]order.DetailLine{
		{OrderItemID: "item-1", Description: "Summer Festival - General Admission", Status: "Purchased", Refundable: true},
	}, nil)

	w, resp := do(t, newTestServer(svc), http.MethodGet, "/api/orders/order-1/details", "user-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
}
