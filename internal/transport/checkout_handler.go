package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"shopcore-be/internal/checkout"
	"shopcore-be/internal/idempotency"
	"shopcore-be/internal/logger"
	"shopcore-be/internal/order"
	"shopcore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type checkoutRequest struct {
	Currency  string               `json:"currency"`
	Items     []checkout.ItemInput `json:"items"`
	PromoCode *string              `json:"promoCode,omitempty"`
	Provider  string               `json:"provider,omitempty"`
}

type orderItemResponse struct {
	ProductID   uint   `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Subtotal    int64  `json:"subtotal"`
}

type orderResponse struct {
	OrderID   uuid.UUID           `json:"orderId"`
	OrderNo   string              `json:"orderNo"`
	Status    order.Status        `json:"status"`
	Currency  string              `json:"currency"`
	Subtotal  int64               `json:"subtotal"`
	Discount  int64               `json:"discount"`
	Total     int64               `json:"total"`
	PromoCode *string             `json:"promoCode,omitempty"`
	Items     []orderItemResponse `json:"items"`
}

// CheckoutService is the surface of the checkout orchestrator this
// handler consumes.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, in checkout.Input) (*checkout.Placement, error)
	GetOrder(ctx context.Context, id uuid.UUID, customerID *uint, isAdmin bool) (*order.Order, error)
}

type CheckoutHandler struct {
	svc CheckoutService
}

func NewCheckoutHandler(svc CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

// PlaceOrder handles POST /checkout/orders. The Idempotency-Key header is
// mandatory: retried submissions with the same key replay the stored
// response byte for byte instead of re-running the checkout.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("handler", "PlaceOrder"))

	idemKey := r.Header.Get(idempotency.Header)
	if idemKey == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "Idempotency-Key header is required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid JSON body")
		return
	}
	if req.Currency == "" {
		req.Currency = "VND"
	}

	in := checkout.Input{
		Currency:       req.Currency,
		Items:          req.Items,
		PromoCode:      req.PromoCode,
		Provider:       req.Provider,
		IdempotencyKey: idemKey,
	}
	if customerID, ok := utils.GetCustomerIDFromContext(r.Context()); ok {
		in.CustomerID = &customerID
	}

	placement, err := h.svc.PlaceOrder(r.Context(), in)
	if err != nil {
		log.Warn("checkout rejected", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	// Replays answer with the same status as the original placement so
	// clients cannot tell a retry from the first delivery.
	if placement.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeRaw(w, http.StatusCreated, placement.Raw)
}

// GetOrder handles GET /orders/{id}.
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid order id")
		return
	}

	var customerID *uint
	if cid, ok := utils.GetCustomerIDFromContext(r.Context()); ok {
		customerID = &cid
	}
	isAdmin := utils.GetCustomerRoleFromContext(r.Context()) == "admin"

	o, err := h.svc.GetOrder(r.Context(), id, customerID, isAdmin)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := orderResponse{
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		Status:    o.Status,
		Currency:  o.Currency,
		Subtotal:  o.Subtotal,
		Discount:  o.Discount,
		Total:     o.Total,
		PromoCode: o.PromoCode,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
