package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"shopcore-be/internal/logger"
	"shopcore-be/internal/order"
	"shopcore-be/internal/payment"
	"shopcore-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type createIntentRequest struct {
	OrderID   uuid.UUID `json:"orderId"`
	Provider  string    `json:"provider,omitempty"`
	ReturnURL string    `json:"returnUrl,omitempty"`
}

type intentResponse struct {
	IntentID   uuid.UUID            `json:"intentId"`
	OrderID    uuid.UUID            `json:"orderId"`
	Provider   string               `json:"provider"`
	Status     payment.IntentStatus `json:"status"`
	Amount     int64                `json:"amount"`
	Currency   string               `json:"currency"`
	PaymentURL string               `json:"paymentUrl"`
	ExpiresAt  time.Time            `json:"expiresAt"`
}

// IntentCreator is the slice of the payment coordinator this handler uses.
type IntentCreator interface {
	CreateIntent(ctx context.Context, o *order.Order, providerName, returnURL string) (*payment.Intent, error)
}

type PaymentHandler struct {
	orders      order.Repository
	coordinator IntentCreator

	defaultProvider string
	returnURL       string
}

func NewPaymentHandler(orders order.Repository, coordinator IntentCreator, defaultProvider, returnURL string) *PaymentHandler {
	return &PaymentHandler{
		orders:          orders,
		coordinator:     coordinator,
		defaultProvider: defaultProvider,
		returnURL:       returnURL,
	}
}

// CreateIntent handles POST /payments/intents: it (re)opens the payment leg
// for an order whose earlier intent attempt failed or was abandoned. An
// order with an active intent gets that intent back, never a second one.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("handler", "CreateIntent"))

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid JSON body")
		return
	}
	if req.OrderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "orderId is required")
		return
	}

	o, err := h.orders.GetByID(r.Context(), req.OrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if o.CustomerID != nil {
		customerID, ok := utils.GetCustomerIDFromContext(r.Context())
		isAdmin := utils.GetCustomerRoleFromContext(r.Context()) == "admin"
		if !isAdmin && (!ok || customerID != *o.CustomerID) {
			writeDomainError(w, order.ErrUnauthorized)
			return
		}
	}

	if o.Status != order.StatusPending && o.Status != order.StatusAwaitingPayment {
		writeError(w, http.StatusConflict, CodeValidation, "order is not payable in its current status")
		return
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = h.defaultProvider
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = h.returnURL
	}

	intent, err := h.coordinator.CreateIntent(r.Context(), o, providerName, returnURL)
	if err != nil {
		log.Warn("intent creation rejected", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, intentResponse{
		IntentID:   intent.ID,
		OrderID:    intent.OrderID,
		Provider:   intent.Provider,
		Status:     intent.Status,
		Amount:     intent.Amount,
		Currency:   intent.Currency,
		PaymentURL: intent.RedirectURL,
		ExpiresAt:  intent.ExpiresAt,
	})
}
