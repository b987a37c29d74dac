package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"shopcore-be/internal/catalog"
	"shopcore-be/internal/idempotency"
	"shopcore-be/internal/inventory"
	"shopcore-be/internal/logger"
	"shopcore-be/internal/order"
	"shopcore-be/internal/payment"
	"shopcore-be/internal/promotion"
	"shopcore-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// scopeCheckout namespaces checkout keys inside the idempotency store.
const scopeCheckout = "checkout"

// IntentCreator is the slice of the payment coordinator checkout needs.
type IntentCreator interface {
	CreateIntent(ctx context.Context, o *order.Order, providerName, returnURL string) (*payment.Intent, error)
}

type ItemInput struct {
	ProductID uint `json:"productId"`
	Quantity  int  `json:"quantity"`
}

type Input struct {
	CustomerID     *uint
	Currency       string
	Items          []ItemInput
	PromoCode      *string
	Provider       string
	IdempotencyKey string
}

type ResultItem struct {
	ProductID   uint   `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Subtotal    int64  `json:"subtotal"`
}

type Result struct {
	OrderID    uuid.UUID    `json:"orderId"`
	OrderNo    string       `json:"orderNo"`
	Status     order.Status `json:"status"`
	Currency   string       `json:"currency"`
	Subtotal   int64        `json:"subtotal"`
	Discount   int64        `json:"discount"`
	Total      int64        `json:"total"`
	Items      []ResultItem `json:"items"`
	PaymentURL string       `json:"paymentUrl"`
	ExpiresAt  time.Time    `json:"expiresAt"`
}

// Placement is what PlaceOrder hands the transport layer. Raw carries the
// exact bytes stored under the idempotency key, so a replayed request gets
// a byte-identical response body.
type Placement struct {
	Result   *Result
	Raw      json.RawMessage
	Replayed bool
}

type Service struct {
	idem     idempotency.Store
	catalog  catalog.Reader
	promos   promotion.Lookup
	ledger   inventory.Ledger
	orders   order.Repository
	payments IntentCreator

	defaultProvider string
	returnURL       string
}

func NewService(
	idem idempotency.Store,
	catalogReader catalog.Reader,
	promos promotion.Lookup,
	ledger inventory.Ledger,
	orders order.Repository,
	payments IntentCreator,
	defaultProvider string,
	returnURL string,
) *Service {
	return &Service{
		idem:            idem,
		catalog:         catalogReader,
		promos:          promos,
		ledger:          ledger,
		orders:          orders,
		payments:        payments,
		defaultProvider: defaultProvider,
		returnURL:       returnURL,
	}
}

// PlaceOrder runs the whole checkout: admit the idempotency key, snapshot
// prices, reserve stock, apply the promotion, create the order, and open a
// payment intent. Every failure past the reservation compensates what came
// before it, so an abandoned checkout never leaks held stock.
func (s *Service) PlaceOrder(ctx context.Context, in Input) (*Placement, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
	)

	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, inventory.ErrInvalidQuantity
		}
	}

	begin, err := s.idem.Begin(ctx, scopeCheckout, in.IdempotencyKey)
	if err != nil {
		log.Error("failed to admit idempotency key", zap.Error(err))
		return nil, err
	}
	switch begin.Outcome {
	case idempotency.Completed:
		log.Info("replaying completed checkout",
			zap.String("idempotency_key", in.IdempotencyKey),
		)
		return &Placement{Raw: begin.Result, Replayed: true}, nil
	case idempotency.InProgress:
		return nil, ErrDuplicateInProgress
	}

	placement, err := s.execute(ctx, in, log)
	if err != nil {
		if fErr := s.idem.Fail(ctx, scopeCheckout, in.IdempotencyKey); fErr != nil {
			log.Error("failed to mark idempotency record failed", zap.Error(fErr))
		}
		return nil, err
	}
	return placement, nil
}

func (s *Service) execute(ctx context.Context, in Input, log *zap.Logger) (*Placement, error) {
	orderID := uuid.New()
	log = log.With(zap.String("order_id", orderID.String()))

	// Price snapshot: unit prices are frozen here and never re-read.
	var (
		subtotal int64
		lines    = make([]inventory.Line, 0, len(in.Items))
		items    = make([]order.Item, 0, len(in.Items))
	)
	for _, item := range in.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			log.Warn("checkout references unknown product",
				zap.Uint("product_id", item.ProductID),
			)
			return nil, err
		}
		lineSubtotal := product.Price * int64(item.Quantity)
		subtotal += lineSubtotal
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
		items = append(items, order.Item{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    lineSubtotal,
		})
	}
	if subtotal <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := s.ledger.ReserveAll(ctx, orderID, lines); err != nil {
		log.Warn("stock reservation failed", zap.Error(err))
		return nil, err
	}

	// From here on every failure must give the reservation back.
	var discount int64
	if in.PromoCode != nil && *in.PromoCode != "" {
		rule, err := s.promos.GetActivePromotion(ctx, *in.PromoCode)
		if err != nil {
			return nil, s.compensateReservation(ctx, orderID, err, log)
		}
		if err := promotion.CheckEligibility(rule, subtotal); err != nil {
			return nil, s.compensateReservation(ctx, orderID, err, log)
		}
		discount = promotion.ComputeDiscount(rule, subtotal)
	}

	o := &order.Order{
		ID:         orderID,
		OrderNo:    utils.GenerateOrderNumber(),
		CustomerID: in.CustomerID,
		Currency:   in.Currency,
		Subtotal:   subtotal,
		Discount:   discount,
		Total:      subtotal - discount,
		Status:     order.StatusPending,
		PromoCode:  in.PromoCode,
		Items:      items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		log.Error("failed to persist order", zap.Error(err))
		return nil, s.compensateReservation(ctx, orderID, err, log)
	}

	providerName := in.Provider
	if providerName == "" {
		providerName = s.defaultProvider
	}
	intent, err := s.payments.CreateIntent(ctx, o, providerName, s.returnURL)
	if err != nil {
		log.Error("failed to create payment intent", zap.Error(err))
		return nil, s.compensateOrder(ctx, orderID, err, log)
	}

	result := &Result{
		OrderID:    o.ID,
		OrderNo:    o.OrderNo,
		Status:     order.StatusAwaitingPayment,
		Currency:   o.Currency,
		Subtotal:   o.Subtotal,
		Discount:   o.Discount,
		Total:      o.Total,
		PaymentURL: intent.RedirectURL,
		ExpiresAt:  intent.ExpiresAt,
	}
	for _, item := range items {
		result.Items = append(result.Items, ResultItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, s.compensateOrder(ctx, orderID, err, log)
	}
	if err := s.idem.Complete(ctx, scopeCheckout, in.IdempotencyKey, raw); err != nil {
		// The checkout itself succeeded; losing the replay record only
		// costs a future duplicate its cached response.
		log.Error("failed to store checkout result for replay", zap.Error(err))
	}

	log.Info("checkout completed",
		zap.String("order_no", o.OrderNo),
		zap.Int64("total", o.Total),
		zap.String("provider", providerName),
	)
	return &Placement{Result: result, Raw: raw}, nil
}

// compensateReservation releases held stock and passes cause through.
func (s *Service) compensateReservation(ctx context.Context, orderID uuid.UUID, cause error, log *zap.Logger) error {
	if err := s.ledger.Release(ctx, orderID); err != nil {
		log.Error("compensation failed to release reservation", zap.Error(err))
	}
	return cause
}

// compensateOrder additionally cancels the already-created order.
func (s *Service) compensateOrder(ctx context.Context, orderID uuid.UUID, cause error, log *zap.Logger) error {
	err := s.orders.Transition(ctx, orderID, order.StatusPending, order.StatusCancelled)
	if err != nil && !errors.Is(err, order.ErrAlreadyTransitioned) {
		log.Error("compensation failed to cancel order", zap.Error(err))
	}
	return s.compensateReservation(ctx, orderID, cause, log)
}

// GetOrder returns the order when the caller owns it. Admin callers see
// every order; guests only see orders that carry no customer at all.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID, customerID *uint, isAdmin bool) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return o, nil
	}
	if o.CustomerID != nil {
		if customerID == nil || *customerID != *o.CustomerID {
			return nil, order.ErrUnauthorized
		}
	}
	return o, nil
}
