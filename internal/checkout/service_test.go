package checkout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"shopcore-be/internal/catalog"
	"shopcore-be/internal/idempotency"
	"shopcore-be/internal/inventory"
	"shopcore-be/internal/order"
	"shopcore-be/internal/payment"
	"shopcore-be/internal/promotion"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIdemStore struct {
	mock.Mock
}

func (m *mockIdemStore) Begin(ctx context.Context, scope, key string) (*idempotency.BeginResult, error) {
	args := m.Called(ctx, scope, key)
	if res := args.Get(0); res != nil {
		return res.(*idempotency.BeginResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIdemStore) Complete(ctx context.Context, scope, key string, result json.RawMessage) error {
	args := m.Called(ctx, scope, key, result)
	return args.Error(0)
}

func (m *mockIdemStore) Fail(ctx context.Context, scope, key string) error {
	args := m.Called(ctx, scope, key)
	return args.Error(0)
}

func (m *mockIdemStore) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetProduct(ctx context.Context, productID uint) (*catalog.Product, error) {
	args := m.Called(ctx, productID)
	if p := args.Get(0); p != nil {
		return p.(*catalog.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPromoLookup struct {
	mock.Mock
}

func (m *mockPromoLookup) GetActivePromotion(ctx context.Context, code string) (*promotion.Rule, error) {
	args := m.Called(ctx, code)
	if r := args.Get(0); r != nil {
		return r.(*promotion.Rule), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) ReserveAll(ctx context.Context, orderID uuid.UUID, lines []inventory.Line) error {
	args := m.Called(ctx, orderID, lines)
	return args.Error(0)
}

func (m *mockLedger) Commit(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *mockLedger) Release(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *mockLedger) Available(ctx context.Context, productID uint) (int, error) {
	args := m.Called(ctx, productID)
	return args.Int(0), args.Error(1)
}

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepo) Transition(ctx context.Context, id uuid.UUID, from, to order.Status) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

type mockIntentCreator struct {
	mock.Mock
}

func (m *mockIntentCreator) CreateIntent(ctx context.Context, o *order.Order, providerName, returnURL string) (*payment.Intent, error) {
	args := m.Called(ctx, o, providerName, returnURL)
	if it := args.Get(0); it != nil {
		return it.(*payment.Intent), args.Error(1)
	}
	return nil, args.Error(1)
}

type serviceFixture struct {
	idem     *mockIdemStore
	catalog  *mockCatalog
	promos   *mockPromoLookup
	ledger   *mockLedger
	orders   *mockOrderRepo
	payments *mockIntentCreator
	svc      *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		idem:     new(mockIdemStore),
		catalog:  new(mockCatalog),
		promos:   new(mockPromoLookup),
		ledger:   new(mockLedger),
		orders:   new(mockOrderRepo),
		payments: new(mockIntentCreator),
	}
	f.svc = NewService(
		f.idem, f.catalog, f.promos, f.ledger, f.orders, f.payments,
		"payos", "https://shop.example/return",
	)
	return f
}

func (f *serviceFixture) assertExpectations(t *testing.T) {
	f.idem.AssertExpectations(t)
	f.catalog.AssertExpectations(t)
	f.promos.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.payments.AssertExpectations(t)
}

func strPtr(s string) *string { return &s }
func uintPtr(u uint) *uint    { return &u }
func int64Ptr(v int64) *int64 { return &v }

func admitted() *idempotency.BeginResult {
	return &idempotency.BeginResult{Outcome: idempotency.Admitted}
}

func checkoutInput() Input {
	return Input{
		CustomerID: uintPtr(7),
		Currency:   "VND",
		Items: []ItemInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
		Provider:       "payos",
		IdempotencyKey: "idem-1",
	}
}

func TestService_PlaceOrder(t *testing.T) {
	ctx := context.Background()

	shirt := &catalog.Product{ID: 1, Name: "Shirt", Price: 30_000, Stock: 10}
	mug := &catalog.Product{ID: 2, Name: "Mug", Price: 40_000, Stock: 5}

	t.Run("Success", func(t *testing.T) {
		f := newServiceFixture()
		in := checkoutInput()
		in.PromoCode = strPtr("SALE10")

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(admitted(), nil)
		f.catalog.On("GetProduct", ctx, uint(1)).Return(shirt, nil)
		f.catalog.On("GetProduct", ctx, uint(2)).Return(mug, nil)
		f.ledger.On("ReserveAll", ctx, mock.Anything, []inventory.Line{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		}).Return(nil)
		f.promos.On("GetActivePromotion", ctx, "SALE10").Return(&promotion.Rule{
			Code:  "SALE10",
			Type:  promotion.DiscountPercent,
			Value: 10,
		}, nil)
		f.orders.On("Create", ctx, mock.MatchedBy(func(o *order.Order) bool {
			return o.Status == order.StatusPending &&
				o.Subtotal == 100_000 &&
				o.Discount == 10_000 &&
				o.Total == 90_000 &&
				len(o.Items) == 2
		})).Return(nil)
		f.payments.On("CreateIntent", ctx, mock.Anything, "payos", "https://shop.example/return").
			Return(&payment.Intent{
				ID:          uuid.New(),
				RedirectURL: "https://pay.example/plink-1",
				ExpiresAt:   time.Now().Add(30 * time.Minute),
			}, nil)
		f.idem.On("Complete", ctx, scopeCheckout, "idem-1", mock.Anything).Return(nil)

		placement, err := f.svc.PlaceOrder(ctx, in)
		require.NoError(t, err)
		assert.False(t, placement.Replayed)
		assert.Equal(t, int64(90_000), placement.Result.Total)
		assert.Equal(t, order.StatusAwaitingPayment, placement.Result.Status)
		assert.Equal(t, "https://pay.example/plink-1", placement.Result.PaymentURL)
		assert.JSONEq(t, string(mustMarshal(t, placement.Result)), string(placement.Raw))
		f.assertExpectations(t)
	})

	t.Run("ReplaysCompletedCheckout", func(t *testing.T) {
		f := newServiceFixture()
		stored := json.RawMessage(`{"orderNo":"ORD-1","total":90000}`)

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(&idempotency.BeginResult{
			Outcome: idempotency.Completed,
			Result:  stored,
		}, nil)

		placement, err := f.svc.PlaceOrder(ctx, checkoutInput())
		require.NoError(t, err)
		assert.True(t, placement.Replayed)
		assert.Equal(t, stored, placement.Raw)
		f.catalog.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
		f.ledger.AssertNotCalled(t, "ReserveAll", mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("DuplicateInProgress", func(t *testing.T) {
		f := newServiceFixture()

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(&idempotency.BeginResult{
			Outcome: idempotency.InProgress,
		}, nil)

		_, err := f.svc.PlaceOrder(ctx, checkoutInput())
		assert.ErrorIs(t, err, ErrDuplicateInProgress)
		f.assertExpectations(t)
	})

	t.Run("EmptyCart", func(t *testing.T) {
		f := newServiceFixture()
		in := checkoutInput()
		in.Items = nil

		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, ErrEmptyCart)
		f.idem.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NonPositiveQuantity", func(t *testing.T) {
		f := newServiceFixture()
		in := checkoutInput()
		in.Items = []ItemInput{{ProductID: 1, Quantity: 0}}

		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
		f.idem.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownProductFailsKey", func(t *testing.T) {
		f := newServiceFixture()
		in := checkoutInput()
		in.Items = []ItemInput{{ProductID: 99, Quantity: 1}}

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(admitted(), nil)
		f.catalog.On("GetProduct", ctx, uint(99)).Return(nil, catalog.ErrProductNotFound)
		f.idem.On("Fail", ctx, scopeCheckout, "idem-1").Return(nil)

		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
		f.ledger.AssertNotCalled(t, "ReserveAll", mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("InsufficientStock", func(t *testing.T) {
		f := newServiceFixture()

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(admitted(), nil)
		f.catalog.On("GetProduct", ctx, uint(1)).Return(shirt, nil)
		f.catalog.On("GetProduct", ctx, uint(2)).Return(mug, nil)
		f.ledger.On("ReserveAll", ctx, mock.Anything, mock.Anything).
			Return(inventory.ErrInsufficientStock)
		f.idem.On("Fail", ctx, scopeCheckout, "idem-1").Return(nil)

		_, err := f.svc.PlaceOrder(ctx, checkoutInput())
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
		// nothing was held, so nothing is released
		f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
		f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("InvalidPromotionReleasesReservation", func(t *testing.T) {
		f := newServiceFixture()
		in := checkoutInput()
		in.PromoCode = strPtr("NOPE")

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(admitted(), nil)
		f.catalog.On("GetProduct", ctx, uint(1)).Return(shirt, nil)
		f.catalog.On("GetProduct", ctx, uint(2)).Return(mug, nil)
		f.ledger.On("ReserveAll", ctx, mock.Anything, mock.Anything).Return(nil)
		f.promos.On("GetActivePromotion", ctx, "NOPE").Return(nil, promotion.ErrPromotionInvalid)
		f.ledger.On("Release", ctx, mock.Anything).Return(nil)
		f.idem.On("Fail", ctx, scopeCheckout, "idem-1").Return(nil)

		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, promotion.ErrPromotionInvalid)
		f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("IneligiblePromotionReleasesReservation", func(t *testing.T) {
		f := newServiceFixture()
		in := checkoutInput()
		in.PromoCode = strPtr("BIGSPEND")

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(admitted(), nil)
		f.catalog.On("GetProduct", ctx, uint(1)).Return(shirt, nil)
		f.catalog.On("GetProduct", ctx, uint(2)).Return(mug, nil)
		f.ledger.On("ReserveAll", ctx, mock.Anything, mock.Anything).Return(nil)
		f.promos.On("GetActivePromotion", ctx, "BIGSPEND").Return(&promotion.Rule{
			Code:        "BIGSPEND",
			Type:        promotion.DiscountFixed,
			Value:       50_000,
			MinSubtotal: int64Ptr(500_000),
		}, nil)
		f.ledger.On("Release", ctx, mock.Anything).Return(nil)
		f.idem.On("Fail", ctx, scopeCheckout, "idem-1").Return(nil)

		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, promotion.ErrPromotionNotEligible)
		f.assertExpectations(t)
	})

	t.Run("ProviderFailureCancelsOrder", func(t *testing.T) {
		f := newServiceFixture()
		pErr := &payment.ProviderError{Provider: "payos", Code: "server_error", Retryable: true}

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(admitted(), nil)
		f.catalog.On("GetProduct", ctx, uint(1)).Return(shirt, nil)
		f.catalog.On("GetProduct", ctx, uint(2)).Return(mug, nil)
		f.ledger.On("ReserveAll", ctx, mock.Anything, mock.Anything).Return(nil)
		f.orders.On("Create", ctx, mock.Anything).Return(nil)
		f.payments.On("CreateIntent", ctx, mock.Anything, "payos", mock.Anything).Return(nil, pErr)
		f.orders.On("Transition", ctx, mock.Anything, order.StatusPending, order.StatusCancelled).Return(nil)
		f.ledger.On("Release", ctx, mock.Anything).Return(nil)
		f.idem.On("Fail", ctx, scopeCheckout, "idem-1").Return(nil)

		_, err := f.svc.PlaceOrder(ctx, checkoutInput())
		var got *payment.ProviderError
		require.ErrorAs(t, err, &got)
		f.assertExpectations(t)
	})

	t.Run("DefaultProviderUsedWhenUnset", func(t *testing.T) {
		f := newServiceFixture()
		in := checkoutInput()
		in.Provider = ""

		f.idem.On("Begin", ctx, scopeCheckout, "idem-1").Return(admitted(), nil)
		f.catalog.On("GetProduct", ctx, uint(1)).Return(shirt, nil)
		f.catalog.On("GetProduct", ctx, uint(2)).Return(mug, nil)
		f.ledger.On("ReserveAll", ctx, mock.Anything, mock.Anything).Return(nil)
		f.orders.On("Create", ctx, mock.Anything).Return(nil)
		f.payments.On("CreateIntent", ctx, mock.Anything, "payos", mock.Anything).
			Return(&payment.Intent{RedirectURL: "https://pay.example/x"}, nil)
		f.idem.On("Complete", ctx, scopeCheckout, "idem-1", mock.Anything).Return(nil)

		_, err := f.svc.PlaceOrder(ctx, in)
		require.NoError(t, err)
		f.assertExpectations(t)
	})
}

func TestService_GetOrder(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	owned := &order.Order{ID: orderID, CustomerID: uintPtr(7), Status: order.StatusPaid}
	guest := &order.Order{ID: orderID, Status: order.StatusPaid}

	t.Run("OwnerSeesOrder", func(t *testing.T) {
		f := newServiceFixture()
		f.orders.On("GetByID", ctx, orderID).Return(owned, nil)

		o, err := f.svc.GetOrder(ctx, orderID, uintPtr(7), false)
		require.NoError(t, err)
		assert.Equal(t, orderID, o.ID)
	})

	t.Run("StrangerIsRejected", func(t *testing.T) {
		f := newServiceFixture()
		f.orders.On("GetByID", ctx, orderID).Return(owned, nil)

		_, err := f.svc.GetOrder(ctx, orderID, uintPtr(8), false)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
	})

	t.Run("AnonymousIsRejected", func(t *testing.T) {
		f := newServiceFixture()
		f.orders.On("GetByID", ctx, orderID).Return(owned, nil)

		_, err := f.svc.GetOrder(ctx, orderID, nil, false)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
	})

	t.Run("AdminSeesAnyOrder", func(t *testing.T) {
		f := newServiceFixture()
		f.orders.On("GetByID", ctx, orderID).Return(owned, nil)

		o, err := f.svc.GetOrder(ctx, orderID, uintPtr(8), true)
		require.NoError(t, err)
		assert.Equal(t, orderID, o.ID)
	})

	t.Run("GuestOrderIsVisible", func(t *testing.T) {
		f := newServiceFixture()
		f.orders.On("GetByID", ctx, orderID).Return(guest, nil)

		o, err := f.svc.GetOrder(ctx, orderID, nil, false)
		require.NoError(t, err)
		assert.Equal(t, orderID, o.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newServiceFixture()
		f.orders.On("GetByID", ctx, orderID).Return(nil, order.ErrOrderNotFound)

		_, err := f.svc.GetOrder(ctx, orderID, uintPtr(7), false)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
