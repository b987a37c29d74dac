package order

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaid            Status = "PAID"
	StatusFulfilled       Status = "FULFILLED"
	StatusPaymentFailed   Status = "PAYMENT_FAILED"
	StatusCancelled       Status = "CANCELLED"
)

// transitions is the full lifecycle graph. Anything absent here is an
// invalid transition and gets rejected, not silently accepted.
var transitions = map[Status][]Status{
	StatusPending:         {StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment: {StatusPaid, StatusPaymentFailed, StatusCancelled},
	StatusPaid:            {StatusFulfilled},
	StatusPaymentFailed:   {StatusCancelled},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

type Order struct {
	ID         uuid.UUID
	OrderNo    string
	CustomerID *uint
	Currency   string
	Subtotal   int64
	Discount   int64
	Total      int64
	Status     Status
	PromoCode  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Items      []Item
}

// Item is a frozen snapshot of a cart line at order time. Unit price is
// never recomputed from the current catalog price.
type Item struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uint
	ProductName string
	Quantity    int
	UnitPrice   int64
	Subtotal    int64
}
