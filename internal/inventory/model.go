package inventory

import (
	"time"

	"github.com/google/uuid"
)

type ReservationState string

const (
	ReservationHeld      ReservationState = "HELD"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationReleased  ReservationState = "RELEASED"
)

// Reservation is one (order, product) hold against stock.
// Available stock for a product = stock - reserved, where reserved counts
// both HELD and COMMITTED rows.
type Reservation struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uint
	Quantity  int
	State     ReservationState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line is a reservation request for one cart line.
type Line struct {
	ProductID uint
	Quantity  int
}
