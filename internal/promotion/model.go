package promotion

import "time"

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

// Rule is a snapshot of a promotion at lookup time. Checkout keeps the
// snapshot it fetched, so admin edits never change a completed order.
type Rule struct {
	Code        string       `json:"code"`
	Type        DiscountType `json:"type"`
	Value       int64        `json:"value"`
	MinSubtotal *int64       `json:"min_subtotal,omitempty"`
	MaxDiscount *int64       `json:"max_discount,omitempty"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at"`
}
