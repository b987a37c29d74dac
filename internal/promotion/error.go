package promotion

import "errors"

var (
	ErrPromotionInvalid     = errors.New("promotion code not found or inactive")
	ErrPromotionExpired     = errors.New("promotion is outside its active window")
	ErrPromotionNotEligible = errors.New("order subtotal below promotion minimum")
)
