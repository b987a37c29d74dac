package checkout

import "errors"

var (
	ErrEmptyCart           = errors.New("cart has no items")
	ErrInvalidAmount       = errors.New("order amount is invalid")
	ErrDuplicateInProgress = errors.New("an identical request is already in progress")
)
