package order

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrAlreadyTransitioned = errors.New("order already in target status")
	ErrUnauthorized        = errors.New("unauthorized")
)
