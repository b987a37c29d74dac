package payment

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider    = errors.New("unknown payment provider")
	ErrIntentNotFound     = errors.New("payment intent not found")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrUnparseableEvent   = errors.New("unparseable webhook event")
	ErrIntentNotSettlable = errors.New("payment intent already settled")
)

// ProviderError wraps a gateway failure. Retryable errors (timeouts, 5xx)
// may be retried by the coordinator; non-retryable ones surface immediately
// and trigger rollback.
type ProviderError struct {
	Provider  string
	Code      string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error [%s]: %v", e.Provider, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newProviderError(provider, code string, retryable bool, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Retryable: retryable, Err: err}
}
