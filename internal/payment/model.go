package payment

import (
	"time"

	"github.com/google/uuid"
)

type IntentStatus string

const (
	IntentCreated   IntentStatus = "CREATED"
	IntentPending   IntentStatus = "PENDING"
	IntentSucceeded IntentStatus = "SUCCEEDED"
	IntentFailed    IntentStatus = "FAILED"
	IntentCancelled IntentStatus = "CANCELLED"
	IntentExpired   IntentStatus = "EXPIRED"
)

// Terminal reports whether the intent can no longer change. An order may
// only ever hold one non-terminal intent.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentSucceeded, IntentFailed, IntentCancelled, IntentExpired:
		return true
	}
	return false
}

type Intent struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Provider       string
	ProviderTxnID  string
	Amount         int64
	Currency       string
	Status         IntentStatus
	RedirectURL    string
	IdempotencyKey string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
