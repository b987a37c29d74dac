package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusAwaitingPayment, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusPaid, false},
		{StatusAwaitingPayment, StatusPaid, true},
		{StatusAwaitingPayment, StatusPaymentFailed, true},
		{StatusAwaitingPayment, StatusCancelled, true},
		{StatusPaid, StatusFulfilled, true},
		{StatusPaid, StatusAwaitingPayment, false},
		{StatusPaymentFailed, StatusCancelled, true},
		{StatusPaymentFailed, StatusAwaitingPayment, false},
		{StatusFulfilled, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusFulfilled.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAwaitingPayment.Terminal())
	assert.False(t, StatusPaid.Terminal())
	assert.False(t, StatusPaymentFailed.Terminal())
}
