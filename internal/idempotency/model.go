package idempotency

import (
	"encoding/json"
	"time"
)

// Header is the request header carrying the client-supplied key.
const Header = "Idempotency-Key"

type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

type Outcome int

const (
	// Admitted means this caller won the key and must execute the operation.
	Admitted Outcome = iota
	// InProgress means another execution holds the key; retry after backoff.
	InProgress
	// Completed means the operation already finished; Result replays verbatim.
	Completed
)

// BeginResult is the variant returned by Store.Begin. Explicit variants
// instead of error-driven branching: duplicate requests are normal flow.
type BeginResult struct {
	Outcome Outcome
	Result  json.RawMessage
}

type Record struct {
	Scope     string
	Key       string
	State     State
	Result    json.RawMessage
	ExpiresAt time.Time
	CreatedAt time.Time
}
