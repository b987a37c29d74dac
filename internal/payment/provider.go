package payment

import (
	"context"
	"net/http"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeCancelled Outcome = "CANCELLED"
)

// Event is a provider callback normalized to a shared shape. Each gateway's
// field names and status vocabulary differ; the adapter owns the mapping so
// everything downstream is provider-agnostic.
type Event struct {
	ProviderTxnID string
	Outcome       Outcome
	Amount        int64
}

type CreateIntentInput struct {
	Amount   int64
	Currency string
	OrderRef string
	// IdempotencyKey is derived deterministically from the order id, so a
	// retried call cannot create two provider-side intents for one order.
	IdempotencyKey string
	ReturnURL      string
	Description    string
}

type CreateIntentResult struct {
	ProviderTxnID string
	RedirectURL   string
}

// Provider is the capability set every gateway adapter implements.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentResult, error)
	VerifySignature(header http.Header, body []byte) error
	ParseEvent(body []byte) (*Event, error)
	// QueryIntent is the status-poll fallback used when webhooks go missing.
	QueryIntent(ctx context.Context, providerTxnID string) (*Event, error)
	// CancelIntent is best-effort; failures are logged, not fatal to local
	// order cancellation.
	CancelIntent(ctx context.Context, providerTxnID string) error
}

// Registry is the closed set of configured providers, keyed by name.
// New gateways are added as new adapters, never by branching on provider
// strings inside business logic.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}
