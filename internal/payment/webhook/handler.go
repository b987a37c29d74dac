package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"shopcore-be/internal/logger"
	"shopcore-be/internal/payment"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodySize bounds webhook payloads. Provider callbacks are small JSON or
// form bodies; anything larger is not a legitimate event.
const maxBodySize = 1 << 20

// Settler applies a verified provider event to the intent and its order.
type Settler interface {
	ApplySettlement(ctx context.Context, it *payment.Intent, ev *payment.Event) error
}

// Notifier receives settlement outcomes after the webhook response is
// written. Implementations must not block the caller.
type Notifier interface {
	NotifySettled(orderID string, outcome payment.Outcome)
}

type NopNotifier struct{}

func (NopNotifier) NotifySettled(string, payment.Outcome) {}

// Handler terminates provider callbacks. It is fail-closed: a payload that
// does not verify against the provider's signature scheme is rejected before
// any parsing, and nothing downstream of verification trusts raw input.
type Handler struct {
	registry *payment.Registry
	intents  payment.Repository
	settler  Settler
	notifier Notifier
}

func NewHandler(registry *payment.Registry, intents payment.Repository, settler Settler, notifier Notifier) *Handler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Handler{
		registry: registry,
		intents:  intents,
		settler:  settler,
		notifier: notifier,
	}
}

// ServeHTTP handles POST /payments/webhook/{provider}.
//
// Response codes follow what gateways expect from a callback endpoint:
// 200 tells the provider to stop retrying, so it is used both for applied
// settlements and for events we deliberately ignore (unknown transaction,
// already-settled intent). Anything the provider should redeliver gets a
// non-2xx status.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "webhook"),
		zap.String("provider", providerName),
	)

	provider, err := h.registry.Get(providerName)
	if err != nil {
		log.Warn("webhook for unknown provider")
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if err := provider.VerifySignature(r.Header, body); err != nil {
		log.Warn("webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	ev, err := provider.ParseEvent(body)
	if err != nil {
		log.Warn("webhook payload unparseable", zap.Error(err))
		http.Error(w, "unparseable event", http.StatusBadRequest)
		return
	}

	log = log.With(
		zap.String("provider_txn_id", ev.ProviderTxnID),
		zap.String("outcome", string(ev.Outcome)),
	)

	it, err := h.intents.GetByProviderTxnID(r.Context(), providerName, ev.ProviderTxnID)
	if err != nil {
		if errors.Is(err, payment.ErrIntentNotFound) {
			// Acknowledged and dropped: an unknown transaction must not be
			// retried forever, and it must never mutate local state.
			log.Info("webhook for unknown transaction, acknowledged")
			w.WriteHeader(http.StatusOK)
			return
		}
		log.Error("failed to load intent for webhook", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Not every provider echoes the amount; when one does, it must match the
	// intent we created or the event is treated as tampered.
	if ev.Amount > 0 && ev.Amount != it.Amount {
		log.Warn("webhook amount does not match intent",
			zap.Int64("event_amount", ev.Amount),
			zap.Int64("intent_amount", it.Amount),
		)
		http.Error(w, "amount mismatch", http.StatusBadRequest)
		return
	}

	if err := h.settler.ApplySettlement(r.Context(), it, ev); err != nil {
		log.Error("failed to apply settlement", zap.Error(err))
		http.Error(w, "settlement failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)

	// After the ack: a slow or failing notifier must never make the
	// provider think delivery failed.
	go h.notify(it.OrderID.String(), ev.Outcome)

	log.Info("webhook settled")
}

func (h *Handler) notify(orderID string, outcome payment.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.L().Error("settlement notifier panicked", zap.Any("panic", rec))
		}
	}()
	h.notifier.NotifySettled(orderID, outcome)
}
