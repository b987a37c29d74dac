package payment

import (
	"context"
	"errors"
	"time"

	"shopcore-be/internal/inventory"
	"shopcore-be/internal/logger"
	"shopcore-be/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxProviderRetries = 3
	retryBackoff       = 500 * time.Millisecond
)

// Coordinator owns the order<->provider mapping: it creates provider-side
// intents and applies settlement outcomes to the order state machine and
// the inventory ledger.
type Coordinator struct {
	intents  Repository
	orders   order.Repository
	ledger   inventory.Ledger
	registry *Registry
	window   time.Duration
}

func NewCoordinator(
	intents Repository,
	orders order.Repository,
	ledger inventory.Ledger,
	registry *Registry,
	window time.Duration,
) *Coordinator {
	return &Coordinator{
		intents:  intents,
		orders:   orders,
		ledger:   ledger,
		registry: registry,
		window:   window,
	}
}

// CreateIntent creates a provider payment intent for the order and advances
// it to AWAITING_PAYMENT. Idempotent at the domain level: an existing
// non-terminal intent is returned instead of creating a duplicate.
func (c *Coordinator) CreateIntent(ctx context.Context, o *order.Order, providerName, returnURL string) (*Intent, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "coordinator"),
		zap.String("method", "CreateIntent"),
		zap.String("order_id", o.ID.String()),
		zap.String("provider", providerName),
	)

	existing, err := c.intents.GetActiveByOrder(ctx, o.ID)
	if err == nil {
		log.Info("reusing active payment intent",
			zap.String("intent_id", existing.ID.String()),
		)
		return existing, nil
	}
	if !errors.Is(err, ErrIntentNotFound) {
		return nil, err
	}

	provider, err := c.registry.Get(providerName)
	if err != nil {
		log.Warn("unknown payment provider requested")
		return nil, err
	}

	in := CreateIntentInput{
		Amount:   o.Total,
		Currency: o.Currency,
		OrderRef: o.ID.String(),
		// deterministic per order: a retried provider call cannot create
		// two provider-side intents
		IdempotencyKey: "order-" + o.ID.String(),
		ReturnURL:      returnURL,
		Description:    "Order " + o.OrderNo,
	}

	result, err := c.callWithRetry(ctx, provider, in, log)
	if err != nil {
		return nil, err
	}

	intent := &Intent{
		ID:             uuid.New(),
		OrderID:        o.ID,
		Provider:       providerName,
		ProviderTxnID:  result.ProviderTxnID,
		Amount:         o.Total,
		Currency:       o.Currency,
		Status:         IntentCreated,
		RedirectURL:    result.RedirectURL,
		IdempotencyKey: in.IdempotencyKey,
		ExpiresAt:      time.Now().Add(c.window),
	}

	if err := c.intents.CreateIntent(ctx, intent); err != nil {
		if IsDuplicateIntent(err) {
			// Lost a race against a concurrent request for the same order:
			// the unique index admitted exactly one live intent, so hand
			// back the winner's.
			winner, readErr := c.intents.GetActiveByOrder(ctx, o.ID)
			if readErr == nil {
				log.Info("concurrent intent creation, returning existing intent",
					zap.String("intent_id", winner.ID.String()),
				)
				if cErr := provider.CancelIntent(ctx, intent.ProviderTxnID); cErr != nil {
					// best-effort only
					log.Warn("failed to cancel losing provider intent", zap.Error(cErr))
				}
				return winner, nil
			}
			log.Error("failed to re-read active intent after duplicate insert", zap.Error(readErr))
			return nil, readErr
		}
		log.Error("failed to persist payment intent", zap.Error(err))
		return nil, err
	}

	err = c.orders.Transition(ctx, o.ID, order.StatusPending, order.StatusAwaitingPayment)
	if err != nil && !errors.Is(err, order.ErrAlreadyTransitioned) {
		log.Error("failed to advance order to awaiting payment", zap.Error(err))
		return nil, err
	}

	log.Info("payment intent created",
		zap.String("intent_id", intent.ID.String()),
		zap.String("provider_txn_id", intent.ProviderTxnID),
	)
	return intent, nil
}

func (c *Coordinator) callWithRetry(ctx context.Context, provider Provider, in CreateIntentInput, log *zap.Logger) (*CreateIntentResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxProviderRetries; attempt++ {
		result, err := provider.CreateIntent(ctx, in)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var pErr *ProviderError
		if !errors.As(err, &pErr) || !pErr.Retryable {
			log.Error("provider rejected intent creation", zap.Error(err))
			return nil, err
		}

		log.Warn("retryable provider failure",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < maxProviderRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
	}
	return nil, lastErr
}

// ApplySettlement moves intent and order to their settled states and commits
// or releases the inventory hold. Safe to call more than once per intent:
// the second application observes the state guards and becomes a no-op.
func (c *Coordinator) ApplySettlement(ctx context.Context, it *Intent, ev *Event) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "coordinator"),
		zap.String("method", "ApplySettlement"),
		zap.String("intent_id", it.ID.String()),
		zap.String("order_id", it.OrderID.String()),
		zap.String("outcome", string(ev.Outcome)),
	)

	var intentStatus IntentStatus
	switch ev.Outcome {
	case OutcomeSucceeded:
		intentStatus = IntentSucceeded
	case OutcomeCancelled:
		intentStatus = IntentCancelled
	default:
		intentStatus = IntentFailed
	}

	if err := c.intents.Settle(ctx, it.ID, intentStatus); err != nil {
		if errors.Is(err, ErrIntentNotSettlable) {
			log.Info("settlement already applied, ignoring duplicate")
			return nil
		}
		log.Error("failed to settle intent", zap.Error(err))
		return err
	}

	if ev.Outcome == OutcomeSucceeded {
		err := c.orders.Transition(ctx, it.OrderID, order.StatusAwaitingPayment, order.StatusPaid)
		if err != nil && !errors.Is(err, order.ErrAlreadyTransitioned) {
			log.Error("failed to mark order paid", zap.Error(err))
			return err
		}
		if err := c.ledger.Commit(ctx, it.OrderID); err != nil {
			log.Error("failed to commit inventory", zap.Error(err))
			return err
		}
		log.Info("order settled as paid")
		return nil
	}

	err := c.orders.Transition(ctx, it.OrderID, order.StatusAwaitingPayment, order.StatusPaymentFailed)
	if err != nil && !errors.Is(err, order.ErrAlreadyTransitioned) {
		log.Error("failed to mark order payment failed", zap.Error(err))
		return err
	}
	if err := c.ledger.Release(ctx, it.OrderID); err != nil {
		log.Error("failed to release inventory", zap.Error(err))
		return err
	}
	log.Info("order settled as failed")
	return nil
}

// ExpireStale sweeps intents whose payment window closed without a webhook.
// Before declaring expiry it polls the provider once, so a lost callback for
// a genuinely paid order still lands as PAID.
func (c *Coordinator) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "coordinator"),
		zap.String("method", "ExpireStale"),
	)

	stale, err := c.intents.ListStale(ctx, now, 100)
	if err != nil {
		log.Error("failed to list stale intents", zap.Error(err))
		return 0, err
	}

	expired := 0
	for _, it := range stale {
		itemLog := log.With(
			zap.String("intent_id", it.ID.String()),
			zap.String("order_id", it.OrderID.String()),
		)

		provider, err := c.registry.Get(it.Provider)
		if err != nil {
			itemLog.Error("stale intent references unknown provider")
			continue
		}

		if ev, qErr := provider.QueryIntent(ctx, it.ProviderTxnID); qErr == nil && ev != nil {
			itemLog.Info("provider reported outcome during expiry poll",
				zap.String("outcome", string(ev.Outcome)),
			)
			if err := c.ApplySettlement(ctx, it, ev); err != nil {
				itemLog.Error("failed to apply polled settlement", zap.Error(err))
			}
			continue
		}

		if err := c.intents.Settle(ctx, it.ID, IntentExpired); err != nil {
			if !errors.Is(err, ErrIntentNotSettlable) {
				itemLog.Error("failed to expire intent", zap.Error(err))
			}
			continue
		}

		err = c.orders.Transition(ctx, it.OrderID, order.StatusAwaitingPayment, order.StatusPaymentFailed)
		if err != nil && !errors.Is(err, order.ErrAlreadyTransitioned) {
			itemLog.Error("failed to fail order on expiry", zap.Error(err))
			continue
		}
		if err := c.ledger.Release(ctx, it.OrderID); err != nil {
			itemLog.Error("failed to release inventory on expiry", zap.Error(err))
			continue
		}

		if err := provider.CancelIntent(ctx, it.ProviderTxnID); err != nil {
			// best-effort only
			itemLog.Warn("provider-side cancel failed", zap.Error(err))
		}

		itemLog.Info("payment intent expired")
		expired++
	}

	return expired, nil
}
