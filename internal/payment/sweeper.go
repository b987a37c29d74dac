package payment

import (
	"context"
	"time"

	"shopcore-be/internal/idempotency"
	"shopcore-be/internal/logger"

	"go.uber.org/zap"
)

// Sweeper is the customer-facing safety net for lost webhooks: it loops,
// expiring stale payment intents and purging dead idempotency records.
type Sweeper struct {
	coordinator *Coordinator
	idem        idempotency.Store
	interval    time.Duration
}

func NewSweeper(coordinator *Coordinator, idem idempotency.Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		coordinator: coordinator,
		idem:        idem,
		interval:    interval,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log := logger.L().With(zap.String("layer", "sweeper"))
	log.Info("expiry sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx, log)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, log *zap.Logger) {
	expired, err := s.coordinator.ExpireStale(ctx, time.Now())
	if err != nil {
		log.Error("intent expiry sweep failed", zap.Error(err))
	} else if expired > 0 {
		log.Info("expired stale payment intents", zap.Int("count", expired))
	}

	purged, err := s.idem.PurgeExpired(ctx)
	if err != nil {
		log.Error("idempotency purge failed", zap.Error(err))
	} else if purged > 0 {
		log.Debug("purged expired idempotency records", zap.Int64("count", purged))
	}
}
