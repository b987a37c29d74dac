package promotion

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shopcore-be/internal/logger"

	"go.uber.org/zap"
)

// Lookup resolves a promotion code to an active rule snapshot.
type Lookup interface {
	GetActivePromotion(ctx context.Context, code string) (*Rule, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Lookup {
	return &repository{db: db}
}

func (r *repository) GetActivePromotion(ctx context.Context, code string) (*Rule, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetActivePromotion"),
		zap.String("code", code),
	)

	query := `
		SELECT code, discount_type, value, min_subtotal, max_discount, starts_at, ends_at
		FROM promotions
		WHERE code = $1 AND active = TRUE
	`

	var rule Rule
	var minSubtotal, maxDiscount sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&rule.Code,
		&rule.Type,
		&rule.Value,
		&minSubtotal,
		&maxDiscount,
		&rule.StartsAt,
		&rule.EndsAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("promotion not found or inactive")
		return nil, ErrPromotionInvalid
	}
	if err != nil {
		log.Error("failed to query promotion", zap.Error(err))
		return nil, err
	}

	if minSubtotal.Valid {
		rule.MinSubtotal = &minSubtotal.Int64
	}
	if maxDiscount.Valid {
		rule.MaxDiscount = &maxDiscount.Int64
	}

	now := time.Now()
	if now.Before(rule.StartsAt) || now.After(rule.EndsAt) {
		log.Warn("promotion outside active window",
			zap.Time("starts_at", rule.StartsAt),
			zap.Time("ends_at", rule.EndsAt),
		)
		return nil, ErrPromotionExpired
	}

	return &rule, nil
}
