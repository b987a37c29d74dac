package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopcore-be/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheTTL = 2 * time.Minute

// cachedLookup is a read-through Redis cache in front of the promotion table.
// The TTL is short: promotions checked during checkout become a snapshot
// anyway, so a slightly stale rule only delays activation, never corrupts
// an existing order.
type cachedLookup struct {
	inner  Lookup
	client *redis.Client
}

func NewCachedLookup(inner Lookup, client *redis.Client) Lookup {
	return &cachedLookup{inner: inner, client: client}
}

func (c *cachedLookup) GetActivePromotion(ctx context.Context, code string) (*Rule, error) {
	key := cacheKey(code)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil && cached != "" {
		var rule Rule
		if jsonErr := json.Unmarshal([]byte(cached), &rule); jsonErr == nil {
			// window re-check so a cached rule cannot outlive its expiry
			now := time.Now()
			if now.Before(rule.StartsAt) || now.After(rule.EndsAt) {
				return nil, ErrPromotionExpired
			}
			return &rule, nil
		}
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.FromCtx(ctx).Warn("promotion cache read failed, falling back to db",
			zap.String("code", code),
			zap.Error(err),
		)
	}

	rule, err := c.inner.GetActivePromotion(ctx, code)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(rule); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, data, cacheTTL).Err(); setErr != nil {
			logger.FromCtx(ctx).Warn("promotion cache write failed",
				zap.String("code", code),
				zap.Error(setErr),
			)
		}
	}

	return rule, nil
}

func cacheKey(code string) string {
	return fmt.Sprintf("shopcore:promotion:%s", code)
}
