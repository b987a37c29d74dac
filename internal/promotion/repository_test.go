package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_GetActivePromotion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	cols := []string{"code", "discount_type", "value", "min_subtotal", "max_discount", "starts_at", "ends_at"}

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows(cols).
			AddRow("SALE10", "PERCENT", 10, nil, 50000, now.Add(-time.Hour), now.Add(time.Hour))

		mock.ExpectQuery(`SELECT code, discount_type, .* FROM promotions WHERE code = \$1 AND active = TRUE`).
			WithArgs("SALE10").
			WillReturnRows(rows)

		rule, err := repo.GetActivePromotion(ctx, "SALE10")
		require.NoError(t, err)
		assert.Equal(t, "SALE10", rule.Code)
		assert.Equal(t, DiscountPercent, rule.Type)
		assert.Equal(t, int64(10), rule.Value)
		assert.Nil(t, rule.MinSubtotal)
		require.NotNil(t, rule.MaxDiscount)
		assert.Equal(t, int64(50000), *rule.MaxDiscount)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT code, .* FROM promotions`).
			WithArgs("NOPE").
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := repo.GetActivePromotion(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrPromotionInvalid)
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows(cols).
			AddRow("OLD", "FIXED", 5000, nil, nil, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

		mock.ExpectQuery(`SELECT code, .* FROM promotions`).
			WithArgs("OLD").
			WillReturnRows(rows)

		_, err := repo.GetActivePromotion(ctx, "OLD")
		assert.ErrorIs(t, err, ErrPromotionExpired)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`SELECT code, .* FROM promotions`).
			WithArgs("SALE10").
			WillReturnError(errors.New("db down"))

		_, err := repo.GetActivePromotion(ctx, "SALE10")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrPromotionInvalid)
	})
}
