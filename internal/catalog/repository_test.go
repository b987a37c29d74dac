package catalog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_GetProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "price", "stock"}).
			AddRow(7, "Ca phe sua da", 50000, 12)

		mock.ExpectQuery(`SELECT id, name, price, stock FROM products WHERE id = \$1`).
			WithArgs(uint(7)).
			WillReturnRows(rows)

		p, err := repo.GetProduct(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, uint(7), p.ID)
		assert.Equal(t, int64(50000), p.Price)
		assert.Equal(t, 12, p.Stock)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, price, stock FROM products`).
			WithArgs(uint(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock"}))

		_, err := repo.GetProduct(ctx, 99)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}
