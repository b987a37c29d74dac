package catalog

import (
	"context"
	"database/sql"
	"errors"
)

var ErrProductNotFound = errors.New("product not found")

// Reader exposes catalog data the checkout needs: current price and total
// stock per product. Reservation bookkeeping lives in the inventory ledger,
// not here; this is read-only context.
type Reader interface {
	GetProduct(ctx context.Context, productID uint) (*Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Reader {
	return &repository{db: db}
}

func (r *repository) GetProduct(ctx context.Context, productID uint) (*Product, error) {
	query := `
		SELECT id, name, price, stock
		FROM products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRowContext(ctx, query, productID).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}
