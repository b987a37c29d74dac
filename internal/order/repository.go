package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shopcore-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	// Create inserts the order and its frozen line items in one transaction.
	Create(ctx context.Context, o *Order) error

	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// Transition applies from -> to with optimistic concurrency: the write
	// only lands if the row still holds from. Concurrent webhook deliveries
	// for the same order race here, and exactly one wins.
	//
	// Returns ErrAlreadyTransitioned when the order already holds to (a
	// replayed event, no-op for callers that tolerate it) and
	// ErrInvalidTransition for everything else.
	Transition(ctx context.Context, id uuid.UUID, from, to Status) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Create"),
		zap.String("order_id", o.ID.String()),
		zap.Int("item_count", len(o.Items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback order transaction", zap.Error(rbErr))
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_no, customer_id, currency,
			subtotal, discount, total, status, promo_code
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		o.ID,
		o.OrderNo,
		o.CustomerID,
		o.Currency,
		o.Subtotal,
		o.Discount,
		o.Total,
		o.Status,
		o.PromoCode,
	)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, product_name,
				quantity, unit_price, subtotal
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID,
			o.ID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
		)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.Uint("product_id", item.ProductID),
				zap.Error(err),
			)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order transaction", zap.Error(err))
		return err
	}

	committed = true
	log.Info("order created", zap.String("order_no", o.OrderNo))
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_no, customer_id, currency,
		       subtotal, discount, total, status, promo_code,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&o.ID,
		&o.OrderNo,
		&o.CustomerID,
		&o.Currency,
		&o.Subtotal,
		&o.Discount,
		&o.Total,
		&o.Status,
		&o.PromoCode,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		item.OrderID = o.ID
		if err := rows.Scan(
			&item.ID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
		); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to Status) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Transition"),
		zap.String("order_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	if !from.CanTransitionTo(to) {
		log.Error("transition not in lifecycle graph")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		log.Error("failed to update order status", zap.Error(err))
		return err
	}

	affected, _ := res.RowsAffected()
	if affected == 1 {
		log.Info("order status transitioned")
		return nil
	}

	// Lost the optimistic check: find out what the row holds now.
	var current Status
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE id = $1`, id,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	if current == to {
		log.Warn("order already in target status, treating as replay")
		return ErrAlreadyTransitioned
	}

	log.Error("conflicting order status transition",
		zap.String("current", string(current)),
	)
	return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, current)
}
