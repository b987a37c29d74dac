package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"shopcore-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger owns reservation bookkeeping. The reserved counter on products is
// mutated only through these operations, never read-modify-written by callers.
type Ledger interface {
	// ReserveAll places a HELD reservation for every line, all-or-nothing:
	// if any line cannot be reserved, no reservation from this call remains.
	ReserveAll(ctx context.Context, orderID uuid.UUID, lines []Line) error

	// Commit flips HELD reservations for the order to COMMITTED. Idempotent.
	Commit(ctx context.Context, orderID uuid.UUID) error

	// Release returns HELD or COMMITTED reservations for the order to
	// available stock. Idempotent.
	Release(ctx context.Context, orderID uuid.UUID) error

	Available(ctx context.Context, productID uint) (int, error)
}

type ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) ReserveAll(ctx context.Context, orderID uuid.UUID, lines []Line) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "ReserveAll"),
		zap.String("order_id", orderID.String()),
		zap.Int("line_count", len(lines)),
	)

	for _, line := range lines {
		if line.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback reservation transaction", zap.Error(rbErr))
			}
		}
	}()

	for _, line := range lines {
		// The availability check and the hold are one conditional update,
		// so concurrent reservations on the same product cannot oversell.
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET reserved = reserved + $1
			WHERE id = $2 AND stock - reserved >= $1
		`, line.Quantity, line.ProductID)
		if err != nil {
			log.Error("failed to place hold",
				zap.Uint("product_id", line.ProductID),
				zap.Error(err),
			)
			return err
		}

		affected, _ := res.RowsAffected()
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`,
				line.ProductID,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				log.Warn("reservation for unknown product", zap.Uint("product_id", line.ProductID))
				return fmt.Errorf("%w: product %d", ErrProductNotFound, line.ProductID)
			}

			log.Warn("insufficient stock",
				zap.Uint("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
			)
			return fmt.Errorf("%w: product %d", ErrInsufficientStock, line.ProductID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_reservations (id, order_id, product_id, quantity, state)
			VALUES ($1, $2, $3, $4, 'HELD')
		`, uuid.New(), orderID, line.ProductID, line.Quantity)
		if err != nil {
			log.Error("failed to insert reservation row",
				zap.Uint("product_id", line.ProductID),
				zap.Error(err),
			)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit reservation transaction", zap.Error(err))
		return err
	}

	committed = true
	log.Info("stock reserved")
	return nil
}

func (l *ledger) Commit(ctx context.Context, orderID uuid.UUID) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Commit"),
		zap.String("order_id", orderID.String()),
	)

	// COMMITTED rows keep counting against the reserved total, so only
	// the row state changes here. The state guard makes replays no-ops.
	res, err := l.db.ExecContext(ctx, `
		UPDATE inventory_reservations
		SET state = 'COMMITTED', updated_at = NOW()
		WHERE order_id = $1 AND state = 'HELD'
	`, orderID)
	if err != nil {
		log.Error("failed to commit reservations", zap.Error(err))
		return err
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		log.Debug("no held reservations to commit")
		return nil
	}

	log.Info("reservations committed", zap.Int64("count", affected))
	return nil
}

func (l *ledger) Release(ctx context.Context, orderID uuid.UUID) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Release"),
		zap.String("order_id", orderID.String()),
	)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback release transaction", zap.Error(rbErr))
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
		UPDATE products p
		SET reserved = p.reserved - r.quantity
		FROM inventory_reservations r
		WHERE r.product_id = p.id
		  AND r.order_id = $1
		  AND r.state IN ('HELD', 'COMMITTED')
	`, orderID)
	if err != nil {
		log.Error("failed to return stock", zap.Error(err))
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE inventory_reservations
		SET state = 'RELEASED', updated_at = NOW()
		WHERE order_id = $1 AND state IN ('HELD', 'COMMITTED')
	`, orderID)
	if err != nil {
		log.Error("failed to release reservations", zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit release transaction", zap.Error(err))
		return err
	}
	committed = true

	affected, _ := res.RowsAffected()
	if affected == 0 {
		log.Debug("no reservations to release")
		return nil
	}

	log.Info("reservations released", zap.Int64("count", affected))
	return nil
}

func (l *ledger) Available(ctx context.Context, productID uint) (int, error) {
	var available int
	err := l.db.QueryRowContext(ctx, `
		SELECT stock - reserved
		FROM products
		WHERE id = $1
	`, productID).Scan(&available)
	if err == sql.ErrNoRows {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}
	return available, nil
}
