package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Repository interface {
	CreateIntent(ctx context.Context, it *Intent) error

	// GetActiveByOrder returns the single non-terminal intent for the order,
	// or ErrIntentNotFound when none exists.
	GetActiveByOrder(ctx context.Context, orderID uuid.UUID) (*Intent, error)

	GetByProviderTxnID(ctx context.Context, provider, providerTxnID string) (*Intent, error)

	// Settle moves an intent from its active states to a terminal status.
	// The state guard makes duplicate settlements lose the race:
	// ErrIntentNotSettlable is returned when the intent is already terminal.
	Settle(ctx context.Context, id uuid.UUID, to IntentStatus) error

	// ListStale returns active intents whose payment window closed before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Intent, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// IsDuplicateIntent reports whether err is the unique-index violation raised
// when a second non-terminal intent is inserted for the same order. The
// index is the storage-level backstop behind GetActiveByOrder's check.
func IsDuplicateIntent(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const intentColumns = `
	id, order_id, provider, provider_txn_id, amount, currency,
	status, redirect_url, idempotency_key, expires_at, created_at, updated_at
`

func (r *repository) CreateIntent(ctx context.Context, it *Intent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_intents (
			id, order_id, provider, provider_txn_id, amount, currency,
			status, redirect_url, idempotency_key, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		it.ID,
		it.OrderID,
		it.Provider,
		it.ProviderTxnID,
		it.Amount,
		it.Currency,
		it.Status,
		it.RedirectURL,
		it.IdempotencyKey,
		it.ExpiresAt,
	)
	return err
}

func (r *repository) GetActiveByOrder(ctx context.Context, orderID uuid.UUID) (*Intent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE order_id = $1 AND status IN ('CREATED', 'PENDING')
	`, orderID)
	return scanIntent(row)
}

func (r *repository) GetByProviderTxnID(ctx context.Context, provider, providerTxnID string) (*Intent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE provider = $1 AND provider_txn_id = $2
	`, provider, providerTxnID)
	return scanIntent(row)
}

func (r *repository) Settle(ctx context.Context, id uuid.UUID, to IntentStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('CREATED', 'PENDING')
	`, to, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrIntentNotSettlable
	}
	return nil
}

func (r *repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Intent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE status IN ('CREATED', 'PENDING') AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []*Intent
	for rows.Next() {
		it, err := scanIntentRows(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, it)
	}
	return intents, rows.Err()
}

func scanIntent(row *sql.Row) (*Intent, error) {
	var it Intent
	err := row.Scan(
		&it.ID, &it.OrderID, &it.Provider, &it.ProviderTxnID,
		&it.Amount, &it.Currency, &it.Status, &it.RedirectURL,
		&it.IdempotencyKey, &it.ExpiresAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanIntentRows(rows *sql.Rows) (*Intent, error) {
	var it Intent
	err := rows.Scan(
		&it.ID, &it.OrderID, &it.Provider, &it.ProviderTxnID,
		&it.Amount, &it.Currency, &it.Status, &it.RedirectURL,
		&it.IdempotencyKey, &it.ExpiresAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
