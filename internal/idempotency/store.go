package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"shopcore-be/internal/logger"

	"go.uber.org/zap"
)

var ErrNotInProgress = errors.New("idempotency record is not in progress")

// Store maps a client-supplied key, scoped per mutating endpoint, to the
// outcome of the first successful execution. Admission is an atomic
// insert-if-absent so concurrent duplicates race safely: exactly one caller
// is Admitted, the rest observe InProgress or the finished result.
type Store interface {
	Begin(ctx context.Context, scope, key string) (*BeginResult, error)
	Complete(ctx context.Context, scope, key string, result json.RawMessage) error
	Fail(ctx context.Context, scope, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type store struct {
	db  *sql.DB
	ttl time.Duration
}

func NewStore(db *sql.DB, ttl time.Duration) Store {
	return &store{db: db, ttl: ttl}
}

func (s *store) Begin(ctx context.Context, scope, key string) (*BeginResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "idempotency"),
		zap.String("scope", scope),
		zap.String("key", key),
	)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (scope, idem_key, state, expires_at)
		VALUES ($1, $2, 'IN_PROGRESS', NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (scope, idem_key) DO NOTHING
	`, scope, key, int64(s.ttl.Seconds()))
	if err != nil {
		log.Error("failed to insert idempotency record", zap.Error(err))
		return nil, err
	}

	if affected, _ := res.RowsAffected(); affected == 1 {
		log.Debug("idempotency key admitted")
		return &BeginResult{Outcome: Admitted}, nil
	}

	// Key already exists: inspect it.
	var state State
	var result []byte
	var expiresAt time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT state, result, expires_at
		FROM idempotency_records
		WHERE scope = $1 AND idem_key = $2
	`, scope, key).Scan(&state, &result, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Purged between insert and select; tell the caller to retry.
		return &BeginResult{Outcome: InProgress}, nil
	}
	if err != nil {
		log.Error("failed to read idempotency record", zap.Error(err))
		return nil, err
	}

	expired := time.Now().After(expiresAt)

	if state == StateCompleted && !expired {
		log.Info("idempotency key replayed")
		return &BeginResult{Outcome: Completed, Result: json.RawMessage(result)}, nil
	}

	if state == StateFailed || expired {
		// A FAILED key, or a stale row from a crashed execution, can be
		// reclaimed. The state guard decides the race between reclaimers.
		res, err := s.db.ExecContext(ctx, `
			UPDATE idempotency_records
			SET state = 'IN_PROGRESS', result = NULL,
			    expires_at = NOW() + $3 * INTERVAL '1 second'
			WHERE scope = $1 AND idem_key = $2
			  AND (state = 'FAILED' OR expires_at < NOW())
		`, scope, key, int64(s.ttl.Seconds()))
		if err != nil {
			log.Error("failed to reclaim idempotency record", zap.Error(err))
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			log.Debug("idempotency key reclaimed")
			return &BeginResult{Outcome: Admitted}, nil
		}
	}

	log.Info("duplicate request while original still executing")
	return &BeginResult{Outcome: InProgress}, nil
}

func (s *store) Complete(ctx context.Context, scope, key string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET state = 'COMPLETED', result = $3
		WHERE scope = $1 AND idem_key = $2 AND state = 'IN_PROGRESS'
	`, scope, key, []byte(result))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		logger.FromCtx(ctx).Error("completing idempotency key that is not in progress",
			zap.String("scope", scope),
			zap.String("key", key),
		)
		return ErrNotInProgress
	}
	return nil
}

func (s *store) Fail(ctx context.Context, scope, key string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET state = 'FAILED'
		WHERE scope = $1 AND idem_key = $2 AND state = 'IN_PROGRESS'
	`, scope, key)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotInProgress
	}
	return nil
}

func (s *store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
