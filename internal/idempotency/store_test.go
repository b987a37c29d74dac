package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scope = "create-order"

func newStore(t *testing.T) (Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db, 24*time.Hour), mock, func() { db.Close() }
}

func TestStore_Begin(t *testing.T) {
	ctx := context.Background()

	t.Run("Admitted", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		mock.ExpectExec(`INSERT INTO idempotency_records .* ON CONFLICT \(scope, idem_key\) DO NOTHING`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := store.Begin(ctx, scope, "key-1")
		require.NoError(t, err)
		assert.Equal(t, Admitted, res.Outcome)
	})

	t.Run("InProgress", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		mock.ExpectExec(`INSERT INTO idempotency_records`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT state, result, expires_at FROM idempotency_records`).
			WithArgs(scope, "key-1").
			WillReturnRows(sqlmock.NewRows([]string{"state", "result", "expires_at"}).
				AddRow("IN_PROGRESS", nil, time.Now().Add(time.Hour)))

		res, err := store.Begin(ctx, scope, "key-1")
		require.NoError(t, err)
		assert.Equal(t, InProgress, res.Outcome)
	})

	t.Run("CompletedReplaysStoredResult", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		stored := []byte(`{"orderId":"abc","totalAmount":90000}`)

		mock.ExpectExec(`INSERT INTO idempotency_records`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT state, result, expires_at`).
			WithArgs(scope, "key-1").
			WillReturnRows(sqlmock.NewRows([]string{"state", "result", "expires_at"}).
				AddRow("COMPLETED", stored, time.Now().Add(time.Hour)))

		res, err := store.Begin(ctx, scope, "key-1")
		require.NoError(t, err)
		assert.Equal(t, Completed, res.Outcome)
		assert.Equal(t, json.RawMessage(stored), res.Result)
	})

	t.Run("FailedKeyIsReclaimed", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		mock.ExpectExec(`INSERT INTO idempotency_records`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT state, result, expires_at`).
			WithArgs(scope, "key-1").
			WillReturnRows(sqlmock.NewRows([]string{"state", "result", "expires_at"}).
				AddRow("FAILED", nil, time.Now().Add(time.Hour)))
		mock.ExpectExec(`UPDATE idempotency_records SET state = 'IN_PROGRESS'`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := store.Begin(ctx, scope, "key-1")
		require.NoError(t, err)
		assert.Equal(t, Admitted, res.Outcome)
	})

	t.Run("FailedKeyReclaimRaceLoses", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		mock.ExpectExec(`INSERT INTO idempotency_records`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT state, result, expires_at`).
			WithArgs(scope, "key-1").
			WillReturnRows(sqlmock.NewRows([]string{"state", "result", "expires_at"}).
				AddRow("FAILED", nil, time.Now().Add(time.Hour)))
		// another caller reclaimed the row first
		mock.ExpectExec(`UPDATE idempotency_records SET state = 'IN_PROGRESS'`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		res, err := store.Begin(ctx, scope, "key-1")
		require.NoError(t, err)
		assert.Equal(t, InProgress, res.Outcome)
	})

	t.Run("ExpiredInProgressIsReclaimed", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		mock.ExpectExec(`INSERT INTO idempotency_records`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT state, result, expires_at`).
			WithArgs(scope, "key-1").
			WillReturnRows(sqlmock.NewRows([]string{"state", "result", "expires_at"}).
				AddRow("IN_PROGRESS", nil, time.Now().Add(-time.Hour)))
		mock.ExpectExec(`UPDATE idempotency_records SET state = 'IN_PROGRESS'`).
			WithArgs(scope, "key-1", int64(86400)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := store.Begin(ctx, scope, "key-1")
		require.NoError(t, err)
		assert.Equal(t, Admitted, res.Outcome)
	})
}

func TestStore_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		result := json.RawMessage(`{"ok":true}`)
		mock.ExpectExec(`UPDATE idempotency_records SET state = 'COMPLETED', result = \$3`).
			WithArgs(scope, "key-1", []byte(result)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Complete(ctx, scope, "key-1", result))
	})

	t.Run("NotInProgress", func(t *testing.T) {
		store, mock, closeFn := newStore(t)
		defer closeFn()

		mock.ExpectExec(`UPDATE idempotency_records SET state = 'COMPLETED'`).
			WithArgs(scope, "key-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Complete(ctx, scope, "key-1", nil), ErrNotInProgress)
	})
}

func TestStore_Fail(t *testing.T) {
	ctx := context.Background()
	store, mock, closeFn := newStore(t)
	defer closeFn()

	mock.ExpectExec(`UPDATE idempotency_records SET state = 'FAILED'`).
		WithArgs(scope, "key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.Fail(ctx, scope, "key-1"))
}

func TestStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	store, mock, closeFn := newStore(t)
	defer closeFn()

	mock.ExpectExec(`DELETE FROM idempotency_records WHERE expires_at < NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
