package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*IdempotencyStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := NewIdempotencyStore(mock)
	store.clock = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestIdempotencyStoreClaimsKeyOnce(t *testing.T) {
	store, mock := newMockStore(t)
	now := store.clock()

	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("pay-1", "invoice-payment", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("pay-1", "invoice-payment", now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	require.NoError(t, store.CheckAndInsert(context.Background(), "pay-1", "invoice-payment"))
	err := store.CheckAndInsert(context.Background(), "pay-1", "invoice-payment")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStoreRequiresKeyAndScope(t *testing.T) {
	store, _ := newMockStore(t)
	require.Error(t, store.CheckAndInsert(context.Background(), "", "invoice-payment"))
	require.Error(t, store.CheckAndInsert(context.Background(), "pay-1", ""))

	var nilStore *IdempotencyStore
	require.Error(t, nilStore.CheckAndInsert(context.Background(), "pay-1", "invoice-payment"))
	require.NoError(t, nilStore.Release(context.Background(), "pay-1", "invoice-payment"))
}

func TestIdempotencyStoreReleaseAndCleanup(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM idempotency_keys WHERE key").
		WithArgs("pay-1", "invoice-payment").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM idempotency_keys WHERE created_at").
		WithArgs(store.clock().Add(-48 * time.Hour)).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	require.NoError(t, store.Release(context.Background(), "pay-1", "invoice-payment"))
	removed, err := store.Cleanup(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 12, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}
