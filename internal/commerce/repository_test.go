package commerce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

// Column counts of the write statements.
const (
	insertDocumentArgs = 29
	updateDocumentArgs = 34
	historyArgs        = 10
)

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// updateArgs pins the compare-and-set key (id, version) and accepts any column values.
func updateArgs(id, version int64) []any {
	return append([]any{id, version}, anyArgs(updateDocumentArgs-2)...)
}

func TestFormatReference(t *testing.T) {
	assert.Equal(t, "DEV-2026-0001", FormatReference(KindQuote, 2026, 1))
	assert.Equal(t, "FAC-2026-0042", FormatReference(KindInvoice, 2026, 42))
	assert.Equal(t, "FAC-2027-12345", FormatReference(KindInvoice, 2027, 12345))
}

func TestRepositoryNextReference(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)

	mock.ExpectQuery(`INSERT INTO document_sequences`).
		WithArgs(KindInvoice, 2026).
		WillReturnRows(pgxmock.NewRows([]string{"last_value"}).AddRow(int64(3)))

	ref, err := repo.NextReference(context.Background(), KindInvoice, 2026)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-0003", ref)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateCompareAndSet(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)
	doc := &Document{ID: 9, Kind: KindQuote, Status: StatusAccepted, Version: 4}

	mock.ExpectExec(`UPDATE commercial_documents SET`).
		WithArgs(updateArgs(9, 4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), doc))
	assert.Equal(t, int64(5), doc.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateStaleVersion(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)
	doc := &Document{ID: 9, Kind: KindQuote, Status: StatusAccepted, Version: 4}

	mock.ExpectExec(`UPDATE commercial_documents SET`).
		WithArgs(updateArgs(9, 4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), doc)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, int64(4), doc.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateSerializationFailure(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)

	mock.ExpectExec(`UPDATE commercial_documents SET`).
		WithArgs(updateArgs(9, 2)...).
		WillReturnError(&pgconn.PgError{Code: "40001"})

	doc := &Document{ID: 9, Version: 2}
	err := repo.Update(context.Background(), doc)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, int64(2), doc.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryAppendHistoryAssignsSeq(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)
	entry := newHistoryEntry(&Document{ID: 9}, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), ActionAccepted, shared.GuestActor(), "")
	entry.FromStatus, entry.ToStatus = StatusSent, StatusAccepted

	mock.ExpectQuery(`INSERT INTO document_history`).
		WithArgs(append([]any{entry.ID, int64(9)}, anyArgs(historyArgs-2)...)...).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(3)))

	require.NoError(t, repo.AppendHistory(context.Background(), &entry))
	assert.Equal(t, int64(3), entry.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryAppendHistorySeqClash(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)
	entry := newHistoryEntry(&Document{ID: 9}, time.Now(), ActionViewed, shared.GuestActor(), "")

	mock.ExpectQuery(`INSERT INTO document_history`).
		WithArgs(anyArgs(historyArgs)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_document_history_seq"})

	err := repo.AppendHistory(context.Background(), &entry)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsertSecondInvoiceForQuote(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)
	quoteID := int64(4)

	mock.ExpectQuery(`INSERT INTO commercial_documents`).
		WithArgs(anyArgs(insertDocumentArgs)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_documents_invoice_per_quote"})

	err := repo.Insert(context.Background(), &Document{Kind: KindInvoice, QuoteID: &quoteID})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryWithTxCommits(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec(`UPDATE commercial_documents SET`).
		WithArgs(updateArgs(1, 1)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Repository) error {
		return tx.Update(ctx, &Document{ID: 1, Version: 1})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryWithTxRollsBack(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)
	boom := errors.New("boom")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Repository) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryWithTxMapsSerializationFailure(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepository(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Repository) error {
		return nil
	})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}
