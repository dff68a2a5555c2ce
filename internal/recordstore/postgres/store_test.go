package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/recordstore"
)

func testRecord() docs.PublishRecord {
	return docs.PublishRecord{
		Key:     docs.PublishKey{Host: "www.gov.uk", Hash: "5d41402abc4b2a76b9719d911017c592"},
		Outcome: docs.StatusAccepted,
		Document: docs.Document{
			Candidate: docs.Candidate{DocumentURL: "https://www.gov.uk/a.pdf"},
			Status:    docs.StatusAccepted,
		},
		RecordedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	return mock, store
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "records; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rec := testRecord()
	payload, err := recordstore.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO publish_records").
		WithArgs(rec.Key.Host, rec.Key.Hash, "ACCEPTED", payload, rec.RecordedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConflictReportsExists(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("ON CONFLICT \\(host, hash\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.Create(context.Background(), testRecord())
	require.ErrorIs(t, err, docs.ErrRecordExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExecError(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("INSERT INTO publish_records").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := store.Create(context.Background(), testRecord())
	require.ErrorContains(t, err, "connection reset")
	require.NotErrorIs(t, err, docs.ErrRecordExists)
}

func TestGetReturnsRecord(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rec := testRecord()
	payload, err := recordstore.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM publish_records").
		WithArgs(rec.Key.Host, rec.Key.Hash).
		WillReturnRows(mock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.Get(context.Background(), rec.Key)
	require.NoError(t, err)
	require.Equal(t, rec, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("SELECT payload FROM publish_records").
		WithArgs("h", "x").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), docs.PublishKey{Host: "h", Hash: "x"})
	require.ErrorIs(t, err, docs.ErrRecordNotFound)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS publish_records").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
