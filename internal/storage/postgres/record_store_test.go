package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

var recordColumns = []string{"id", "url", "title", "content_id", "filename", "checksum", "size_bytes", "archived_at"}

func TestInsertRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := archive.ArtifactRecord{
		ID:        "0190b6f4-5c6a-7b3e-9a41-2f1c0d9e8b7a",
		URL:       "https://journals.plos.org/plosone/article?id=10.1371/journal.pone.0000001",
		Title:     "A study",
		ContentID: "0190b6f4-5c6a-7b3e-9a41-2f1c0d9e8b7b",
		Filename:  "A study.pdf",
		Checksum:  "abc123",
		SizeBytes: 1024,
		Timestamp: now,
	}

	mock.ExpectExec("INSERT INTO artifact_records").
		WithArgs(
			rec.ID,
			rec.URL,
			rec.Title,
			rec.ContentID,
			rec.Filename,
			rec.Checksum,
			rec.SizeBytes,
			rec.Timestamp,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "records")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO records").WillReturnError(errors.New("unique violation"))

	err = store.InsertRecord(context.Background(), archive.ArtifactRecord{ID: "x"})
	require.ErrorContains(t, err, "unique violation")
	require.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorContains(t, store.InsertRecord(context.Background(), archive.ArtifactRecord{}), "record id is required")
}

func TestListRecordsNewestFirst(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	later := time.Unix(1700000600, 0).UTC()
	earlier := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(recordColumns).
		AddRow("id-2", "u2", "t2", "c2", "t2.pdf", "h2", int64(20), later).
		AddRow("id-1", "u1", "t1", "c1", "t1.pdf", "h1", int64(10), earlier)

	mock.ExpectQuery(`FROM artifact_records\s+ORDER BY archived_at DESC\s+LIMIT`).
		WithArgs(2).
		WillReturnRows(rows)

	got, err := store.ListRecords(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-2", got[0].ID)
	assert.Equal(t, later, got[0].Timestamp)
	assert.Equal(t, int64(10), got[1].SizeBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsWithoutLimit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("FROM artifact_records").
		WithArgs().
		WillReturnRows(pgxmock.NewRows(recordColumns))

	got, err := store.ListRecords(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS artifact_records").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "")
	assert.ErrorContains(t, err, "pool is required")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRecordStoreWithPool(mock, "bad;table")
	assert.ErrorContains(t, err, "invalid table name")

	_, err = NewRecordStore(context.Background(), Config{})
	assert.ErrorContains(t, err, "dsn is required")
}
