package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/storage/sqlite"
)

func openStore(t *testing.T) (*sqlite.RecordStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "records.db")
	store, err := sqlite.NewRecordStore(sqlite.Config{Path: path})
	require.NoError(t, err)
	return store, path
}

func record(id string, ts time.Time) archive.ArtifactRecord {
	return archive.ArtifactRecord{
		ID:        id,
		URL:       "http://x/article/" + id,
		Title:     "Title " + id,
		ContentID: "content-" + id,
		Filename:  "Title " + id + ".pdf",
		Checksum:  "sum-" + id,
		SizeBytes: 42,
		Timestamp: ts,
	}
}

func TestInsertAndListNewestFirst(t *testing.T) {
	store, _ := openStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	require.NoError(t, store.InsertRecord(ctx, record("a", base)))
	require.NoError(t, store.InsertRecord(ctx, record("b", base.Add(time.Minute))))
	require.NoError(t, store.InsertRecord(ctx, record("c", base.Add(time.Minute))))

	all, err := store.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, record("a", base), all[2])

	limited, err := store.ListRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestDuplicateIDRejected(t *testing.T) {
	store, _ := openStore(t)
	defer store.Close()

	rec := record("dup", time.Now())
	require.NoError(t, store.InsertRecord(context.Background(), rec))
	assert.Error(t, store.InsertRecord(context.Background(), rec))
	assert.ErrorContains(t, store.InsertRecord(context.Background(), archive.ArtifactRecord{}), "record id is required")
}

func TestReopenKeepsRecords(t *testing.T) {
	store, path := openStore(t)
	require.NoError(t, store.InsertRecord(context.Background(), record("a", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := sqlite.NewRecordStore(sqlite.Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ListRecords(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMissingPath(t *testing.T) {
	_, err := sqlite.NewRecordStore(sqlite.Config{})
	assert.ErrorContains(t, err, "path is required")
}
