package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

const defaultCollection = "articles"

type recordDocument struct {
	ID         string    `bson:"_id"`
	URL        string    `bson:"url"`
	Title      string    `bson:"title"`
	ContentID  string    `bson:"content_id"`
	Filename   string    `bson:"filename"`
	Checksum   string    `bson:"checksum"`
	SizeBytes  int64     `bson:"size_bytes"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// RecordStore keeps artifact records in a collection keyed by record ID.
type RecordStore struct {
	coll *mongo.Collection
}

// NewRecordStore uses the named collection of db.
func NewRecordStore(db *mongo.Database, collection string) *RecordStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &RecordStore{coll: db.Collection(collection)}
}

// InsertRecord inserts one record; a duplicate ID is rejected by the _id index.
func (s *RecordStore) InsertRecord(ctx context.Context, r archive.ArtifactRecord) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if _, err := s.coll.InsertOne(ctx, toDocument(r)); err != nil {
		return fmt.Errorf("insert record %s: %w", r.ID, err)
	}
	return nil
}

// ListRecords returns up to limit records, newest first. limit <= 0 returns all.
func (s *RecordStore) ListRecords(ctx context.Context, limit int) ([]archive.ArtifactRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "archived_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]archive.ArtifactRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

func toDocument(r archive.ArtifactRecord) recordDocument {
	return recordDocument{
		ID:         r.ID,
		URL:        r.URL,
		Title:      r.Title,
		ContentID:  r.ContentID,
		Filename:   r.Filename,
		Checksum:   r.Checksum,
		SizeBytes:  r.SizeBytes,
		ArchivedAt: r.Timestamp.UTC(),
	}
}

func fromDocument(d recordDocument) archive.ArtifactRecord {
	return archive.ArtifactRecord{
		ID:        d.ID,
		URL:       d.URL,
		Title:     d.Title,
		ContentID: d.ContentID,
		Filename:  d.Filename,
		Checksum:  d.Checksum,
		SizeBytes: d.SizeBytes,
		Timestamp: d.ArchivedAt.UTC(),
	}
}
