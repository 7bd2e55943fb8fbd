package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

const defaultBucket = "fs"

// fileMetadata is the metadata document attached to each GridFS file.
type fileMetadata struct {
	ContentType string `bson:"content_type"`
	SourceURL   string `bson:"source_url"`
	Checksum    string `bson:"checksum,omitempty"`
}

// ContentStore keeps artifacts in a GridFS bucket. Content IDs are the hex
// form of the GridFS file ObjectID.
type ContentStore struct {
	bucket *gridfs.Bucket
}

// NewContentStore opens the named GridFS bucket in db.
func NewContentStore(db *mongo.Database, name string) (*ContentStore, error) {
	if name == "" {
		name = defaultBucket
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(name))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket %s: %w", name, err)
	}
	return &ContentStore{bucket: bucket}, nil
}

// Put streams r into GridFS under meta.Filename.
func (s *ContentStore) Put(ctx context.Context, r io.Reader, meta archive.ContentMetadata) (string, error) {
	if err := checkCtx(ctx); err != nil {
		return "", err
	}
	opts := options.GridFSUpload().SetMetadata(toFileMetadata(meta))
	id, err := s.bucket.UploadFromStream(meta.Filename, r, opts)
	if err != nil {
		return "", fmt.Errorf("upload to gridfs: %w", err)
	}
	return id.Hex(), nil
}

// Get opens a download stream for id. The caller closes Body.
func (s *ContentStore) Get(ctx context.Context, id string) (*archive.StoredContent, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	stream, err := s.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
		}
		return nil, fmt.Errorf("open gridfs file %s: %w", id, err)
	}

	file := stream.GetFile()
	meta, err := fromFile(file.Name, file.Metadata)
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
	}
	return &archive.StoredContent{ID: id, Metadata: meta, Size: file.Length, Body: stream}, nil
}

// Delete removes the file and its chunks.
func (s *ContentStore) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if err := s.bucket.Delete(oid); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
		}
		return fmt.Errorf("delete gridfs file %s: %w", id, err)
	}
	return nil
}

// checkCtx stops early on a canceled context; the v1 GridFS API takes none.
func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("gridfs: %w", err)
	}
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	return oid, nil
}

func toFileMetadata(meta archive.ContentMetadata) fileMetadata {
	return fileMetadata{ContentType: meta.ContentType, SourceURL: meta.SourceURL, Checksum: meta.Checksum}
}

func fromFile(name string, raw bson.Raw) (archive.ContentMetadata, error) {
	meta := archive.ContentMetadata{Filename: name}
	if len(raw) == 0 {
		return meta, nil
	}
	var fm fileMetadata
	if err := bson.Unmarshal(raw, &fm); err != nil {
		return meta, err
	}
	meta.ContentType = fm.ContentType
	meta.SourceURL = fm.SourceURL
	meta.Checksum = fm.Checksum
	return meta, nil
}
