// Package gcs provides a ContentStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/id/uuid"
)

// Object metadata keys.
const (
	metaFilename  = "filename"
	metaSourceURL = "source_url"
	metaChecksum  = "checksum"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every object name, e.g. "articles/".
	Prefix string `mapstructure:"prefix"`
}

// ContentStore writes artifacts to a configured GCS bucket.
type ContentStore struct {
	client *storage.Client
	bucket string
	prefix string
	ids    archive.IDGenerator
}

// New creates a GCS-backed content store.
func New(client *storage.Client, cfg Config) (*ContentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ContentStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		ids:    uuid.New(),
	}, nil
}

// Connect creates a client using Application Default Credentials and verifies
// the bucket is reachable before returning the store.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*ContentStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("failed to close GCS client after bucket check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", cfg.Bucket, err)
	}
	return New(client, cfg)
}

// Close releases the underlying client.
func (s *ContentStore) Close() error {
	return s.client.Close()
}

// Put uploads r under a new content ID.
func (s *ContentStore) Put(ctx context.Context, r io.Reader, meta archive.ContentMetadata) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("content id: %w", err)
	}
	writer := s.object(id).NewWriter(ctx)
	writer.ContentType = meta.ContentType
	writer.Metadata = map[string]string{
		metaFilename:  meta.Filename,
		metaSourceURL: meta.SourceURL,
		metaChecksum:  meta.Checksum,
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return id, nil
}

// Get opens the object stored under id. The caller closes Body.
func (s *ContentStore) Get(ctx context.Context, id string) (*archive.StoredContent, error) {
	if !uuid.Valid(id) {
		return nil, fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	obj := s.object(id)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, s.mapErr(id, "object attributes", err)
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, s.mapErr(id, "open object", err)
	}
	return &archive.StoredContent{
		ID: id,
		Metadata: archive.ContentMetadata{
			Filename:    attrs.Metadata[metaFilename],
			ContentType: attrs.ContentType,
			SourceURL:   attrs.Metadata[metaSourceURL],
			Checksum:    attrs.Metadata[metaChecksum],
		},
		Size: attrs.Size,
		Body: reader,
	}, nil
}

// Delete removes the object stored under id.
func (s *ContentStore) Delete(ctx context.Context, id string) error {
	if !uuid.Valid(id) {
		return fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	if err := s.object(id).Delete(ctx); err != nil {
		return s.mapErr(id, "delete object", err)
	}
	return nil
}

func (s *ContentStore) object(id string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.objectName(id))
}

func (s *ContentStore) objectName(id string) string {
	if s.prefix == "" {
		return id
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + id
}

func (s *ContentStore) mapErr(id, op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	return fmt.Errorf("%s gs://%s/%s: %w", op, s.bucket, s.objectName(id), err)
}
