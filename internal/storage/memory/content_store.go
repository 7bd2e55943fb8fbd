// Package memory keeps artifacts and records in process memory for development
// and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/id/uuid"
)

type blob struct {
	meta archive.ContentMetadata
	data []byte
}

// ContentStore stores artifacts in-memory under UUIDv7 content IDs.
type ContentStore struct {
	mu    sync.RWMutex
	ids   archive.IDGenerator
	blobs map[string]blob
}

// NewContentStore creates a new in-memory content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		ids:   uuid.New(),
		blobs: make(map[string]blob),
	}
}

// Put copies r into memory and returns a fresh content ID.
func (s *ContentStore) Put(_ context.Context, r io.Reader, meta archive.ContentMetadata) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("content id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = blob{meta: meta, data: data}
	return id, nil
}

// Get returns a reader over a copy of the stored bytes.
func (s *ContentStore) Get(_ context.Context, id string) (*archive.StoredContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	data := append([]byte(nil), b.data...)
	return &archive.StoredContent{
		ID:       id,
		Metadata: b.meta,
		Size:     int64(len(data)),
		Body:     io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// Delete removes stored content.
func (s *ContentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	delete(s.blobs, id)
	return nil
}

// Len returns the number of stored artifacts.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
