package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

// RecordStore keeps artifact records in insertion order.
type RecordStore struct {
	mu      sync.RWMutex
	records []archive.ArtifactRecord
	ids     map[string]struct{}
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{ids: make(map[string]struct{})}
}

// InsertRecord appends a record; IDs must be unique.
func (s *RecordStore) InsertRecord(_ context.Context, record archive.ArtifactRecord) error {
	if record.ID == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ids[record.ID]; exists {
		return errors.New("record already exists")
	}
	s.ids[record.ID] = struct{}{}
	s.records = append(s.records, record)
	return nil
}

// ListRecords returns up to limit records, newest first. limit <= 0 returns all.
func (s *RecordStore) ListRecords(_ context.Context, limit int) ([]archive.ArtifactRecord, error) {
	s.mu.RLock()
	out := make([]archive.ArtifactRecord, len(s.records))
	copy(out, s.records)
	s.mu.RUnlock()

	// Reverse insertion order first so equal timestamps keep newest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Records returns every record in insertion order.
func (s *RecordStore) Records() []archive.ArtifactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.ArtifactRecord, len(s.records))
	copy(out, s.records)
	return out
}
