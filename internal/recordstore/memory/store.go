// Package memory stores publish records in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// Store keeps records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[docs.PublishKey]docs.PublishRecord
}

var _ docs.RecordStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[docs.PublishKey]docs.PublishRecord)}
}

// Get implements docs.RecordStore.
func (s *Store) Get(_ context.Context, key docs.PublishKey) (docs.PublishRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return docs.PublishRecord{}, docs.ErrRecordNotFound
	}
	return rec, nil
}

// Create implements docs.RecordStore.
func (s *Store) Create(_ context.Context, rec docs.PublishRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Key]; exists {
		return docs.ErrRecordExists
	}
	s.records[rec.Key] = rec
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of every stored record.
func (s *Store) Records() []docs.PublishRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]docs.PublishRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
