package repository

import (
	"context"
	"sync"
	"time"

	"github.com/dharsanguruparan/img10/internal/model"
)

// MemoryStore is an in-memory metadata store with the same contract as
// ImageRepository. It backs unit tests and the IMG10_DB=memory dev mode.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string]*model.ImageRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string]*model.ImageRecord)}
}

// Create inserts a record, refusing to overwrite an existing id.
func (m *MemoryStore) Create(_ context.Context, rec *model.ImageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[rec.ID]; ok {
		return model.ErrDuplicateID
	}
	cp := *rec
	m.images[rec.ID] = &cp
	return nil
}

// Get returns a copy of the record for id, or model.ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.ImageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.images[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Exists reports whether a record with id is present.
func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.images[id]
	return ok, nil
}

// ListExpired returns copies of every record created strictly before cutoff.
func (m *MemoryStore) ListExpired(_ context.Context, cutoff time.Time) ([]*model.ImageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ImageRecord
	for _, rec := range m.images {
		if rec.CreatedAt.Before(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Delete removes the record for id; absent ids are not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, id)
	return nil
}

// Stats aggregates over all records.
func (m *MemoryStore) Stats(_ context.Context) (*model.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &model.Stats{TotalImages: int64(len(m.images))}
	for _, rec := range m.images {
		created := rec.CreatedAt
		if stats.OldestImage == nil || created.Before(*stats.OldestImage) {
			t := created
			stats.OldestImage = &t
		}
		if stats.NewestImage == nil || created.After(*stats.NewestImage) {
			t := created
			stats.NewestImage = &t
		}
	}
	return stats, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}
