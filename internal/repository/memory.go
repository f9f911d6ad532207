package repository

import (
	"context"
	"sync"
	"time"

	"campspots/internal/models"
)

type memoryRecord struct {
	rec       models.IdempotencyRecord
	expiresAt time.Time
}

// MemoryIdempotencyStore keeps idempotency records in process. Entries expire lazily on read.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

func (r *MemoryIdempotencyStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	if r.now().After(m.expiresAt) {
		delete(r.records, key)
		return nil, nil
	}
	rec := m.rec
	return &rec, nil
}

func (r *MemoryIdempotencyStore) Save(ctx context.Context, rec *models.IdempotencyRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if m, ok := r.records[rec.Key]; ok && !now.After(m.expiresAt) {
		return nil
	}
	r.records[rec.Key] = memoryRecord{rec: *rec, expiresAt: now.Add(ttl)}
	return nil
}
