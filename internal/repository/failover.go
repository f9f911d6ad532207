package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"campspots/internal/domain"
	"campspots/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverIdempotencyStore serves from primary until it errors, then from
// fallback, retrying primary once per recoveryInterval.
type FailoverIdempotencyStore struct {
	primary  domain.IdempotencyStore
	fallback domain.IdempotencyStore
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverIdempotencyStore(primary, fallback domain.IdempotencyStore, logger *zerolog.Logger) *FailoverIdempotencyStore {
	return &FailoverIdempotencyStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should try primary.
func (r *FailoverIdempotencyStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverIdempotencyStore) observe(err error) {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("Primary idempotency store recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary idempotency store failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverIdempotencyStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	if r.usePrimary() {
		rec, err := r.primary.Get(ctx, key)
		r.observe(err)
		if err == nil {
			return rec, nil
		}
	}
	return r.fallback.Get(ctx, key)
}

func (r *FailoverIdempotencyStore) Save(ctx context.Context, rec *models.IdempotencyRecord, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Save(ctx, rec, ttl)
		r.observe(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.Save(ctx, rec, ttl)
}
