package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campspots/internal/config"
	"campspots/internal/models"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "campspots:idem:"

var errNilClient = errors.New("redis client is nil")

type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisClient builds a client from configuration. It does not dial.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (r *RedisIdempotencyStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record from redis: %w", err)
	}

	var rec models.IdempotencyRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &rec, nil
}

func (r *RedisIdempotencyStore) Save(ctx context.Context, rec *models.IdempotencyRecord, ttl time.Duration) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	// First outcome wins.
	if err := r.client.SetNX(ctx, idempotencyPrefix+rec.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save idempotency record in redis: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
