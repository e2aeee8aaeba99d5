// Package redisstore keeps feed cache entries in Redis, for deployments where
// several site instances share one cache.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"synthsite/cache"
)

type Store struct {
	client *redis.Client
	expiry time.Duration
}

// New connects lazily to addr. Entries expire after expiry; zero keeps them forever.
func New(addr string, expiry time.Duration) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          0,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	}), expiry)
}

func NewWithClient(client *redis.Client, expiry time.Duration) *Store {
	return &Store{client: client, expiry: expiry}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, s.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
