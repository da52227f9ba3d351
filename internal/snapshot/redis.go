// Package snapshot provides the durable room-snapshot stores behind the
// board registry. Redis is the primary backend; SQLite backs deployments
// without a Redis and keeps local development durable.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sameersharmadev/canverse/internal/board"
)

const keyPrefix = "room:"

// RedisStore keeps one row per room with a TTL refreshed on every save.
type RedisStore struct {
	client *redis.Client
}

var _ board.Cache = (*RedisStore)(nil)

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Load(ctx context.Context, roomID string) (*board.Snapshot, error) {
	data, err := r.client.Get(ctx, keyPrefix+roomID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, board.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	var snap board.Snapshot
	if err := snap.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode snapshot for room %s: %w", roomID, err)
	}
	return &snap, nil
}

func (r *RedisStore) Save(ctx context.Context, roomID string, snap *board.Snapshot, ttl time.Duration) error {
	return r.client.Set(ctx, keyPrefix+roomID, snap, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, roomID string) error {
	return r.client.Del(ctx, keyPrefix+roomID).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
