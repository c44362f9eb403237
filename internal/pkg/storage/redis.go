package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vodeneev/surebet/internal/pkg/config"
)

const snapshotKey = "surebets:snapshot"

// Ensure RedisSurebetCache implements SurebetCache
var _ SurebetCache = (*RedisSurebetCache)(nil)

// RedisSurebetCache stores the latest scan snapshot under a single key with a TTL.
type RedisSurebetCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSurebetCache(cfg *config.RedisConfig) (*RedisSurebetCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisSurebetCache(client, cfg.SnapshotTTL), nil
}

func newRedisSurebetCache(client *redis.Client, ttl time.Duration) *RedisSurebetCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisSurebetCache{client: client, ttl: ttl}
}

// SaveSnapshot replaces the cached snapshot.
func (r *RedisSurebetCache) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, snapshotKey, data, r.ttl).Err()
}

// LoadSnapshot returns the cached snapshot, or nil if it expired or was never saved.
func (r *RedisSurebetCache) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Close closes connection with Redis
func (r *RedisSurebetCache) Close() error {
	return r.client.Close()
}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
