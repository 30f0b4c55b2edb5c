package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
)

const redisKeyPrefix = "hazard-snapshot:"

// RedisStore shares decoded snapshots between service replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis returns nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedisStore stores snapshots for ttl (one hour when ttl <= 0).
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.GridSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GridSnapshot{}, false, nil
	}
	if err != nil {
		return domain.GridSnapshot{}, false, fmt.Errorf("redis get: %w", err)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return domain.GridSnapshot{}, false, err
	}
	return snap, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, snap domain.GridSnapshot) error {
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type storedSnapshot struct {
	Hazard domain.HazardType `json:"hazard"`
	wireSnapshot
}

func encodeSnapshot(snap domain.GridSnapshot) ([]byte, error) {
	raw, err := json.Marshal(storedSnapshot{Hazard: snap.Hazard, wireSnapshot: toWire(snap)})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

func decodeSnapshot(raw []byte) (domain.GridSnapshot, error) {
	var stored storedSnapshot
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.GridSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	snap := stored.toDomain()
	snap.Hazard = stored.Hazard
	return snap, nil
}
