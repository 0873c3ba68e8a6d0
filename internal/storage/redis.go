package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/miravo-storefront/pkg/redis"
)

type redisKV interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	Del(context.Context, ...string) error
	LocalKey(deviceID, key string) string
	TabKey(deviceID, tabID, key string) string
}

// Redis is a Store whose keys live under one namespaced prefix.
type Redis struct {
	client redisKV
	ttl    time.Duration
	keyFn  func(string) string
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.keyFn(key))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes the value and refreshes the partition TTL on that key.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.keyFn(key), value, r.ttl); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyFn(key)); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// RedisBackend stores local state with a long TTL and tab state with a short one.
type RedisBackend struct {
	client   redisKV
	localTTL time.Duration
	tabTTL   time.Duration
}

func NewRedisBackend(client *redis.Client, localTTL, tabTTL time.Duration) *RedisBackend {
	return &RedisBackend{client: client, localTTL: localTTL, tabTTL: tabTTL}
}

func (b *RedisBackend) Local(deviceID string) Store {
	return &Redis{
		client: b.client,
		ttl:    b.localTTL,
		keyFn:  func(key string) string { return b.client.LocalKey(deviceID, key) },
	}
}

func (b *RedisBackend) Tab(deviceID, tabID string) Store {
	return &Redis{
		client: b.client,
		ttl:    b.tabTTL,
		keyFn:  func(key string) string { return b.client.TabKey(deviceID, tabID, key) },
	}
}
