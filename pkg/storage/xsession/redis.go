package xsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// RedisStore
// =============================================================================

// RedisStore 基于 Redis 的凭据存储，适合多实例共享凭据。
//
// 同时实现 Locker：使用 redsync 互斥锁串行化跨进程的凭据刷新。
type RedisStore struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	opts   *storeOptions
}

// NewRedisStore 创建 Redis 存储。
func NewRedisStore(client redis.UniversalClient, opts ...Option) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisStore{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   applyOptions(opts),
	}, nil
}

// Get 实现 Store。
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.opts.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("xsession: redis get failed: %w", err)
	}
	return v, nil
}

// Set 实现 Store。
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if value == "" {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.opts.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("xsession: redis set failed: %w", err)
	}
	return nil
}

// Delete 实现 Store。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.opts.prefix+key).Err(); err != nil {
		return fmt.Errorf("xsession: redis delete failed: %w", err)
	}
	return nil
}

// Lock 实现 Locker。锁键为 {prefix}lock:{key}。
func (s *RedisStore) Lock(ctx context.Context, key string) (Unlocker, error) {
	mutex := s.rs.NewMutex(s.opts.prefix+"lock:"+key,
		redsync.WithExpiry(s.opts.lockTTL),
		redsync.WithTries(s.opts.lockTries),
		redsync.WithRetryDelay(s.opts.lockDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLockFailed, key, err)
	}
	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("xsession: unlock %s failed: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("xsession: unlock %s: lock expired", key)
		}
		return nil
	}, nil
}

// Client 返回底层 Redis 客户端。
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Locker = (*RedisStore)(nil)
)
