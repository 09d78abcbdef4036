package xsession

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// =============================================================================
// MemoryStore 进程内存储
// =============================================================================

// MemoryStore 基于 ristretto 的进程内凭据存储。
//
// ristretto 的写入是异步的，Set 内部会调用 Wait，保证写入后立即可读。
type MemoryStore struct {
	cache  *ristretto.Cache[string, string]
	prefix string
	closed atomic.Bool
}

// MemoryOptions 内存存储的容量配置。
type MemoryOptions struct {
	// NumCounters 频率计数器数量，建议为预期键数量的 10 倍。默认 1e4。
	NumCounters int64
	// MaxCost 最大容量（字节）。默认 16MB。
	MaxCost int64
	// BufferItems 写缓冲大小。默认 64。
	BufferItems int64
}

// NewMemoryStore 创建内存存储。mo 为 nil 时使用默认容量。
func NewMemoryStore(mo *MemoryOptions, opts ...Option) (*MemoryStore, error) {
	o := applyOptions(opts)

	cfg := &ristretto.Config[string, string]{
		NumCounters:        1e4,
		MaxCost:            16 << 20,
		BufferItems:        64,
		IgnoreInternalCost: true,
	}
	if mo != nil {
		if mo.NumCounters > 0 {
			cfg.NumCounters = mo.NumCounters
		}
		if mo.MaxCost > 0 {
			cfg.MaxCost = mo.MaxCost
		}
		if mo.BufferItems > 0 {
			cfg.BufferItems = mo.BufferItems
		}
	}

	cache, err := ristretto.NewCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("xsession: create memory cache failed: %w", err)
	}
	return &MemoryStore{cache: cache, prefix: o.prefix}, nil
}

// Get 实现 Store。
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	v, ok := s.cache.Get(s.prefix + key)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set 实现 Store。
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if value == "" {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	if !s.cache.SetWithTTL(s.prefix+key, value, int64(len(value)), ttl) {
		return ErrSetRejected
	}
	s.cache.Wait()
	return nil
}

// Delete 实现 Store。
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.cache.Del(s.prefix + key)
	return nil
}

// Close 关闭存储并释放 ristretto 的后台协程。重复调用安全。
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cache.Close()
	return nil
}

var _ Store = (*MemoryStore)(nil)
