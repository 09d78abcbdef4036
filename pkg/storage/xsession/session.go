package xsession

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	// ErrNotFound 表示键不存在或已过期。
	ErrNotFound = errors.New("xsession: key not found")

	// ErrNilClient 表示传入的后端客户端为 nil。
	ErrNilClient = errors.New("xsession: nil client")

	// ErrClosed 表示存储已关闭。
	ErrClosed = errors.New("xsession: store closed")

	// ErrSetRejected 表示写入被缓存的准入策略丢弃。
	ErrSetRejected = errors.New("xsession: set rejected")

	// ErrLockFailed 表示获取分布式锁失败。
	ErrLockFailed = errors.New("xsession: failed to acquire lock")
)

// DefaultKeyPrefix 默认的键前缀。
const DefaultKeyPrefix = "xwechat:"

// =============================================================================
// 接口定义
// =============================================================================

// Store 凭据存储接口。
//
// 实现必须是并发安全的。
type Store interface {
	// Get 获取键对应的值，不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) (string, error)

	// Set 写入键值。value 为空时不做任何事。
	// ttl <= 0 表示不过期。
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete 删除键，键不存在不视为错误。
	Delete(ctx context.Context, key string) error
}

// Unlocker 释放锁的函数。
type Unlocker func(ctx context.Context) error

// Locker 可选接口：支持跨进程互斥的存储实现它。
//
// TokenManager 在刷新凭据前会尝试获取锁，避免多个进程同时刷新同一个键。
type Locker interface {
	Lock(ctx context.Context, key string) (Unlocker, error)
}

// =============================================================================
// 通用选项
// =============================================================================

type storeOptions struct {
	prefix    string
	lockTTL   time.Duration
	lockTries int
	lockDelay time.Duration
}

// Option 存储配置选项。
type Option func(*storeOptions)

func defaultStoreOptions() *storeOptions {
	return &storeOptions{
		prefix:    DefaultKeyPrefix,
		lockTTL:   10 * time.Second,
		lockTries: 32,
		lockDelay: 100 * time.Millisecond,
	}
}

func applyOptions(opts []Option) *storeOptions {
	o := defaultStoreOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithKeyPrefix 设置键前缀，空字符串表示不加前缀。
func WithKeyPrefix(prefix string) Option {
	return func(o *storeOptions) {
		o.prefix = prefix
	}
}

// WithLockExpiry 设置分布式锁的最长持有时间。
// 仅对实现了 Locker 的存储生效。
func WithLockExpiry(ttl time.Duration) Option {
	return func(o *storeOptions) {
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

// WithLockRetry 设置获取锁的尝试次数与间隔。
func WithLockRetry(tries int, delay time.Duration) Option {
	return func(o *storeOptions) {
		if tries > 0 {
			o.lockTries = tries
		}
		if delay > 0 {
			o.lockDelay = delay
		}
	}
}
