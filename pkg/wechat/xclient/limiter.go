package xclient

import (
	"context"
	"fmt"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter 客户端侧调用配额。
//
// 微信接口按 AppID + 接口维度计日调用量，超出后返回 45009。
// 在客户端先行限流可以把配额留给更重要的调用。
// Allow 返回包装了 ErrQuotaExceeded 的错误表示配额耗尽；
// 其他错误视为限流器不可用，调用照常放行。
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// RedisLimiter 基于 redis_rate（GCRA）的分布式配额，多实例共享计数。
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter 创建分布式限流器，例如 NewRedisLimiter(rdb, redis_rate.PerMinute(600))。
func NewRedisLimiter(rdb redis.UniversalClient, limit redis_rate.Limit) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   limit,
		prefix:  "xwechat:quota:",
	}
}

// Allow 实现 Limiter。
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		return fmt.Errorf("xclient: limiter unavailable: %w", err)
	}
	if res.Allowed == 0 {
		return fmt.Errorf("%w: %s, retry after %s", ErrQuotaExceeded, key, res.RetryAfter)
	}
	return nil
}

// Reset 清空某个键的计数。
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.limiter.Reset(ctx, l.prefix+key)
}

var _ Limiter = (*RedisLimiter)(nil)
