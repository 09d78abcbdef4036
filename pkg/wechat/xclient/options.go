package xclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/omeyang/xwechat/pkg/observability/xmetrics"
	"github.com/omeyang/xwechat/pkg/storage/xsession"
)

// Options 客户端可选配置。
type Options struct {
	// Store 凭据存储，多个客户端共享同一 Store 即共享凭据。
	// 为空时创建进程内 MemoryStore，并在 Close 时关闭。
	Store xsession.Store

	// HTTPClient 自定义 HTTP 客户端。
	HTTPClient *http.Client

	// Logger 为空时使用 slog.Default()。
	Logger *slog.Logger

	// Observer 为空时不做观测。
	Observer xmetrics.Observer

	// Classifier errcode 分类器，为空时使用 DefaultClassifier()。
	Classifier *Classifier

	// Normalizers 响应规整步骤，默认只展开 base_resp。
	Normalizers []Normalizer

	// Limiter 客户端侧调用配额。
	Limiter Limiter

	// Breaker 传输层熔断配置，为 nil 时不启用。
	Breaker *BreakerConfig

	// MirrorSize 本地过期时间镜像容量。
	MirrorSize int
}

// BreakerConfig 熔断配置。
type BreakerConfig struct {
	// ConsecutiveFailures 连续传输失败达到此次数后熔断，默认 5。
	ConsecutiveFailures uint32
	// OpenTimeout 熔断后进入半开状态的等待时间，默认 30 秒。
	OpenTimeout time.Duration
	// HalfOpenRequests 半开状态允许通过的请求数，默认 1。
	HalfOpenRequests uint32
}

// Option 配置函数。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Logger:     slog.Default(),
		Observer:   xmetrics.NoopObserver{},
		MirrorSize: DefaultMirrorSize,
	}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithStore 设置凭据存储。
func WithStore(store xsession.Store) Option {
	return func(o *Options) {
		if store != nil {
			o.Store = store
		}
	}
}

// WithHTTPClient 设置 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		if client != nil {
			o.HTTPClient = client
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithObserver 设置观测后端。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithClassifier 设置 errcode 分类器。
func WithClassifier(c *Classifier) Option {
	return func(o *Options) {
		if c != nil {
			o.Classifier = c
		}
	}
}

// WithNormalizers 替换默认的响应规整步骤。
// 需要保留 base_resp 展开时请显式传入 FlattenBaseResp。
func WithNormalizers(normalizers ...Normalizer) Option {
	return func(o *Options) {
		o.Normalizers = normalizers
	}
}

// WithLimiter 设置客户端侧调用配额。
func WithLimiter(l Limiter) Option {
	return func(o *Options) {
		if l != nil {
			o.Limiter = l
		}
	}
}

// WithCircuitBreaker 启用传输层熔断。
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(o *Options) {
		o.Breaker = &cfg
	}
}

// WithMirrorSize 设置本地过期时间镜像容量。
func WithMirrorSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MirrorSize = n
		}
	}
}
