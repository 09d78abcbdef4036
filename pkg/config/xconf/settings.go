package xconf

import (
	"fmt"
	"strings"
	"time"

	"github.com/omeyang/xwechat/pkg/observability/xlog"
	"github.com/omeyang/xwechat/pkg/wechat/xclient"
)

// 存储驱动。
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverEtcd   = "etcd"
)

// Settings 完整配置。
type Settings struct {
	App        AppSettings        `koanf:"app"`
	Store      StoreSettings      `koanf:"store"`
	Log        LogSettings        `koanf:"log"`
	Server     ServerSettings     `koanf:"server"`
	Resilience ResilienceSettings `koanf:"resilience"`
}

// AppSettings 公众号账号与 API 访问配置。
type AppSettings struct {
	AppID         string        `koanf:"appid"`
	Secret        string        `koanf:"secret"`
	AccessToken   string        `koanf:"access_token"`
	DeviceAccount bool          `koanf:"device_account"`
	BaseURL       string        `koanf:"base_url"`
	AllowInsecure bool          `koanf:"allow_insecure"`
	Timeout       time.Duration `koanf:"timeout"`
	RefreshMargin time.Duration `koanf:"refresh_margin"`
	// Token 回调 URL 签名使用的令牌，与 access_token 无关。
	Token string `koanf:"token"`
}

// StoreSettings 凭据存储配置。
type StoreSettings struct {
	Driver string        `koanf:"driver"`
	Prefix string        `koanf:"prefix"`
	Redis  RedisSettings `koanf:"redis"`
	Etcd   EtcdSettings  `koanf:"etcd"`
}

// RedisSettings Redis 连接配置。
type RedisSettings struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// EtcdSettings etcd 连接配置。
type EtcdSettings struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// LogSettings 日志配置。File 为空时输出到 stderr。
type LogSettings struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// ServerSettings 回调服务配置。
type ServerSettings struct {
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
	Metrics string `koanf:"metrics"`
	// Allowlist 为 true 时只接受微信回调 IP 段发来的请求。
	Allowlist bool `koanf:"allowlist"`
	// Prewarm 凭据预热的 cron 表达式，空表示不预热。
	Prewarm  string        `koanf:"prewarm"`
	DedupTTL time.Duration `koanf:"dedup_ttl"`
	Dedup    int           `koanf:"dedup_size"`
}

// ResilienceSettings 熔断与限流配置。
type ResilienceSettings struct {
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
	// RatePerMinute 每个 appid+接口每分钟允许的调用数，0 表示不限流。
	RatePerMinute int `koanf:"rate_per_minute"`
}

// ApplyDefaults 填充未设置的字段。
func (s *Settings) ApplyDefaults() {
	if s.Store.Driver == "" {
		s.Store.Driver = DriverMemory
	}
	s.Store.Driver = strings.ToLower(s.Store.Driver)
	if s.Store.Etcd.DialTimeout <= 0 {
		s.Store.Etcd.DialTimeout = 5 * time.Second
	}
	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
	if s.Log.Format == "" {
		s.Log.Format = "text"
	}
	if s.Server.Addr == "" {
		s.Server.Addr = ":8080"
	}
	if s.Server.Path == "" {
		s.Server.Path = "/wechat"
	}
	if s.Server.Metrics == "" {
		s.Server.Metrics = "/metrics"
	}
}

// Validate 校验配置，调用前应先 ApplyDefaults。
func (s *Settings) Validate() error {
	if s.App.AppID == "" {
		return fmt.Errorf("%w: app.appid is required", ErrInvalidSettings)
	}
	switch s.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if s.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required", ErrInvalidSettings)
		}
	case DriverEtcd:
		if len(s.Store.Etcd.Endpoints) == 0 {
			return fmt.Errorf("%w: store.etcd.endpoints is required", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidSettings, s.Store.Driver)
	}
	if _, err := xlog.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if s.Resilience.RatePerMinute < 0 {
		return fmt.Errorf("%w: resilience.rate_per_minute must not be negative", ErrInvalidSettings)
	}
	return nil
}

// ClientConfig 转换为客户端配置。
func (s *Settings) ClientConfig() *xclient.Config {
	return &xclient.Config{
		AppID:         s.App.AppID,
		Secret:        s.App.Secret,
		AccessToken:   s.App.AccessToken,
		DeviceAccount: s.App.DeviceAccount,
		BaseURL:       s.App.BaseURL,
		AllowInsecure: s.App.AllowInsecure,
		Timeout:       s.App.Timeout,
		RefreshMargin: s.App.RefreshMargin,
	}
}

// Breaker 返回熔断配置，未配置失败阈值时返回 nil。
func (s *Settings) Breaker() *xclient.BreakerConfig {
	if s.Resilience.BreakerFailures == 0 {
		return nil
	}
	return &xclient.BreakerConfig{
		ConsecutiveFailures: s.Resilience.BreakerFailures,
		OpenTimeout:         s.Resilience.BreakerTimeout,
	}
}

// Rotation 返回日志轮转配置。
func (s *Settings) Rotation() xlog.RotateConfig {
	return xlog.RotateConfig{
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
		MaxAgeDays: s.Log.MaxAgeDays,
		Compress:   s.Log.Compress,
	}
}
