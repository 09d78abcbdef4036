package xclient

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// 默认值
// =============================================================================

const (
	// DefaultBaseURL 公众号 API 基础地址。
	DefaultBaseURL = "https://api.weixin.qq.com/cgi-bin/"

	// DefaultTimeout 单次 HTTP 调用超时。
	DefaultTimeout = 10 * time.Second

	// DefaultRefreshMargin 凭据剩余有效期低于此值即视为过期。
	DefaultRefreshMargin = 60 * time.Second

	// DefaultExpiresIn 远端未返回 expires_in 时使用的有效期（秒）。
	DefaultExpiresIn = 7200

	// DefaultMirrorSize 本地过期时间镜像的最大条目数。
	DefaultMirrorSize = 256
)

// =============================================================================
// API 路径
// =============================================================================

//nolint:gosec // G101: 路径常量，不是凭据
const (
	PathToken         = "token"
	PathTicket        = "ticket/getticket"
	PathMenuGet       = "menu/get"
	PathMenuCreate    = "menu/create"
	PathMenuDelete    = "menu/delete"
	PathCallbackIP    = "getcallbackip"
	grantTypeClientCC = "client_credential"
)

// =============================================================================
// Config
// =============================================================================

// Config 客户端配置。
type Config struct {
	// AppID 公众号/小程序 AppID（必填）。
	AppID string

	// Secret AppSecret。未设置 AccessToken 时必填。
	Secret string

	// AccessToken 预置的 access_token。
	// 设置后客户端始终使用它，不会自动获取或刷新。
	AccessToken string

	// DeviceAccount 设备（IoT）类账号。
	// 这类账号的凭据键包含 Secret 前 10 位，同一 AppID 下不同密钥互不覆盖。
	DeviceAccount bool

	// BaseURL API 基础地址，默认 DefaultBaseURL。
	BaseURL string

	// AllowInsecure 允许 http:// 的 BaseURL，仅用于测试。
	AllowInsecure bool

	// Timeout 单次 HTTP 调用超时，默认 10 秒。
	Timeout time.Duration

	// RefreshMargin 凭据过期安全余量，默认 60 秒。
	RefreshMargin time.Duration
}

// Clone 返回配置副本。
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ApplyDefaults 填充未设置的字段。
func (c *Config) ApplyDefaults() {
	c.AppID = strings.TrimSpace(c.AppID)
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
}

// Validate 校验配置。
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.AppID == "" {
		return ErrMissingAppID
	}
	if c.Secret == "" && c.AccessToken == "" {
		return ErrMissingSecret
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}
	if u.Scheme == "http" && !c.AllowInsecure {
		return ErrInsecureBaseURL
	}
	return nil
}

// identity 凭据键的身份部分。
func (c *Config) identity() string {
	if !c.DeviceAccount {
		return c.AppID
	}
	secret := c.Secret
	if len(secret) > 10 {
		secret = secret[:10]
	}
	return c.AppID + "_" + secret
}
