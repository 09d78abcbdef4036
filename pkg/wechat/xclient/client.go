package xclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/omeyang/xwechat/pkg/storage/xsession"
)

// Client 公众号 API 客户端。
//
// 各接口组以显式字段组合，共享同一个 Pipeline：
//
//	c, err := xclient.New(&xclient.Config{AppID: "wx...", Secret: "..."},
//		xclient.WithStore(redisStore))
//	menu, err := c.Menu.Get(ctx)
type Client struct {
	config   *Config
	pipeline *Pipeline
	tokens   *TokenManager
	logger   *slog.Logger
	owned    io.Closer
	closed   atomic.Bool

	Menu  *Menu
	JSAPI *JSAPI
	Misc  *Misc
}

// New 创建客户端。
func New(cfg *Config, opts ...Option) (*Client, error) {
	cfg, err := prepareConfig(cfg)
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	store := o.Store
	var owned io.Closer
	if store == nil {
		mem, err := xsession.NewMemoryStore(nil)
		if err != nil {
			return nil, err
		}
		store, owned = mem, mem
	}

	tokens, err := NewTokenManager(TokenManagerConfig{
		Identity:   cfg.identity(),
		Store:      store,
		Margin:     cfg.RefreshMargin,
		MirrorSize: o.MirrorSize,
		Logger:     o.Logger,
		Observer:   o.Observer,
	})
	if err != nil {
		if owned != nil {
			_ = owned.Close() //nolint:errcheck // 构造失败路径
		}
		return nil, err
	}

	classifier := o.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	normalizers := o.Normalizers
	if normalizers == nil {
		normalizers = []Normalizer{FlattenBaseResp}
	}

	p := &Pipeline{
		appID:       cfg.AppID,
		transport:   newTransport(cfg, o),
		tokens:      tokens,
		classifier:  classifier,
		normalizers: normalizers,
		limiter:     o.Limiter,
		logger:      o.Logger,
		observer:    o.Observer,
	}

	c := &Client{
		config:   cfg,
		pipeline: p,
		tokens:   tokens,
		logger:   o.Logger,
		owned:    owned,
		Menu:     &Menu{p: p},
		JSAPI:    newJSAPI(cfg.AppID, p),
		Misc:     &Misc{p: p},
	}

	if cfg.AccessToken != "" {
		tokens.SetStatic(PurposeAccessToken, cfg.AccessToken)
	} else {
		tokens.Register(PurposeAccessToken, c.fetchAccessToken)
	}
	return c, nil
}

func prepareConfig(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	cfg = cfg.Clone()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("xclient: invalid config: %w", err)
	}
	return cfg, nil
}

// fetchAccessToken 调用 token 接口获取 access_token。
func (c *Client) fetchAccessToken(ctx context.Context) (Credential, error) {
	res, err := c.pipeline.Call(ctx, &Request{
		Method:  http.MethodGet,
		URL:     PathToken,
		NoToken: true,
		Query: url.Values{
			"grant_type": {grantTypeClientCC},
			"appid":      {c.config.AppID},
			"secret":     {c.config.Secret},
		},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("xclient: fetch access token: %w", err)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := res.Decode(&body); err != nil {
		return Credential{}, err
	}
	return Credential{Value: body.AccessToken, ExpiresIn: body.ExpiresIn}, nil
}

// AppID 返回 AppID。
func (c *Client) AppID() string {
	return c.config.AppID
}

// Pipeline 返回共享的调用管线，供自定义接口组使用。
func (c *Client) Pipeline() *Pipeline {
	return c.pipeline
}

// Tokens 返回凭据管理器。
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// AccessToken 返回当前有效的 access_token。
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}
	return c.tokens.Get(ctx, PurposeAccessToken)
}

// Call 见 Pipeline.Call。
func (c *Client) Call(ctx context.Context, req *Request) (*Result, error) {
	return c.pipeline.Call(ctx, req)
}

// Get 见 Pipeline.Get。
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Result, error) {
	return c.pipeline.Get(ctx, path, query)
}

// Post 见 Pipeline.Post。
func (c *Client) Post(ctx context.Context, path string, body any) (*Result, error) {
	return c.pipeline.Post(ctx, path, body)
}

// Close 关闭客户端；自动创建的内存存储一并关闭。重复调用安全。
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.pipeline.close()
	c.logger.Debug("xclient: client closed", slog.String("appid", c.config.AppID))
	if c.owned != nil {
		return c.owned.Close()
	}
	return nil
}
