package xclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xwechat/pkg/observability/xmetrics"
	"github.com/omeyang/xwechat/pkg/storage/xsession"
)

// Purpose 凭据用途，决定存储键的后缀。
type Purpose string

const (
	PurposeAccessToken Purpose = "access_token"
	PurposeJSAPITicket Purpose = "jsapi_ticket"
	PurposeCardTicket  Purpose = "jsapi_card_ticket"
)

// Credential 一次获取得到的凭据。
type Credential struct {
	Value string
	// ExpiresIn 有效期（秒），<= 0 时按 DefaultExpiresIn 处理。
	ExpiresIn int64
}

// Fetcher 从远端获取某种用途的凭据。失败时不得返回部分结果。
type Fetcher func(ctx context.Context) (Credential, error)

// expiresAtSuffix 过期时间在存储中的键后缀，值为 Unix 秒。
const expiresAtSuffix = "_expires_at"

// mirrorEntry 本地过期时间镜像。value 记录镜像对应的是存储中的哪一份凭据；
// expiresAt 为零表示该值已被远端拒绝。
type mirrorEntry struct {
	value     string
	expiresAt time.Time
}

// =============================================================================
// TokenManager
// =============================================================================

// TokenManager 管理 access_token 与各类 ticket 的生命周期。
//
// 存储是凭据及其过期时间的唯一来源：凭据写在 {identity}_{purpose}，
// 过期时间（Unix 秒）写在 {identity}_{purpose}_expires_at。每次访问都从存储
// 重新载入过期时间到本地镜像，因此共享同一存储的实例对新鲜度的判断一致，
// 且不依赖存储自身的 TTL。
// 并发未命中通过 singleflight 合并为一次获取；存储实现 xsession.Locker 时，
// 跨进程的刷新也会被串行化。
type TokenManager struct {
	identity string
	store    xsession.Store
	locker   xsession.Locker
	margin   time.Duration
	mirror   *lru.Cache[string, mirrorEntry]

	mu       sync.RWMutex
	fetchers map[Purpose]Fetcher
	static   map[Purpose]string

	sf       singleflight.Group
	logger   *slog.Logger
	observer xmetrics.Observer
	now      func() time.Time
}

// TokenManagerConfig TokenManager 配置。
type TokenManagerConfig struct {
	// Identity 键的身份部分，通常为 AppID（设备账号为 AppID_Secret前10位）。
	Identity   string
	Store      xsession.Store
	Margin     time.Duration
	MirrorSize int
	Logger     *slog.Logger
	Observer   xmetrics.Observer
}

// NewTokenManager 创建 TokenManager。Identity 与 Store 必填。
func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	if cfg.Identity == "" {
		return nil, ErrMissingAppID
	}
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultRefreshMargin
	}
	if cfg.MirrorSize <= 0 {
		cfg.MirrorSize = DefaultMirrorSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = xmetrics.NoopObserver{}
	}

	mirror, err := lru.New[string, mirrorEntry](cfg.MirrorSize)
	if err != nil {
		return nil, fmt.Errorf("xclient: create expiry mirror failed: %w", err)
	}

	locker, _ := cfg.Store.(xsession.Locker)

	return &TokenManager{
		identity: cfg.Identity,
		store:    cfg.Store,
		locker:   locker,
		margin:   cfg.Margin,
		mirror:   mirror,
		fetchers: make(map[Purpose]Fetcher),
		static:   make(map[Purpose]string),
		logger:   cfg.Logger,
		observer: cfg.Observer,
		now:      time.Now,
	}, nil
}

// Register 注册某用途的获取函数，重复注册覆盖之前的。
func (m *TokenManager) Register(p Purpose, f Fetcher) {
	m.mu.Lock()
	m.fetchers[p] = f
	m.mu.Unlock()
}

// SetStatic 设置调用方预置的凭据。预置凭据没有过期时间，永不刷新。
func (m *TokenManager) SetStatic(p Purpose, value string) {
	m.mu.Lock()
	if value == "" {
		delete(m.static, p)
	} else {
		m.static[p] = value
	}
	m.mu.Unlock()
}

// IsStatic 判断某用途是否使用预置凭据。
func (m *TokenManager) IsStatic(p Purpose) bool {
	_, ok := m.staticValue(p)
	return ok
}

// Key 返回某用途在存储中的键：{identity}_{purpose}。
func (m *TokenManager) Key(p Purpose) string {
	return m.identity + "_" + string(p)
}

// Get 返回一个有效凭据。
//
// 存储中有值且记录的剩余有效期大于安全余量时直接返回，不访问网络；
// 值缺失、过期时间缺失或进入余量时同步获取新凭据。获取失败原样返回，不写入任何缓存。
func (m *TokenManager) Get(ctx context.Context, p Purpose) (value string, err error) {
	if v, ok := m.staticValue(p); ok {
		return v, nil
	}

	ctx, span := xmetrics.Start(ctx, m.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpGetToken,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(MetricsAttrPurpose, string(p))},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	key := m.Key(p)
	if v, fresh := m.lookup(ctx, key); fresh {
		return v, nil
	}
	return m.refresh(ctx, p, key, false)
}

// ForceRefresh 使本地镜像失效并无条件获取新凭据。
// 用于远端拒绝了一个本地认为有效的凭据之后。预置凭据直接返回，不刷新。
func (m *TokenManager) ForceRefresh(ctx context.Context, p Purpose) (value string, err error) {
	if v, ok := m.staticValue(p); ok {
		return v, nil
	}

	ctx, span := xmetrics.Start(ctx, m.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpRefreshToken,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(MetricsAttrPurpose, string(p))},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	key := m.Key(p)
	stale, _ := m.lookup(ctx, key)
	// 标记为已过期而不是删除：并发的 Get 会加入同一次刷新，而不是信任存储里被拒绝的值
	m.mirror.Add(key, mirrorEntry{value: stale})

	return m.refresh(ctx, p, key, true)
}

// Invalidate 删除存储中的凭据、过期时间与本地镜像。
func (m *TokenManager) Invalidate(ctx context.Context, p Purpose) error {
	key := m.Key(p)
	m.mirror.Remove(key)
	if err := m.store.Delete(ctx, key); err != nil {
		return err
	}
	return m.store.Delete(ctx, key+expiresAtSuffix)
}

// lookup 读取存储中的凭据与过期时间，载入本地镜像后按安全余量判断新鲜度。
// 没有记录过期时间的值视为过期。
func (m *TokenManager) lookup(ctx context.Context, key string) (string, bool) {
	v, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, xsession.ErrNotFound) {
			m.logger.Warn("xclient: credential store get failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}

	if entry, ok := m.mirror.Get(key); ok && entry.value == v && entry.expiresAt.IsZero() {
		return v, false
	}

	expiresAt, ok := m.loadExpiry(ctx, key)
	if !ok {
		m.mirror.Remove(key)
		return v, false
	}
	m.mirror.Add(key, mirrorEntry{value: v, expiresAt: expiresAt})
	return v, expiresAt.Sub(m.now()) > m.margin
}

func (m *TokenManager) loadExpiry(ctx context.Context, key string) (time.Time, bool) {
	raw, err := m.store.Get(ctx, key+expiresAtSuffix)
	if err != nil {
		if !errors.Is(err, xsession.ErrNotFound) {
			m.logger.Warn("xclient: credential expiry get failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sec <= 0 {
		m.logger.Warn("xclient: credential expiry malformed",
			slog.String("key", key),
			slog.String("value", raw),
		)
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// refresh 合并同一键的并发获取。stale 为触发刷新时看到的旧值，
// 拿到分布式锁后若存储中的值已变化，说明其他进程刚刷新过，直接采用。
func (m *TokenManager) refresh(ctx context.Context, p Purpose, key string, force bool) (string, error) {
	v, err, _ := m.sf.Do(key, func() (any, error) {
		stale, fresh := m.lookup(ctx, key)
		if fresh && !force {
			return stale, nil
		}

		if m.locker != nil {
			unlock, err := m.locker.Lock(ctx, key)
			if err != nil {
				m.logger.Warn("xclient: credential lock failed, refreshing without lock",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			} else {
				defer func() {
					if err := unlock(context.WithoutCancel(ctx)); err != nil {
						m.logger.Warn("xclient: credential unlock failed",
							slog.String("key", key),
							slog.String("error", err.Error()),
						)
					}
				}()
				if cur, err := m.store.Get(ctx, key); err == nil && cur != stale {
					m.mirror.Remove(key)
					m.logger.Debug("xclient: credential refreshed by another holder",
						slog.String("key", key),
					)
					return cur, nil
				}
			}
		}

		return m.fetch(ctx, p, key)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil //nolint:forcetypeassert // 成功时只返回 string
}

func (m *TokenManager) fetch(ctx context.Context, p Purpose, key string) (string, error) {
	m.mu.RLock()
	f := m.fetchers[p]
	m.mu.RUnlock()
	if f == nil {
		return "", fmt.Errorf("%w: %s", ErrNoFetcher, p)
	}

	cred, err := f(ctx)
	if err != nil {
		return "", err
	}
	if cred.Value == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyCredential, p)
	}
	if cred.ExpiresIn <= 0 {
		cred.ExpiresIn = DefaultExpiresIn
	}

	ttl := time.Duration(cred.ExpiresIn) * time.Second
	expiresAt := m.now().Add(ttl)
	// 先写凭据再写过期时间：读者在两次写之间看到的是新值配旧过期时间，最多多刷新一次
	if err := m.store.Set(ctx, key, cred.Value, ttl); err != nil {
		m.logger.Warn("xclient: credential store set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	} else if err := m.store.Set(ctx, key+expiresAtSuffix, strconv.FormatInt(expiresAt.Unix(), 10), ttl); err != nil {
		m.logger.Warn("xclient: credential expiry set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	m.mirror.Add(key, mirrorEntry{value: cred.Value, expiresAt: expiresAt})

	m.logger.Debug("xclient: credential fetched",
		slog.String("key", key),
		slog.Int64("expires_in", cred.ExpiresIn),
	)
	return cred.Value, nil
}

func (m *TokenManager) staticValue(p Purpose) (string, bool) {
	m.mu.RLock()
	v, ok := m.static[p]
	m.mu.RUnlock()
	return v, ok
}
