package xclient

import (
	"strconv"
	"sync"
)

// 常用 errcode。
const (
	CodeOK                 = 0
	CodeInvalidCredential  = 40001
	CodeInvalidAccessToken = 40014
	CodeAccessTokenExpired = 42001
	CodeAPIFreqOutOfLimit  = 45009
	CodeMenuNotFound       = 46003
)

// Kind 错误类别。
type Kind int

const (
	// KindNone 表示成功，不是错误。
	KindNone Kind = iota
	// KindTransport 连接失败、超时或非 2xx 状态码，不自动重试。
	KindTransport
	// KindCredentialExpired 凭据失效，强制刷新后重试一次。
	KindCredentialExpired
	// KindRateLimited 被限流，直接返回，不重试。
	KindRateLimited
	// KindRemote 其他非零 errcode。
	KindRemote
)

// String 返回类别名称。
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindTransport:
		return "transport"
	case KindCredentialExpired:
		return "credential_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindRemote:
		return "remote"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Classifier 表驱动的 errcode 分类器，并发安全。
type Classifier struct {
	mu    sync.RWMutex
	table map[int]Kind
}

// NewClassifier 使用给定映射创建分类器。映射会被复制。
func NewClassifier(table map[int]Kind) *Classifier {
	c := &Classifier{table: make(map[int]Kind, len(table))}
	for code, kind := range table {
		c.table[code] = kind
	}
	return c
}

// DefaultClassifier 返回内置映射的新分类器实例：
// 40001/40014/42001 为凭据失效，45009 为限流。
func DefaultClassifier() *Classifier {
	return NewClassifier(map[int]Kind{
		CodeInvalidCredential:  KindCredentialExpired,
		CodeInvalidAccessToken: KindCredentialExpired,
		CodeAccessTokenExpired: KindCredentialExpired,
		CodeAPIFreqOutOfLimit:  KindRateLimited,
	})
}

// Register 新增或覆盖一个 errcode 的类别。
// 注册为 KindNone 的 errcode 视为成功。
func (c *Classifier) Register(code int, kind Kind) {
	c.mu.Lock()
	c.table[code] = kind
	c.mu.Unlock()
}

// Classify 0 返回 KindNone；表中存在返回对应类别；其余非零返回 KindRemote。
func (c *Classifier) Classify(code int) Kind {
	if code == CodeOK {
		return KindNone
	}
	c.mu.RLock()
	kind, ok := c.table[code]
	c.mu.RUnlock()
	if !ok {
		return KindRemote
	}
	return kind
}
