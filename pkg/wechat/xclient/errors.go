package xclient

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// 配置相关错误
// =============================================================================

var (
	// ErrNilConfig 表示配置为 nil。
	ErrNilConfig = errors.New("xclient: nil config")

	// ErrMissingAppID 表示缺少 AppID。
	ErrMissingAppID = errors.New("xclient: missing app id")

	// ErrMissingSecret 表示既没有 Secret 也没有预置 AccessToken。
	ErrMissingSecret = errors.New("xclient: missing secret or access token")

	// ErrInvalidBaseURL 表示 BaseURL 格式无效。
	ErrInvalidBaseURL = errors.New("xclient: invalid base url")

	// ErrInsecureBaseURL 表示 BaseURL 未使用 HTTPS。
	ErrInsecureBaseURL = errors.New("xclient: base url must use https")
)

// =============================================================================
// 运行时错误
// =============================================================================

var (
	// ErrClientClosed 表示客户端已关闭。
	ErrClientClosed = errors.New("xclient: client closed")

	// ErrNilRequest 表示请求为 nil。
	ErrNilRequest = errors.New("xclient: nil request")

	// ErrNoFetcher 表示凭据用途没有注册获取函数。
	ErrNoFetcher = errors.New("xclient: no fetcher registered for purpose")

	// ErrEmptyCredential 表示远端返回了空凭据。
	ErrEmptyCredential = errors.New("xclient: empty credential in response")

	// ErrResponseTooLarge 表示响应体超过上限。
	ErrResponseTooLarge = errors.New("xclient: response too large")

	// ErrQuotaExceeded 表示本地调用配额耗尽（客户端限流）。
	ErrQuotaExceeded = errors.New("xclient: local quota exceeded")

	// ErrMalformedErrcode 表示响应中的 errcode 存在但不是整数。
	ErrMalformedErrcode = errors.New("xclient: malformed errcode")

	// ErrMalformedIPList 表示回调 IP 接口的 ip_list 缺失或不是数组。
	ErrMalformedIPList = errors.New("xclient: ip_list missing or malformed")
)

// =============================================================================
// 分类错误
// =============================================================================

// 以下哨兵错误与 Kind 一一对应，可配合 errors.Is 判断 ClientError 的类别。
var (
	ErrTransport         = errors.New("xclient: transport error")
	ErrCredentialExpired = errors.New("xclient: credential expired")
	ErrRateLimited       = errors.New("xclient: rate limited")
	ErrRemote            = errors.New("xclient: remote error")
)

// ClientError 所有未恢复的远端/传输失败都以 ClientError 返回。
//
// 远端错误保留原始 errcode/errmsg；Request/Response 用于诊断，
// Response.Body 已被读取并关闭，原始内容见 Body。
type ClientError struct {
	Kind     Kind
	Code     int
	Message  string
	Request  *http.Request
	Response *http.Response
	Body     []byte
	Err      error
}

// Error 实现 error 接口。
func (e *ClientError) Error() string {
	switch {
	case e.Kind == KindTransport && e.Err != nil:
		return fmt.Sprintf("xclient: transport error: %v", e.Err)
	case e.Kind == KindTransport && e.Response != nil:
		return fmt.Sprintf("xclient: transport error: http status %d", e.Response.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("xclient: %s: errcode=%d errmsg=%s: %v", e.Kind, e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("xclient: %s: errcode=%d errmsg=%s", e.Kind, e.Code, e.Message)
	}
}

// Unwrap 返回底层错误。
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is 将 Kind 映射到对应的哨兵错误。
func (e *ClientError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrCredentialExpired:
		return e.Kind == KindCredentialExpired
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrRemote:
		return e.Kind == KindRemote
	}
	return false
}

// IsCredentialExpired 判断错误是否为凭据失效。
func IsCredentialExpired(err error) bool {
	return errors.Is(err, ErrCredentialExpired)
}

// IsRateLimited 判断错误是否为限流（远端 45009 或本地配额耗尽）。
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Code 提取错误中的远端 errcode，非 ClientError 返回 0。
func Code(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

// ErrNilStore 表示凭据存储为 nil。
var ErrNilStore = errors.New("xclient: nil credential store")
