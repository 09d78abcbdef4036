package xclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	// maxResponseSize 最大响应体大小（10MB）。
	maxResponseSize = 10 * 1024 * 1024

	contentTypeJSON = "application/json; charset=utf-8"
)

// =============================================================================
// transport
// =============================================================================

// httpReply 一次成功往返（2xx）的结果，响应体已读取并关闭。
type httpReply struct {
	req  *http.Request
	resp *http.Response
	body []byte
}

// transport 负责 URL 拼接、超时、熔断与响应读取，不理解业务状态码。
type transport struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*httpReply]
}

func newTransport(cfg *Config, o *Options) *transport {
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	t := &transport{
		client:  client,
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
	}
	if o.Breaker != nil {
		t.breaker = newBreaker(cfg.AppID, *o.Breaker)
	}
	return t
}

func newBreaker(name string, bc BreakerConfig) *gobreaker.CircuitBreaker[*httpReply] {
	if bc.ConsecutiveFailures == 0 {
		bc.ConsecutiveFailures = 5
	}
	if bc.OpenTimeout <= 0 {
		bc.OpenTimeout = 30 * time.Second
	}
	if bc.HalfOpenRequests == 0 {
		bc.HalfOpenRequests = 1
	}
	return gobreaker.NewCircuitBreaker[*httpReply](gobreaker.Settings{
		Name:        "xclient:" + name,
		MaxRequests: bc.HalfOpenRequests,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.ConsecutiveFailures
		},
	})
}

// resolveURL 绝对 URL 原样使用，否则拼接 baseURL；query 合并进已有查询串。
func (t *transport) resolveURL(target string, query url.Values) (string, error) {
	full := target
	if !isAbsoluteURL(target) {
		full = t.baseURL + strings.TrimPrefix(target, "/")
	}
	if len(query) == 0 {
		return full, nil
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("xclient: invalid url %q: %w", sanitizeURL(full), err)
	}
	q := u.Query()
	for k, vs := range query {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// do 执行一次 HTTP 调用。启用熔断时，传输失败计入熔断统计。
func (t *transport) do(ctx context.Context, method, target string, body []byte, contentType string) (*httpReply, error) {
	if t.breaker == nil {
		return t.roundTrip(ctx, method, target, body, contentType)
	}
	reply, err := t.breaker.Execute(func() (*httpReply, error) {
		return t.roundTrip(ctx, method, target, body, contentType)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ClientError{Kind: KindTransport, Err: err}
	}
	return reply, err
}

func (t *transport) roundTrip(ctx context.Context, method, target string, body []byte, contentType string) (*httpReply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("xclient: create request failed: %w", redactURLError(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &ClientError{Kind: KindTransport, Request: req, Err: redactURLError(err)}
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // 响应已读完，Close 错误无处传播

	lr := &io.LimitedReader{R: resp.Body, N: maxResponseSize + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, &ClientError{Kind: KindTransport, Request: req, Response: resp, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) > maxResponseSize {
		return nil, &ClientError{Kind: KindTransport, Request: req, Response: resp,
			Err: fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, maxResponseSize)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ClientError{Kind: KindTransport, Request: req, Response: resp, Body: data}
	}
	return &httpReply{req: req, resp: resp, body: data}, nil
}

// encodeBody 把请求体编码为字节。
//   - nil: 无请求体
//   - []byte / string: 原样发送
//   - io.Reader: 读取全部内容，便于重试时重发
//   - 其他: JSON 编码，不转义非 ASCII 字符与 HTML 字符
func encodeBody(body any) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return v, contentTypeJSON, nil
	case string:
		return []byte(v), contentTypeJSON, nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, "", fmt.Errorf("xclient: read request body failed: %w", err)
		}
		return data, contentTypeJSON, nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, "", fmt.Errorf("xclient: marshal request body failed: %w", err)
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), contentTypeJSON, nil
	}
}

// isAbsoluteURL 判断是否为绝对 URL（scheme 大小写不敏感）。
func isAbsoluteURL(path string) bool {
	if len(path) >= 8 && strings.EqualFold(path[:8], "https://") {
		return true
	}
	return len(path) >= 7 && strings.EqualFold(path[:7], "http://")
}

// hasAccessToken 判断目标 URL 自身是否已带 access_token。
func hasAccessToken(target string) bool {
	_, rawQuery, ok := strings.Cut(target, "?")
	if !ok {
		return false
	}
	q, err := url.ParseQuery(rawQuery)
	return err == nil && q.Get("access_token") != ""
}

// sanitizeURL 去掉查询串，避免 access_token/secret 进入日志与指标。
func sanitizeURL(rawURL string) string {
	if path, _, found := strings.Cut(rawURL, "?"); found {
		return path
	}
	return rawURL
}

func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = sanitizeURL(ue.URL)
	}
	return err
}
