package xclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/omeyang/xwechat/pkg/observability/xmetrics"
)

// maxAttempts 首次调用加一次凭据刷新后的重试。
const maxAttempts = 2

// Request 一次 API 调用。分发后不会被修改。
type Request struct {
	// Method 为空时：有 Body 用 POST，否则 GET。
	Method string

	// URL 相对路径（拼接 BaseURL）或绝对 URL。
	URL string

	// Query 查询参数。已包含 access_token 时不再附加。
	Query url.Values

	// Body 请求体，见 encodeBody。
	Body any

	// NoToken 不附加 access_token（如获取 token 本身）。
	NoToken bool

	// Normalizers 非 nil 时替换客户端默认的规整步骤。
	Normalizers []Normalizer

	// PostProcess 成功后对响应做变换，结果放入 Result.Value。
	PostProcess PostProcessor
}

// PostProcessor 把成功的 JSON 响应变换为领域值。应为纯函数。
type PostProcessor func(data map[string]any) (any, error)

// Result 一次调用的结果。
type Result struct {
	// Raw 原始响应体。
	Raw []byte

	// Data 响应为 JSON 对象时的解码结果，errcode 已规整为 int；否则为 nil。
	Data map[string]any

	// Value PostProcess 的输出。
	Value any

	StatusCode int
	Header     http.Header
}

// IsJSON 响应是否为 JSON 对象。
func (r *Result) IsJSON() bool {
	return r != nil && r.Data != nil
}

// Decode 把原始响应体解码到 v。
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("xclient: decode response failed: %w", err)
	}
	return nil
}

// DecodeInto 把结果解码为 T。
func DecodeInto[T any](res *Result) (T, error) {
	var v T
	if res == nil {
		return v, ErrNilRequest
	}
	err := res.Decode(&v)
	return v, err
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline 构造、发送并解释带认证的 API 调用。
//
// 凭据失效（见 Classifier）时强制刷新 access_token 并重发一次，
// 第二次仍失败则返回错误；限流与其他错误直接返回，不重试。
type Pipeline struct {
	appID       string
	transport   *transport
	tokens      *TokenManager
	classifier  *Classifier
	normalizers []Normalizer
	limiter     Limiter
	logger      *slog.Logger
	observer    xmetrics.Observer
	closed      atomic.Bool
}

// Tokens 返回凭据管理器。
func (p *Pipeline) Tokens() *TokenManager {
	return p.tokens
}

// Classifier 返回 errcode 分类器，可用 Register 扩展。
func (p *Pipeline) Classifier() *Classifier {
	return p.classifier
}

// Get 发送 GET 请求。
func (p *Pipeline) Get(ctx context.Context, path string, query url.Values) (*Result, error) {
	return p.Call(ctx, &Request{Method: http.MethodGet, URL: path, Query: query})
}

// Post 发送 JSON POST 请求。
func (p *Pipeline) Post(ctx context.Context, path string, body any) (*Result, error) {
	return p.Call(ctx, &Request{Method: http.MethodPost, URL: path, Body: body})
}

// Call 执行一次调用。
func (p *Pipeline) Call(ctx context.Context, req *Request) (res *Result, err error) {
	if p.closed.Load() {
		return nil, ErrClientClosed
	}
	if req == nil {
		return nil, ErrNilRequest
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Body != nil {
			method = http.MethodPost
		}
	}

	ctx, span := xmetrics.Start(ctx, p.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpCall,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String(MetricsAttrMethod, method),
			xmetrics.String(MetricsAttrPath, sanitizeURL(req.URL)),
		},
	})
	var attempt int
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{
			xmetrics.Int(MetricsAttrAttempt, attempt),
			xmetrics.Int(MetricsAttrCode, Code(err)),
		}})
	}()

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	// 只有本管线附加的 access_token 才能刷新后重试
	useToken := !req.NoToken && req.Query.Get("access_token") == "" && !hasAccessToken(req.URL)

	res, err = retry.NewWithData[*Result](
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.DelayType(func(uint, error, retry.DelayContext) time.Duration { return 0 }),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && IsCredentialExpired(err)
		}),
		retry.OnRetry(func(_ uint, err error) {
			p.logger.Debug("xclient: credential rejected, refreshing access token",
				slog.String("path", sanitizeURL(req.URL)),
				slog.Int("errcode", Code(err)),
			)
		}),
	).Do(func() (*Result, error) {
		attempt++
		query := cloneQuery(req.Query)
		if useToken {
			token, err := p.accessToken(ctx, attempt > 1)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			query.Set("access_token", token)
		}

		res, err := p.send(ctx, method, req, query, body, contentType)
		if err != nil && (!useToken || p.tokens.IsStatic(PurposeAccessToken)) {
			return nil, retry.Unrecoverable(err)
		}
		return res, err
	})
	return res, err
}

func (p *Pipeline) accessToken(ctx context.Context, force bool) (string, error) {
	if force {
		return p.tokens.ForceRefresh(ctx, PurposeAccessToken)
	}
	return p.tokens.Get(ctx, PurposeAccessToken)
}

// send 执行一次往返并解释响应。
func (p *Pipeline) send(ctx context.Context, method string, req *Request, query url.Values, body []byte, contentType string) (*Result, error) {
	if err := p.checkQuota(ctx, req.URL); err != nil {
		return nil, err
	}

	target, err := p.transport.resolveURL(req.URL, query)
	if err != nil {
		return nil, err
	}

	reply, err := p.transport.do(ctx, method, target, body, contentType)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Raw:        reply.body,
		StatusCode: reply.resp.StatusCode,
		Header:     reply.resp.Header,
	}

	// 非 JSON（如媒体文件）原样返回
	var data map[string]any
	if err := json.Unmarshal(reply.body, &data); err != nil || data == nil {
		return res, nil
	}

	normalizers := p.normalizers
	if req.Normalizers != nil {
		normalizers = req.Normalizers
	}
	for _, n := range normalizers {
		n(data)
	}
	res.Data = data

	code, msg, err := readStatus(data)
	if err != nil {
		return nil, &ClientError{
			Kind:     KindRemote,
			Message:  fmt.Sprint(data["errcode"]),
			Request:  reply.req,
			Response: reply.resp,
			Body:     reply.body,
			Err:      err,
		}
	}
	if kind := p.classifier.Classify(code); kind != KindNone {
		return nil, &ClientError{
			Kind:     kind,
			Code:     code,
			Message:  msg,
			Request:  reply.req,
			Response: reply.resp,
			Body:     reply.body,
		}
	}

	if req.PostProcess != nil {
		v, err := req.PostProcess(data)
		if err != nil {
			return nil, fmt.Errorf("xclient: post process %s: %w", sanitizeURL(req.URL), err)
		}
		res.Value = v
	}
	return res, nil
}

func (p *Pipeline) checkQuota(ctx context.Context, target string) error {
	if p.limiter == nil {
		return nil
	}
	err := p.limiter.Allow(ctx, p.appID+":"+sanitizeURL(target))
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return &ClientError{Kind: KindRateLimited, Message: err.Error(), Err: err}
	}
	p.logger.Warn("xclient: limiter unavailable, allowing call",
		slog.String("path", sanitizeURL(target)),
		slog.String("error", err.Error()),
	)
	return nil
}

func (p *Pipeline) close() {
	p.closed.Store(true)
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q)+1)
	for k, vs := range q {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
