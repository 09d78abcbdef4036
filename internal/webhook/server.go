package webhook

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omeyang/xwechat/pkg/util/xid"
	"github.com/omeyang/xwechat/pkg/util/xnet"
	"github.com/omeyang/xwechat/pkg/wechat/xmessage"
)

// MaxBodySize 回调消息体上限。
const MaxBodySize = 1 << 20

// ErrMissingToken 未配置回调令牌。
var ErrMissingToken = errors.New("webhook: callback token is required")

// Config 回调服务配置。
type Config struct {
	// Token 公众号后台配置的服务器令牌。
	Token string
	// Path 回调路径，默认 /wechat。
	Path string
	// MetricsPath Gatherer 非空时暴露指标的路径，默认 /metrics。
	MetricsPath string
	// Gatherer 为 nil 时不注册指标路由。
	Gatherer prometheus.Gatherer
	// Allowlist 为 nil 时不限制来源地址。
	Allowlist *xnet.Allowlist
}

// Server 回调 HTTP 处理器。
type Server struct {
	cfg        Config
	dispatcher *xmessage.Dispatcher
	ids        *xid.Generator
	logger     *slog.Logger
	router     *mux.Router
}

// Option 服务选项。
type Option func(*Server)

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator 设置请求 ID 生成器。为空时不生成请求 ID。
func WithIDGenerator(g *xid.Generator) Option {
	return func(s *Server) { s.ids = g }
}

// New 创建回调服务。
func New(cfg Config, d *xmessage.Dispatcher, opts ...Option) (*Server, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if d == nil {
		return nil, errors.New("webhook: nil dispatcher")
	}
	if cfg.Path == "" {
		cfg.Path = "/wechat"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{cfg: cfg, dispatcher: d, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.routes()
	return s, nil
}

// ServeHTTP 实现 http.Handler。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if s.cfg.Gatherer != nil {
		r.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	cb := r.Path(s.cfg.Path).Subrouter()
	cb.Use(s.requestID, s.allowlist, s.signature)
	cb.HandleFunc("", s.handshake).Methods(http.MethodGet)
	cb.HandleFunc("", s.receive).Methods(http.MethodPost)
	s.router = r
}

// handshake 服务器配置校验：签名通过后原样返回 echostr。
func (s *Server) handshake(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, r.URL.Query().Get("echostr"))
}

func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), s.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		logger.Warn("webhook: read body failed", slog.Any("error", err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	out, err := s.dispatcher.Dispatch(r.Context(), body)
	switch {
	case err == nil:
	case errors.Is(err, xmessage.ErrEmptyBody), errors.Is(err, xmessage.ErrNotXMLRoot), errors.Is(err, xmessage.ErrMalformed):
		logger.Warn("webhook: malformed callback", slog.Any("error", err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	default:
		// 返回 5xx 让平台重投，去重器已在处理失败时遗忘该消息。
		logger.Error("webhook: dispatch failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if len(out) > 0 && out[0] == '<' {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if _, err := w.Write(out); err != nil {
		logger.Debug("webhook: write reply failed", slog.Any("error", fmt.Errorf("write: %w", err)))
	}
}
