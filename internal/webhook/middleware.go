package webhook

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"

	"github.com/omeyang/xwechat/pkg/wechat/xsign"
)

// HeaderRequestID 响应中携带的请求 ID。
const HeaderRequestID = "X-Request-Id"

type loggerKey struct{}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ids == nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := s.ids.NewString()
		if err != nil {
			s.logger.Warn("webhook: request id unavailable", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set(HeaderRequestID, id)
		logger := s.logger.With(slog.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), loggerKey{}, logger)))
	})
}

func (s *Server) allowlist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Allowlist == nil {
			next.ServeHTTP(w, r)
			return
		}
		addr := remoteAddr(r)
		if !s.cfg.Allowlist.Contains(addr) {
			loggerFrom(r.Context(), s.logger).Warn("webhook: source address rejected",
				slog.String("remote", r.RemoteAddr))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) signature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if err := xsign.CheckSignature(s.cfg.Token, q.Get("signature"), q.Get("timestamp"), q.Get("nonce")); err != nil {
			loggerFrom(r.Context(), s.logger).Warn("webhook: signature mismatch",
				slog.String("timestamp", q.Get("timestamp")))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteAddr(r *http.Request) netip.Addr {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
