package xclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_CredentialRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected token refreshed once then succeeds", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("access_token") == "token-1" {
				writeJSON(w, map[string]any{"errcode": 40001, "errmsg": "invalid credential"})
				return
			}
			writeJSON(w, map[string]any{"menu": map[string]any{"button": []any{}}})
		})
		c := newTestClient(t, fw)

		res, err := c.Get(ctx, PathMenuGet, nil)
		require.NoError(t, err)
		assert.Contains(t, res.Data, "menu")
		assert.EqualValues(t, 2, fw.tokenCalls.Load())
		assert.EqualValues(t, 2, fw.apiCalls.Load())

		token, err := c.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-2", token)
	})

	t.Run("second rejection propagates", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 42001, "errmsg": "access_token expired"})
		})
		c := newTestClient(t, fw)

		_, err := c.Get(ctx, PathMenuGet, nil)
		require.Error(t, err)
		assert.True(t, IsCredentialExpired(err))
		assert.Equal(t, 42001, Code(err))
		assert.EqualValues(t, 2, fw.tokenCalls.Load())
		assert.EqualValues(t, 2, fw.apiCalls.Load())

		var ce *ClientError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "access_token expired", ce.Message)
		assert.NotNil(t, ce.Response)
		assert.NotEmpty(t, ce.Body)
	})

	t.Run("rate limited not retried", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 45009, "errmsg": "reach max api daily quota limit"})
		})
		c := newTestClient(t, fw)

		_, err := c.Get(ctx, PathMenuGet, nil)
		require.Error(t, err)
		assert.True(t, IsRateLimited(err))
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.EqualValues(t, 1, fw.apiCalls.Load())
		assert.EqualValues(t, 1, fw.tokenCalls.Load())
	})

	t.Run("caller supplied token never refreshed", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var seen recorder
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, r *http.Request) {
			seen.add(r.URL.Query().Get("access_token"))
			writeJSON(w, map[string]any{"errcode": 40001, "errmsg": "invalid credential"})
		})
		c := newTestClient(t, fw)

		_, err := c.Call(ctx, &Request{URL: PathMenuGet, Query: url.Values{"access_token": {"caller"}}})
		require.Error(t, err)
		assert.True(t, IsCredentialExpired(err))
		assert.Equal(t, "caller", seen.last())
		assert.Zero(t, fw.tokenCalls.Load())
		assert.EqualValues(t, 1, fw.apiCalls.Load())
	})

	t.Run("token embedded in url never overwritten", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var seen recorder
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, r *http.Request) {
			seen.add(r.URL.Query()["access_token"]...)
			writeJSON(w, map[string]any{"errcode": 0})
		})
		c := newTestClient(t, fw)

		_, err := c.Call(ctx, &Request{URL: PathMenuGet + "?access_token=inline"})
		require.NoError(t, err)
		assert.Equal(t, []string{"inline"}, seen.all())
		assert.Zero(t, fw.tokenCalls.Load())
	})

	t.Run("static token not refreshed", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 40014, "errmsg": "invalid access_token"})
		})
		cfg := fw.config()
		cfg.Secret = ""
		cfg.AccessToken = "preset"
		c, err := New(cfg, WithHTTPClient(fw.srv.Client()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		_, err = c.Get(ctx, PathMenuGet, nil)
		require.Error(t, err)
		assert.True(t, IsCredentialExpired(err))
		assert.EqualValues(t, 1, fw.apiCalls.Load())
		assert.Zero(t, fw.tokenCalls.Load())
	})

	t.Run("token endpoint failure surfaces without retry", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 0})
		})
		cfg := fw.config()
		cfg.Secret = "wrong"
		c, err := New(cfg, WithHTTPClient(fw.srv.Client()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		_, err = c.Get(ctx, PathMenuGet, nil)
		require.Error(t, err)
		assert.Equal(t, 40125, Code(err))
		assert.ErrorIs(t, err, ErrRemote)
		assert.EqualValues(t, 1, fw.tokenCalls.Load())
		assert.Zero(t, fw.apiCalls.Load())
	})
}

func TestPipeline_Responses(t *testing.T) {
	ctx := context.Background()

	t.Run("non json passes through raw", func(t *testing.T) {
		fw := newFakeWeChat(t)
		payload := []byte("\x89PNG\r\n\x1a\nbinary")
		fw.handle("/cgi-bin/media/get", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(payload)
		})
		c := newTestClient(t, fw)

		res, err := c.Get(ctx, "media/get", url.Values{"media_id": {"m1"}})
		require.NoError(t, err)
		assert.False(t, res.IsJSON())
		assert.Nil(t, res.Data)
		assert.Equal(t, payload, res.Raw)
		assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	})

	t.Run("json array is not classified", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/list", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `[1,2,3]`)
		})
		c := newTestClient(t, fw)

		res, err := c.Get(ctx, "list", nil)
		require.NoError(t, err)
		assert.False(t, res.IsJSON())
		assert.Equal(t, "[1,2,3]", string(res.Raw))
	})

	t.Run("base_resp flattened before classification", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/wxa/op", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{
				"base_resp": map[string]any{"errcode": 61500, "errmsg": "date format error"},
			})
		})
		c := newTestClient(t, fw)

		_, err := c.Get(ctx, "wxa/op", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRemote)
		assert.Equal(t, 61500, Code(err))
	})

	t.Run("base_resp credential error triggers retry", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/wxa/op", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("access_token") == "token-1" {
				writeJSON(w, map[string]any{"base_resp": map[string]any{"errcode": 40001}})
				return
			}
			writeJSON(w, map[string]any{"base_resp": map[string]any{"errcode": 0}, "ok": true})
		})
		c := newTestClient(t, fw)

		res, err := c.Get(ctx, "wxa/op", nil)
		require.NoError(t, err)
		assert.Equal(t, true, res.Data["ok"])
		assert.EqualValues(t, 2, fw.apiCalls.Load())
	})

	t.Run("string errcode normalized to int", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/ok", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"errcode":"0","errmsg":"ok","n":1}`)
		})
		fw.handle("/cgi-bin/bad", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"errcode":"40013","errmsg":"invalid appid"}`)
		})
		c := newTestClient(t, fw)

		res, err := c.Get(ctx, "ok", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Data["errcode"])

		_, err = c.Get(ctx, "bad", nil)
		require.Error(t, err)
		assert.Equal(t, 40013, Code(err))
	})

	t.Run("unparseable errcode is a remote failure", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/garbled", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"errcode":"abc","errmsg":"ok"}`)
		})
		c := newTestClient(t, fw)

		_, err := c.Get(ctx, "garbled", nil)
		require.ErrorIs(t, err, ErrRemote)
		require.ErrorIs(t, err, ErrMalformedErrcode)

		var ce *ClientError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindRemote, ce.Kind)
		assert.Equal(t, "abc", ce.Message)
		assert.EqualValues(t, 1, fw.apiCalls.Load())
	})

	t.Run("per request normalizers replace defaults", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/custom", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"ret": 61451, "err_msg": "invalid parameter"})
		})
		c := newTestClient(t, fw)

		res, err := c.Get(ctx, "custom", nil)
		require.NoError(t, err, "ret is not a status field by default")
		assert.EqualValues(t, 61451, res.Data["ret"])

		_, err = c.Call(ctx, &Request{URL: "custom", Normalizers: []Normalizer{RenameStatus("ret", "err_msg")}})
		require.Error(t, err)
		assert.Equal(t, 61451, Code(err))
	})

	t.Run("custom classification", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/busy", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 45011, "errmsg": "api minute-quota reach limit"})
		})
		fw.handle("/cgi-bin/benign", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 85071, "errmsg": "already bound"})
		})
		c := newTestClient(t, fw)
		c.Pipeline().Classifier().Register(45011, KindRateLimited)
		c.Pipeline().Classifier().Register(85071, KindNone)

		_, err := c.Get(ctx, "busy", nil)
		assert.True(t, IsRateLimited(err))

		res, err := c.Get(ctx, "benign", nil)
		require.NoError(t, err)
		assert.Equal(t, 85071, res.Data["errcode"])
	})
}

func TestPipeline_Requests(t *testing.T) {
	ctx := context.Background()

	t.Run("json body keeps non ascii and html characters", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var got recorder
		fw.handle("/cgi-bin/menu/create", func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			got.add(string(b), r.Header.Get("Content-Type"))
			writeJSON(w, map[string]any{"errcode": 0, "errmsg": "ok"})
		})
		c := newTestClient(t, fw)

		_, err := c.Post(ctx, PathMenuCreate, map[string]string{"name": "今日歌曲<&>"})
		require.NoError(t, err)
		assert.Equal(t, []string{`{"name":"今日歌曲<&>"}`, contentTypeJSON}, got.all())
	})

	t.Run("method inferred from body", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var methods recorder
		fw.handle("/cgi-bin/echo", func(w http.ResponseWriter, r *http.Request) {
			methods.add(r.Method)
			writeJSON(w, map[string]any{"errcode": 0})
		})
		c := newTestClient(t, fw)

		_, err := c.Call(ctx, &Request{URL: "echo"})
		require.NoError(t, err)
		_, err = c.Call(ctx, &Request{URL: "echo", Body: []byte(`{}`)})
		require.NoError(t, err)
		assert.Equal(t, []string{http.MethodGet, http.MethodPost}, methods.all())
	})

	t.Run("reader body resent on retry", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var bodies recorder
		fw.handle("/cgi-bin/upload", func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			bodies.add(string(b))
			if r.URL.Query().Get("access_token") == "token-1" {
				writeJSON(w, map[string]any{"errcode": 40001})
				return
			}
			writeJSON(w, map[string]any{"errcode": 0})
		})
		c := newTestClient(t, fw)

		_, err := c.Call(ctx, &Request{URL: "upload", Body: strings.NewReader("payload")})
		require.NoError(t, err)
		assert.Equal(t, []string{"payload", "payload"}, bodies.all())
	})

	t.Run("absolute url bypasses base url", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var token recorder
		fw.handle("/wxa/getwxacode", func(w http.ResponseWriter, r *http.Request) {
			token.add(r.URL.Query().Get("access_token"))
			writeJSON(w, map[string]any{"errcode": 0})
		})
		c := newTestClient(t, fw)

		_, err := c.Get(ctx, fw.srv.URL+"/wxa/getwxacode", nil)
		require.NoError(t, err)
		assert.Equal(t, "token-1", token.last())
	})

	t.Run("post processor output", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/count", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"total": 42})
		})
		c := newTestClient(t, fw)

		res, err := c.Call(ctx, &Request{
			URL: "count",
			PostProcess: func(data map[string]any) (any, error) {
				return int(data["total"].(float64)), nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 42, res.Value)
	})

	t.Run("post processor error wrapped", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/count", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{})
		})
		c := newTestClient(t, fw)
		errShape := errors.New("unexpected shape")

		_, err := c.Call(ctx, &Request{
			URL:         "count",
			PostProcess: func(map[string]any) (any, error) { return nil, errShape },
		})
		require.ErrorIs(t, err, errShape)
		assert.EqualValues(t, 1, fw.apiCalls.Load())
	})

	t.Run("nil request", func(t *testing.T) {
		c := newTestClient(t, newFakeWeChat(t))
		_, err := c.Call(ctx, nil)
		assert.ErrorIs(t, err, ErrNilRequest)
	})

	t.Run("closed client", func(t *testing.T) {
		c := newTestClient(t, newFakeWeChat(t))
		require.NoError(t, c.Close())
		_, err := c.Get(ctx, PathMenuGet, nil)
		assert.ErrorIs(t, err, ErrClientClosed)
		_, err = c.AccessToken(ctx)
		assert.ErrorIs(t, err, ErrClientClosed)
	})
}

func TestPipeline_Transport(t *testing.T) {
	ctx := context.Background()

	t.Run("http error status not retried", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		})
		c := newTestClient(t, fw)

		_, err := c.Get(ctx, PathMenuGet, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
		assert.Contains(t, err.Error(), "502")
		assert.EqualValues(t, 1, fw.apiCalls.Load())
	})

	t.Run("connection failure hides secrets", func(t *testing.T) {
		cfg := &Config{AppID: "wx_test", Secret: "s3cret", BaseURL: "http://127.0.0.1:1/cgi-bin/", AllowInsecure: true}
		c, err := New(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		_, err = c.AccessToken(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
		assert.NotContains(t, err.Error(), "s3cret")
	})

	t.Run("timeout", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			writeJSON(w, map[string]any{"errcode": 0})
		})
		cfg := fw.config()
		cfg.Timeout = 50 * time.Millisecond
		c, err := New(cfg, WithHTTPClient(fw.srv.Client()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		_, err = c.Get(ctx, "slow", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("circuit breaker opens after consecutive failures", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/flaky", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		c := newTestClient(t, fw, WithCircuitBreaker(BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}))

		for range 2 {
			_, err := c.Get(ctx, "flaky", nil)
			require.ErrorIs(t, err, ErrTransport)
		}
		_, err := c.Get(ctx, "flaky", nil)
		require.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.ErrorIs(t, err, ErrTransport)
		assert.EqualValues(t, 2, fw.apiCalls.Load())
	})

	t.Run("remote errors do not trip breaker", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/remote", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 40013})
		})
		c := newTestClient(t, fw, WithCircuitBreaker(BreakerConfig{ConsecutiveFailures: 1}))

		for range 3 {
			_, err := c.Get(ctx, "remote", nil)
			require.ErrorIs(t, err, ErrRemote)
		}
		assert.EqualValues(t, 3, fw.apiCalls.Load())
	})
}

// stubLimiter 对指定键返回配额耗尽。
type stubLimiter struct {
	deny map[string]bool
	err  error
	keys []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	if l.deny[key] {
		return ErrQuotaExceeded
	}
	return nil
}

func TestPipeline_Limiter(t *testing.T) {
	ctx := context.Background()

	t.Run("quota exhausted short circuits", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 0})
		})
		l := &stubLimiter{deny: map[string]bool{"wx_test:menu/get": true}}
		c := newTestClient(t, fw, WithLimiter(l))

		_, err := c.Get(ctx, PathMenuGet, nil)
		require.Error(t, err)
		assert.True(t, IsRateLimited(err))
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Zero(t, fw.apiCalls.Load())
		assert.Contains(t, l.keys, "wx_test:token")
	})

	t.Run("limiter failure allows call", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 0})
		})
		c := newTestClient(t, fw, WithLimiter(&stubLimiter{err: errors.New("redis down")}))

		_, err := c.Get(ctx, PathMenuGet, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, fw.apiCalls.Load())
	})
}
