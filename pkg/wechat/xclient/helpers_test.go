package xclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeWeChat 模拟公众平台：/cgi-bin/token 依次签发 token-1、token-2……
type fakeWeChat struct {
	srv        *httptest.Server
	mux        *http.ServeMux
	tokenCalls atomic.Int32
	apiCalls   atomic.Int32
}

func newFakeWeChat(t *testing.T) *fakeWeChat {
	t.Helper()
	fw := &fakeWeChat{mux: http.NewServeMux()}
	fw.mux.HandleFunc("/cgi-bin/token", func(w http.ResponseWriter, r *http.Request) {
		n := fw.tokenCalls.Add(1)
		q := r.URL.Query()
		if q.Get("grant_type") != "client_credential" || q.Get("appid") != "wx_test" || q.Get("secret") != "s3cret" {
			writeJSON(w, map[string]any{"errcode": 40125, "errmsg": "invalid appsecret"})
			return
		}
		writeJSON(w, map[string]any{
			"access_token": "token-" + strconv.Itoa(int(n)),
			"expires_in":   7200,
		})
	})
	fw.srv = httptest.NewServer(fw.mux)
	t.Cleanup(fw.srv.Close)
	return fw
}

// handle 注册接口处理函数，调用次数计入 apiCalls。
func (fw *fakeWeChat) handle(path string, h http.HandlerFunc) {
	fw.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		fw.apiCalls.Add(1)
		h(w, r)
	})
}

func (fw *fakeWeChat) config() *Config {
	return &Config{
		AppID:         "wx_test",
		Secret:        "s3cret",
		BaseURL:       fw.srv.URL + "/cgi-bin/",
		AllowInsecure: true,
	}
}

func newTestClient(t *testing.T, fw *fakeWeChat, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(fw.srv.Client())}, opts...)
	c, err := New(fw.config(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// recorder 在处理函数与测试之间传递观测值。
type recorder struct {
	mu   sync.Mutex
	vals []string
}

func (r *recorder) add(v ...string) {
	r.mu.Lock()
	r.vals = append(r.vals, v...)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.vals...)
}

func (r *recorder) last() string {
	vals := r.all()
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}
