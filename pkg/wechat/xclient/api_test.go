package xclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJSAPITicket = "sM4AOVdWfPE4DxkXGEs8VMCPGGVi4C3VM0P37wVUCFvkVAy_90u5h9nbSlYy3-Sl-HhTdfl2fzFy1AOcHKP7qg"

func TestMenu(t *testing.T) {
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"menu": map[string]any{"button": []any{
				map[string]any{"type": "click", "name": "今日歌曲", "key": "V1001_TODAY_MUSIC"},
			}}})
		})
		c := newTestClient(t, fw)

		menu, err := c.Menu.Get(ctx)
		require.NoError(t, err)
		require.Contains(t, menu, "menu")
	})

	t.Run("get without menu returns nil", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 46003, "errmsg": "menu no exist"})
		})
		c := newTestClient(t, fw)

		menu, err := c.Menu.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, menu)
	})

	t.Run("get propagates other errors", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/menu/get", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"errcode": 48001, "errmsg": "api unauthorized"})
		})
		c := newTestClient(t, fw)

		_, err := c.Menu.Get(ctx)
		assert.Equal(t, 48001, Code(err))
	})

	t.Run("create and delete", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var got recorder
		fw.handle("/cgi-bin/menu/create", func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			got.add(r.Method, string(b))
			writeJSON(w, map[string]any{"errcode": 0, "errmsg": "ok"})
		})
		fw.handle("/cgi-bin/menu/delete", func(w http.ResponseWriter, r *http.Request) {
			got.add(r.Method)
			writeJSON(w, map[string]any{"errcode": 0, "errmsg": "ok"})
		})
		c := newTestClient(t, fw)

		menu := map[string]any{"button": []map[string]string{{"type": "view", "name": "官网", "url": "https://example.com/?a=1&b=2"}}}
		require.NoError(t, c.Menu.Create(ctx, menu))
		require.NoError(t, c.Menu.Delete(ctx))

		calls := got.all()
		require.Len(t, calls, 3)
		assert.Equal(t, http.MethodPost, calls[0])
		assert.JSONEq(t, `{"button":[{"type":"view","name":"官网","url":"https://example.com/?a=1&b=2"}]}`, calls[1])
		assert.Contains(t, calls[1], "&b=2")
		assert.Equal(t, http.MethodGet, calls[2])
	})
}

func newTicketWeChat(t *testing.T) (*fakeWeChat, *recorder) {
	t.Helper()
	fw := newFakeWeChat(t)
	var types recorder
	fw.handle("/cgi-bin/ticket/getticket", func(w http.ResponseWriter, r *http.Request) {
		typ := r.URL.Query().Get("type")
		types.add(typ)
		switch typ {
		case "jsapi":
			writeJSON(w, map[string]any{"errcode": 0, "errmsg": "ok", "ticket": testJSAPITicket, "expires_in": 7200})
		case "wx_card":
			writeJSON(w, map[string]any{"errcode": 0, "errmsg": "ok", "ticket": testJSAPITicket, "expires_in": 7200})
		default:
			writeJSON(w, map[string]any{"errcode": 40097, "errmsg": "invalid args"})
		}
	})
	return fw, &types
}

func TestJSAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("tickets cached per purpose", func(t *testing.T) {
		fw, types := newTicketWeChat(t)
		c := newTestClient(t, fw)

		for range 3 {
			ticket, err := c.JSAPI.GetTicket(ctx)
			require.NoError(t, err)
			assert.Equal(t, testJSAPITicket, ticket)
			_, err = c.JSAPI.GetCardTicket(ctx)
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"jsapi", "wx_card"}, types.all())
		assert.EqualValues(t, 1, fw.tokenCalls.Load())
	})

	t.Run("signature", func(t *testing.T) {
		fw, _ := newTicketWeChat(t)
		c := newTestClient(t, fw)
		c.JSAPI.now = func() time.Time { return time.Unix(1414587457, 0) }
		c.JSAPI.nonce = func() string { return "Wm3WZYTPz0wzccnW" }

		cfg, err := c.JSAPI.Signature(ctx, "http://mp.weixin.qq.com?params=value#section")
		require.NoError(t, err)
		assert.Equal(t, &JSConfig{
			AppID:     "wx_test",
			Timestamp: 1414587457,
			NonceStr:  "Wm3WZYTPz0wzccnW",
			Signature: "0f9de62fce790f9a083d5c99e95740ceb90c27ed",
		}, cfg)

		b, err := json.Marshal(cfg)
		require.NoError(t, err)
		assert.JSONEq(t, `{"appId":"wx_test","timestamp":1414587457,"nonceStr":"Wm3WZYTPz0wzccnW","signature":"0f9de62fce790f9a083d5c99e95740ceb90c27ed"}`, string(b))
	})

	t.Run("card params", func(t *testing.T) {
		fw, _ := newTicketWeChat(t)
		c := newTestClient(t, fw)
		c.JSAPI.now = func() time.Time { return time.Unix(1414587457, 0) }
		c.JSAPI.nonce = func() string { return "Wm3WZYTPz0wzccnW" }

		p, err := c.JSAPI.CardParams(ctx, "random_card_id", "", "")
		require.NoError(t, err)
		assert.Equal(t, "22dce6bad4db532d4a2ef82ca2ca7bbe1e10ef28", p.Signature)

		p, err = c.JSAPI.CardParams(ctx, "random_card_id", "random_code", "random_openid")
		require.NoError(t, err)
		assert.Equal(t, "950dc1842852457ea573d4d6af34879c1ec093c8", p.Signature)
		assert.Equal(t, "random_code", p.Code)
		assert.Equal(t, "random_openid", p.OpenID)
	})

	t.Run("ticket failure not cached", func(t *testing.T) {
		fw := newFakeWeChat(t)
		var fail recorder
		fail.add("yes")
		fw.handle("/cgi-bin/ticket/getticket", func(w http.ResponseWriter, _ *http.Request) {
			if fail.last() == "yes" {
				writeJSON(w, map[string]any{"errcode": -1, "errmsg": "system error"})
				return
			}
			writeJSON(w, map[string]any{"errcode": 0, "ticket": "t2", "expires_in": 7200})
		})
		c := newTestClient(t, fw)

		_, err := c.JSAPI.GetTicket(ctx)
		require.Error(t, err)
		assert.Equal(t, -1, Code(err))

		fail.add("no")
		ticket, err := c.JSAPI.GetTicket(ctx)
		require.NoError(t, err)
		assert.Equal(t, "t2", ticket)
	})
}

func TestMisc_CallbackIPs(t *testing.T) {
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/getcallbackip", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"ip_list": []string{"101.226.103.0/25", "101.226.62.77"}})
		})
		c := newTestClient(t, fw)

		ips, err := c.Misc.CallbackIPs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"101.226.103.0/25", "101.226.62.77"}, ips)
	})

	t.Run("malformed", func(t *testing.T) {
		fw := newFakeWeChat(t)
		fw.handle("/cgi-bin/getcallbackip", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"ip_list": "oops"})
		})
		c := newTestClient(t, fw)

		_, err := c.Misc.CallbackIPs(ctx)
		require.ErrorIs(t, err, ErrMalformedIPList)
		assert.Contains(t, err.Error(), "xclient: ip_list missing or malformed")
	})
}
