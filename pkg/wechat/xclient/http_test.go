package xclient

import (
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBody(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		want     string
		wantType string
	}{
		{"nil", nil, "", ""},
		{"bytes", []byte(`{"a":1}`), `{"a":1}`, contentTypeJSON},
		{"string", `{"a":1}`, `{"a":1}`, contentTypeJSON},
		{"reader", strings.NewReader("raw"), "raw", contentTypeJSON},
		{"struct", struct {
			Name string `json:"name"`
		}{"<b>你好</b>"}, `{"name":"<b>你好</b>"}`, contentTypeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ct, err := encodeBody(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, tt.wantType, ct)
		})
	}

	t.Run("unmarshalable", func(t *testing.T) {
		_, _, err := encodeBody(map[string]any{"ch": make(chan int)})
		assert.Error(t, err)
	})

	t.Run("reader error", func(t *testing.T) {
		_, _, err := encodeBody(io.MultiReader(errReader{}))
		assert.Error(t, err)
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestResolveURL(t *testing.T) {
	tr := &transport{baseURL: "https://api.weixin.qq.com/cgi-bin/"}

	got, err := tr.resolveURL("menu/get", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.weixin.qq.com/cgi-bin/menu/get", got)

	got, err = tr.resolveURL("/menu/get", url.Values{"access_token": {"t"}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.weixin.qq.com/cgi-bin/menu/get?access_token=t", got)

	got, err = tr.resolveURL("HTTPS://other.example.com/x?a=1", url.Values{"b": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x?a=1&b=2", got)
}

func TestURLHelpers(t *testing.T) {
	assert.True(t, isAbsoluteURL("https://x"))
	assert.True(t, isAbsoluteURL("Http://x"))
	assert.False(t, isAbsoluteURL("menu/get"))

	assert.True(t, hasAccessToken("menu/get?access_token=abc"))
	assert.False(t, hasAccessToken("menu/get?access_token="))
	assert.False(t, hasAccessToken("menu/get"))

	assert.Equal(t, "https://x/token", sanitizeURL("https://x/token?secret=s"))
	assert.Equal(t, "menu/get", sanitizeURL("menu/get"))

	err := redactURLError(&url.Error{Op: "Get", URL: "https://x/token?secret=s", Err: io.EOF})
	assert.NotContains(t, err.Error(), "secret")
}
