package xconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  appid: wx_test
  secret: ${XCONF_TEST_SECRET}
  timeout: 3s
  token: cbtoken
store:
  driver: Redis
  prefix: "demo:"
  redis:
    addr: 127.0.0.1:6379
    db: 2
log:
  level: debug
  format: json
  file: /tmp/xwechat.log
  max_size_mb: 10
server:
  addr: ":9000"
  allowlist: true
  prewarm: "@every 30m"
  dedup_ttl: 2m
resilience:
  breaker_failures: 3
  breaker_timeout: 15s
  rate_per_minute: 600
`

func TestParse(t *testing.T) {
	t.Setenv("XCONF_TEST_SECRET", "s3cret")

	s, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "wx_test", s.App.AppID)
	assert.Equal(t, "s3cret", s.App.Secret)
	assert.Equal(t, 3*time.Second, s.App.Timeout)
	assert.Equal(t, "cbtoken", s.App.Token)
	assert.Equal(t, DriverRedis, s.Store.Driver)
	assert.Equal(t, "demo:", s.Store.Prefix)
	assert.Equal(t, 2, s.Store.Redis.DB)
	assert.Equal(t, ":9000", s.Server.Addr)
	assert.Equal(t, "/wechat", s.Server.Path)
	assert.True(t, s.Server.Allowlist)
	assert.Equal(t, 2*time.Minute, s.Server.DedupTTL)
	assert.Equal(t, 600, s.Resilience.RatePerMinute)

	t.Run("client config", func(t *testing.T) {
		cfg := s.ClientConfig()
		assert.Equal(t, "wx_test", cfg.AppID)
		assert.Equal(t, "s3cret", cfg.Secret)
		assert.Equal(t, 3*time.Second, cfg.Timeout)
	})

	t.Run("breaker", func(t *testing.T) {
		b := s.Breaker()
		require.NotNil(t, b)
		assert.EqualValues(t, 3, b.ConsecutiveFailures)
		assert.Equal(t, 15*time.Second, b.OpenTimeout)
	})

	t.Run("rotation", func(t *testing.T) {
		assert.Equal(t, 10, s.Rotation().MaxSizeMB)
	})
}

func TestParse_JSON(t *testing.T) {
	s, err := Parse([]byte(`{"app":{"appid":"wx1","access_token":"fixed"}}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "fixed", s.App.AccessToken)
	assert.Equal(t, DriverMemory, s.Store.Driver)
	assert.Equal(t, "info", s.Log.Level)
	assert.Nil(t, s.Breaker())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
		want   error
	}{
		{"unsupported format", `a: 1`, Format("toml"), ErrUnsupportedFormat},
		{"malformed yaml", "app: [", FormatYAML, ErrParseFailed},
		{"missing appid", `{}`, FormatJSON, ErrInvalidSettings},
		{"empty data", ``, FormatYAML, ErrInvalidSettings},
		{"redis without addr", "app: {appid: wx1}\nstore: {driver: redis}", FormatYAML, ErrInvalidSettings},
		{"etcd without endpoints", "app: {appid: wx1}\nstore: {driver: etcd}", FormatYAML, ErrInvalidSettings},
		{"unknown driver", "app: {appid: wx1}\nstore: {driver: mysql}", FormatYAML, ErrInvalidSettings},
		{"bad level", "app: {appid: wx1}\nlog: {level: loud}", FormatYAML, ErrInvalidSettings},
		{"negative rate", "app: {appid: wx1}\nresilience: {rate_per_minute: -1}", FormatYAML, ErrInvalidSettings},
		{"bad duration", "app: {appid: wx1, timeout: soon}", FormatYAML, ErrUnmarshalFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "app.yml")
		require.NoError(t, os.WriteFile(path, []byte("app:\n  appid: wx1\n  secret: a\n"), 0o600))

		src, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, src.Format())
		assert.Equal(t, path, src.Path())
		assert.Equal(t, "wx1", src.Settings().App.AppID)
		assert.Equal(t, "a", src.Koanf().String("app.secret"))

		require.NoError(t, os.WriteFile(path, []byte("app:\n  appid: wx2\n"), 0o600))
		s, err := src.Reload()
		require.NoError(t, err)
		assert.Equal(t, "wx2", s.App.AppID)

		require.NoError(t, os.WriteFile(path, []byte("app: ["), 0o600))
		_, err = src.Reload()
		require.ErrorIs(t, err, ErrParseFailed)
		assert.Equal(t, "wx2", src.Settings().App.AppID)
	})

	t.Run("settings copy", func(t *testing.T) {
		path := filepath.Join(dir, "etcd.json")
		require.NoError(t, os.WriteFile(path,
			[]byte(`{"app":{"appid":"wx1"},"store":{"driver":"etcd","etcd":{"endpoints":["a:2379"]}}}`), 0o600))
		src, err := Open(path)
		require.NoError(t, err)

		s := src.Settings()
		s.Store.Etcd.Endpoints[0] = "changed"
		assert.Equal(t, "a:2379", src.Settings().Store.Etcd.Endpoints[0])
		assert.Equal(t, 5*time.Second, s.Store.Etcd.DialTimeout)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Open("")
		require.ErrorIs(t, err, ErrEmptyPath)

		_, err = Open(filepath.Join(dir, "app.toml"))
		require.ErrorIs(t, err, ErrUnsupportedFormat)

		_, err = Open(filepath.Join(dir, "missing.yaml"))
		require.ErrorIs(t, err, ErrLoadFailed)
	})
}
