package xsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T, opts ...Option) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		s := newTestMemoryStore(t)
		_, err := s.Get(ctx, "wx123_access_token")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newTestMemoryStore(t)
		require.NoError(t, s.Set(ctx, "wx123_access_token", "tok", time.Hour))

		v, err := s.Get(ctx, "wx123_access_token")
		require.NoError(t, err)
		assert.Equal(t, "tok", v)
	})

	t.Run("set empty value is a no-op", func(t *testing.T) {
		s := newTestMemoryStore(t)
		require.NoError(t, s.Set(ctx, "k", "", time.Hour))

		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set empty value keeps existing entry", func(t *testing.T) {
		s := newTestMemoryStore(t)
		require.NoError(t, s.Set(ctx, "k", "old", 0))
		require.NoError(t, s.Set(ctx, "k", "", time.Hour))

		v, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "old", v)
	})

	t.Run("delete", func(t *testing.T) {
		s := newTestMemoryStore(t)
		require.NoError(t, s.Set(ctx, "k", "v", 0))
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))

		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		s := newTestMemoryStore(t)
		require.NoError(t, s.Set(ctx, "k", "v", 50*time.Millisecond))

		assert.Eventually(t, func() bool {
			_, err := s.Get(ctx, "k")
			return err == ErrNotFound
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("instances with different prefixes do not collide", func(t *testing.T) {
		s := newTestMemoryStore(t, WithKeyPrefix("a:"))
		require.NoError(t, s.Set(ctx, "k", "v", 0))
		v, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	})

	t.Run("closed", func(t *testing.T) {
		s, err := NewMemoryStore(&MemoryOptions{NumCounters: 100, MaxCost: 1 << 20})
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err = s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, s.Set(ctx, "k", "v", 0), ErrClosed)
		assert.ErrorIs(t, s.Delete(ctx, "k"), ErrClosed)
	})
}
