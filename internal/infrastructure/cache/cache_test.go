package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/pkg/cache"
)

type record struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func openBadger(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := OpenBadgerCache("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// backends chạy cùng một bộ kiểm tra trên mọi implementation cache.Cache
func backends(t *testing.T) map[string]cache.Cache {
	return map[string]cache.Cache{
		"memory": NewMemoryCache(),
		"badger": openBadger(t),
	}
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			in := record{Name: "books", Items: []string{"a", "b"}}
			require.NoError(t, c.Set(ctx, "k", in, 0))

			var out record
			found, err := c.Get(ctx, "k", &out)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, in, out)

			exists, err := c.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestCache_MissLeavesDestUntouched(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			out := record{Name: "unchanged"}
			found, err := c.Get(ctx, "missing", &out)
			require.NoError(t, err)
			assert.False(t, found)
			assert.Equal(t, "unchanged", out.Name)

			_, found, err = c.GetRaw(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestCache_Delete(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "a", 1, 0))
			require.NoError(t, c.Set(ctx, "b", 2, 0))
			require.NoError(t, c.Delete(ctx, "a", "b", "never-set"))

			exists, err := c.Exists(ctx, "a")
			require.NoError(t, err)
			assert.False(t, exists)
			exists, err = c.Exists(ctx, "b")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestCache_GetRawReturnsJSON(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "k", []string{"x"}, 0))
			raw, found, err := c.GetRaw(ctx, "k")
			require.NoError(t, err)
			require.True(t, found)
			assert.JSONEq(t, `["x"]`, string(raw))
		})
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "short", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	found, err := c.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_FailWrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	boom := errors.New("disk full")

	c.FailWrites(boom)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, 0), boom)

	c.FailWrites(nil)
	assert.NoError(t, c.Set(ctx, "k", 1, 0))
}

func TestMemoryCache_Closed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Ping(ctx), cache.ErrCacheClosed)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, 0), cache.ErrCacheClosed)
	_, err := c.Get(ctx, "k", new(int))
	assert.ErrorIs(t, err, cache.ErrCacheClosed)
}

func TestBadgerCache_Ping(t *testing.T) {
	c := openBadger(t)
	assert.NoError(t, c.Ping(context.Background()))
}
