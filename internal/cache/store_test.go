package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/internal/database/testutil"
)

func testStores(t *testing.T) map[string]cache.Store {
	t.Helper()

	return map[string]cache.Store{
		"memory":   cache.NewMemoryStore(),
		"database": cache.NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())),
	}
}

func TestStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "greeting", []byte("hello"), time.Minute))

			value, ok, err := store.Get(ctx, "greeting")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("hello"), value)

			require.NoError(t, store.Delete(ctx, "greeting"))

			_, ok, err = store.Get(ctx, "greeting")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "ephemeral", []byte("x"), time.Millisecond))
			time.Sleep(5 * time.Millisecond)

			_, ok, err := store.Get(ctx, "ephemeral")
			require.NoError(t, err)
			require.False(t, ok, "expired entries must read as misses")
		})
	}
}

func TestStoreIncrementWithTTL(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			count, ttl, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
			require.NoError(t, err)
			require.EqualValues(t, 1, count)
			require.Greater(t, ttl, time.Duration(0))

			count, _, err = store.IncrementWithTTL(ctx, "counter", time.Minute)
			require.NoError(t, err)
			require.EqualValues(t, 2, count)
		})
	}
}
