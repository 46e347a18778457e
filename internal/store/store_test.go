// ABOUTME: Contract tests run against every SessionStore implementation
// ABOUTME: Covers thread get/set/delete, counters and request kind with identical expectations

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a SQLiteStore in a temp directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestRedisStore creates a RedisStore backed by miniredis.
func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "test", 0, nil)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func sessionStores(t *testing.T) map[string]SessionStore {
	redisStore, _ := newTestRedisStore(t)
	return map[string]SessionStore{
		"memory": NewMemoryStore(),
		"sqlite": newTestStore(t),
		"redis":  redisStore,
	}
}

func TestSessionStore_Thread(t *testing.T) {
	for name, s := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetThread(ctx, "user-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SetThread(ctx, "user-1", "thread_a"))
			got, err := s.GetThread(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, "thread_a", got)

			require.NoError(t, s.SetThread(ctx, "user-1", "thread_b"))
			got, err = s.GetThread(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, "thread_b", got)

			require.NoError(t, s.DeleteThread(ctx, "user-1"))
			_, err = s.GetThread(ctx, "user-1")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting an unknown user's thread is not an error
			assert.NoError(t, s.DeleteThread(ctx, "nobody"))
		})
	}
}

func TestSessionStore_MessageCount(t *testing.T) {
	for name, s := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			n, err := s.GetMessageCount(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			for want := 1; want <= 3; want++ {
				n, err := s.IncrementMessageCount(ctx, "user-1")
				require.NoError(t, err)
				assert.Equal(t, want, n)
			}

			n, err = s.GetMessageCount(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			require.NoError(t, s.ResetMessageCount(ctx, "user-1"))
			n, err = s.GetMessageCount(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			// Counters are per user
			n, err = s.GetMessageCount(ctx, "user-2")
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestSessionStore_CounterSurvivesThreadDelete(t *testing.T) {
	for name, s := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.SetThread(ctx, "user-1", "thread_a"))
			_, err := s.IncrementMessageCount(ctx, "user-1")
			require.NoError(t, err)
			require.NoError(t, s.DeleteThread(ctx, "user-1"))

			n, err := s.GetMessageCount(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestSessionStore_RequestKind(t *testing.T) {
	for name, s := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			kind, err := s.GetRequestKind(ctx, "user-1")
			require.NoError(t, err)
			assert.Empty(t, kind)

			require.NoError(t, s.SetRequestKind(ctx, "user-1", "SEARCH"))
			kind, err = s.GetRequestKind(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, "SEARCH", kind)

			// Setting the kind does not create a thread
			_, err = s.GetThread(ctx, "user-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Ping(ctx))
		})
	}
}
