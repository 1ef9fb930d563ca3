package session

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore builds a store whose client points at a closed port, so
// loads fall through to a fresh session. Cache lifecycle does not need a
// live server.
func newTestRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	s := &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 20 * time.Millisecond,
			MaxRetries:  -1,
		}),
		maxTurns: 0,
		ttl:      ttl,
		stop:     make(chan struct{}),
		cache:    make(map[string]*Session),
	}
	go s.janitor()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStoreReusesLiveSession(t *testing.T) {
	store := newTestRedisStore(t, time.Minute)

	a := store.GetOrCreate("s1")
	b := store.GetOrCreate("s1")
	assert.Same(t, a, b, "same id returns the same session within the TTL")
	assert.Equal(t, 1, store.Len())
}

func TestRedisStoreDropsStaleCacheEntry(t *testing.T) {
	store := newTestRedisStore(t, 30*time.Millisecond)

	sess := store.GetOrCreate("s1")
	sess.AppendExchange("¿Tienen casas en venta?", "Sí, varias.")

	time.Sleep(60 * time.Millisecond)

	got := store.GetOrCreate("s1")
	assert.NotSame(t, sess, got, "an idle-expired session is not served from cache")
	assert.Empty(t, got.Transcript(), "expired turns do not leak into the new session")
}

func TestRedisStoreEvictsIdleSessions(t *testing.T) {
	store := newTestRedisStore(t, 20*time.Millisecond)

	store.GetOrCreate("s1")
	store.GetOrCreate("s2")
	require.Equal(t, 2, store.Len())

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond, "idle sessions are evicted after the TTL")
}
