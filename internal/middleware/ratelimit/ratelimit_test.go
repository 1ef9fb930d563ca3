package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowExhaustsBucket(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 3, WindowDuration: time.Hour})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, rl.allow("client-a"), "request %d within the budget", i+1)
	}
	assert.False(t, rl.allow("client-a"), "the bucket is empty")
}

func TestAllowKeysAreIndependent(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, WindowDuration: time.Hour})
	defer rl.Stop()

	require.True(t, rl.allow("client-a"))
	require.False(t, rl.allow("client-a"))
	assert.True(t, rl.allow("client-b"), "one client's burst does not starve another")
}

func TestAllowRefillsOverTime(t *testing.T) {
	// 100ms window, 2 tokens: one token refills every 50ms.
	rl := New(Config{MaxRequestsPerMinute: 2, WindowDuration: 100 * time.Millisecond})
	defer rl.Stop()

	require.True(t, rl.allow("client-a"))
	require.True(t, rl.allow("client-a"))
	require.False(t, rl.allow("client-a"))

	assert.Eventually(t, func() bool {
		return rl.allow("client-a")
	}, time.Second, 10*time.Millisecond, "tokens refill after the window elapses")
}

func TestRefillIsCapped(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2, WindowDuration: 20 * time.Millisecond})
	defer rl.Stop()

	require.True(t, rl.allow("client-a"))
	time.Sleep(200 * time.Millisecond)

	// A long idle period refills to the cap, not beyond it.
	require.True(t, rl.allow("client-a"))
	require.True(t, rl.allow("client-a"))
	assert.False(t, rl.allow("client-a"))
}
