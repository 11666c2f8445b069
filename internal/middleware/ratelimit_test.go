package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketRejectsOverQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(5, 5)
	tb.SetNow(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		require.True(t, tb.Allow(), "request %d within quota", i+1)
	}
	assert.False(t, tb.Allow(), "request over quota must be rejected in the same window")
}

func TestTokenBucketRefillsAfterWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(3, 3)
	tb.SetNow(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		require.True(t, tb.Allow())
	}
	require.False(t, tb.Allow())

	// One minute later the full quota is back.
	now = now.Add(time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d after window rollover", i+1)
	}
	assert.False(t, tb.Allow())
}

func TestTokenBucketFractionalRefill(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(10, 10)
	tb.SetNow(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		require.True(t, tb.Allow())
	}
	require.False(t, tb.Allow())

	// Six seconds at 10/minute buys exactly one token.
	now = now.Add(6 * time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "keys must not share buckets")
}
