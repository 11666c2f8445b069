package phashcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesight/visualqa/internal/domain/phash"
)

func testCache(capacity int, ttl time.Duration) (*Cache, *time.Time) {
	c := New(capacity, ttl, 5, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.SetNow(func() time.Time { return now })
	return c, &now
}

func TestLookupExactHit(t *testing.T) {
	c, _ := testCache(10, time.Hour)
	ctx := context.Background()

	fp := phash.Fingerprint(0xDEADBEEF12345678)
	c.Store(ctx, fp, "cap-1", phash.Verdict{IssueID: "issue-1"})

	v, hit := c.Lookup(ctx, fp)
	require.True(t, hit)
	assert.Equal(t, "issue-1", v.IssueID)
}

func TestLookupNearMatchWithinThreshold(t *testing.T) {
	c, _ := testCache(10, time.Hour)
	ctx := context.Background()

	fp := phash.Fingerprint(0xFF00FF00FF00FF00)
	c.Store(ctx, fp, "cap-1", phash.Verdict{Clean: true})

	// Flip two bits: Hamming distance 2 <= T=5.
	near := fp ^ 0x0000000000000011
	require.Equal(t, 2, fp.Distance(near))

	v, hit := c.Lookup(ctx, near)
	require.True(t, hit)
	assert.True(t, v.Clean)
}

func TestLookupMissBeyondThreshold(t *testing.T) {
	c, _ := testCache(10, time.Hour)
	ctx := context.Background()

	fp := phash.Fingerprint(0xFF00FF00FF00FF00)
	c.Store(ctx, fp, "cap-1", phash.Verdict{Clean: true})

	// Flip eight bits: distance 8 > T=5.
	far := fp ^ 0x00000000000000FF
	require.Equal(t, 8, fp.Distance(far))

	_, hit := c.Lookup(ctx, far)
	assert.False(t, hit)
}

func TestHitCountAndLastHitTracking(t *testing.T) {
	c, now := testCache(10, time.Hour)
	ctx := context.Background()

	fp := phash.Fingerprint(0x1234)
	c.Store(ctx, fp, "cap-1", phash.Verdict{Clean: true})

	for i := 0; i < 3; i++ {
		*now = now.Add(time.Minute)
		_, hit := c.Lookup(ctx, fp)
		require.True(t, hit)
	}
	hits, misses := c.Stats()
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, int64(0), misses)
}

func TestTTLExpiryIsAMiss(t *testing.T) {
	c, now := testCache(10, time.Hour)
	ctx := context.Background()

	fp := phash.Fingerprint(0xABCD)
	c.Store(ctx, fp, "cap-1", phash.Verdict{IssueID: "issue-9"})

	*now = now.Add(2 * time.Hour)
	_, hit := c.Lookup(ctx, fp)
	assert.False(t, hit, "expired entry must read as a miss")
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on lookup")
}

func TestCapacityEvictsLeastRecentlyHit(t *testing.T) {
	c, now := testCache(2, time.Hour)
	ctx := context.Background()

	// Spread fingerprints far apart so near-matching never kicks in.
	a := phash.Fingerprint(0x00000000000000FF)
	b := phash.Fingerprint(0x0000FFFF00000000)
	d := phash.Fingerprint(0xFFFF00000000FFFF)

	c.Store(ctx, a, "cap-a", phash.Verdict{Clean: true})
	*now = now.Add(time.Minute)
	c.Store(ctx, b, "cap-b", phash.Verdict{Clean: true})

	// Touch a so b becomes the LRU entry.
	*now = now.Add(time.Minute)
	_, hit := c.Lookup(ctx, a)
	require.True(t, hit)

	*now = now.Add(time.Minute)
	c.Store(ctx, d, "cap-d", phash.Verdict{Clean: true})

	assert.Equal(t, 2, c.Len())
	_, hitA := c.Lookup(ctx, a)
	_, hitB := c.Lookup(ctx, b)
	_, hitD := c.Lookup(ctx, d)
	assert.True(t, hitA)
	assert.False(t, hitB, "least recently hit entry must be evicted")
	assert.True(t, hitD)
}

func TestStoreSameFingerprintMergesHitCount(t *testing.T) {
	c, _ := testCache(10, time.Hour)
	ctx := context.Background()

	fp := phash.Fingerprint(0x42)
	c.Store(ctx, fp, "cap-1", phash.Verdict{Clean: true})
	_, _ = c.Lookup(ctx, fp)
	_, _ = c.Lookup(ctx, fp)

	// Re-store (e.g. post-TTL re-analysis) keeps the accumulated count.
	c.Store(ctx, fp, "cap-2", phash.Verdict{IssueID: "issue-2"})
	v, hit := c.Lookup(ctx, fp)
	require.True(t, hit)
	assert.Equal(t, "issue-2", v.IssueID)
	assert.Equal(t, 1, c.Len())
}

func TestConcurrentAccessIsSafe(t *testing.T) {
	c := New(100, time.Hour, 5, nil)
	ctx := context.Background()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(seed uint64) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				fp := phash.Fingerprint(seed*1000003 + uint64(i)*65537)
				c.Store(ctx, fp, "cap", phash.Verdict{Clean: true})
				c.Lookup(ctx, fp)
			}
		}(uint64(g))
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
