package phashcache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gamesight/visualqa/internal/domain/phash"
)

// Cache is the synchronized perceptual-hash index. It answers "have we
// already analyzed a frame that looks like this" before any model is
// called. All state lives behind one mutex; the repository is a best
// effort write-through so the index survives restarts.
//
// Near-match lookup scans only the popcount buckets within ±threshold of
// the probe fingerprint, since Hamming distance ≤ T bounds the popcount
// delta by T.
type Cache struct {
	mu      sync.Mutex
	entries map[phash.Fingerprint]*phash.Entry
	buckets [65]map[phash.Fingerprint]*phash.Entry

	capacity  int
	ttl       time.Duration
	threshold int

	repo phash.Repository // nil = memory only
	now  func() time.Time

	hits   int64
	misses int64
}

const (
	DefaultCapacity  = 10000
	DefaultTTL       = 24 * time.Hour
	DefaultThreshold = 5
)

func New(capacity int, ttl time.Duration, threshold int, repo phash.Repository) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	c := &Cache{
		entries:   make(map[phash.Fingerprint]*phash.Entry),
		capacity:  capacity,
		ttl:       ttl,
		threshold: threshold,
		repo:      repo,
		now:       time.Now,
	}
	for i := range c.buckets {
		c.buckets[i] = make(map[phash.Fingerprint]*phash.Entry)
	}
	return c
}

// SetNow overrides the clock, for tests.
func (c *Cache) SetNow(now func() time.Time) { c.now = now }

// Warm loads persisted entries into the index. Errors are logged and
// swallowed: a cold cache is a working cache.
func (c *Cache) Warm(ctx context.Context) {
	if c.repo == nil {
		return
	}
	entries, err := c.repo.LoadAll(ctx)
	if err != nil {
		log.Printf("phash cache warm error: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		c.insertLocked(e)
	}
	log.Printf("phash cache warmed entries=%d", len(c.entries))
}

// Lookup returns the cached verdict for the fingerprint or any fingerprint
// within the Hamming threshold. A hit increments hit_count and refreshes
// last_hit_at. TTL-expired entries are dropped and count as misses.
func (c *Cache) Lookup(ctx context.Context, fp phash.Fingerprint) (phash.Verdict, bool) {
	c.mu.Lock()
	now := c.now()

	entry, ok := c.entries[fp]
	if ok && entry.Expired(now) {
		c.removeLocked(entry)
		entry, ok = nil, false
	}
	if !ok {
		entry = c.scanNearLocked(fp, now)
		ok = entry != nil
	}
	if !ok {
		c.misses++
		c.mu.Unlock()
		return phash.Verdict{}, false
	}

	entry.HitCount++
	entry.LastHitAt = now
	c.hits++
	verdict := entry.Verdict
	snapshot := *entry
	c.mu.Unlock()

	if c.repo != nil {
		if err := c.repo.Touch(ctx, snapshot.Fingerprint, &snapshot); err != nil {
			log.Printf("phash cache touch error fp=%016x: %v", uint64(snapshot.Fingerprint), err)
		}
	}
	return verdict, true
}

// Store records the verdict for a freshly analyzed fingerprint. Concurrent
// stores for the same fingerprint are last-writer-wins with hit-count
// merge. Capacity overflow evicts the least recently hit entry.
func (c *Cache) Store(ctx context.Context, fp phash.Fingerprint, captureID string, verdict phash.Verdict) {
	c.mu.Lock()
	now := c.now()
	entry := &phash.Entry{
		Fingerprint:             fp,
		HammingBucket:           fp.Bucket(),
		RepresentativeCaptureID: captureID,
		Verdict:                 verdict,
		CreatedAt:               now,
		LastHitAt:               now,
		ExpiresAt:               now.Add(c.ttl),
	}
	if prev, ok := c.entries[fp]; ok {
		entry.HitCount = prev.HitCount
		c.removeLocked(prev)
	}
	c.insertLocked(entry)

	var evicted *phash.Entry
	if len(c.entries) > c.capacity {
		evicted = c.evictLRULocked()
	}
	snapshot := *entry
	c.mu.Unlock()

	if c.repo != nil {
		if err := c.repo.Upsert(ctx, &snapshot); err != nil {
			log.Printf("phash cache upsert error fp=%016x: %v", uint64(fp), err)
		}
		if evicted != nil {
			if err := c.repo.Delete(ctx, evicted.Fingerprint); err != nil {
				log.Printf("phash cache evict delete error fp=%016x: %v", uint64(evicted.Fingerprint), err)
			}
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// scanNearLocked walks the popcount buckets reachable within the Hamming
// threshold looking for the closest live entry.
func (c *Cache) scanNearLocked(fp phash.Fingerprint, now time.Time) *phash.Entry {
	pop := fp.Bucket()
	lo, hi := pop-c.threshold, pop+c.threshold
	if lo < 0 {
		lo = 0
	}
	if hi > 64 {
		hi = 64
	}

	var best *phash.Entry
	bestDist := c.threshold + 1
	var expired []*phash.Entry
	for b := lo; b <= hi; b++ {
		for _, e := range c.buckets[b] {
			if e.Expired(now) {
				expired = append(expired, e)
				continue
			}
			if d := fp.Distance(e.Fingerprint); d < bestDist {
				best, bestDist = e, d
			}
		}
	}
	for _, e := range expired {
		c.removeLocked(e)
	}
	return best
}

func (c *Cache) insertLocked(e *phash.Entry) {
	c.entries[e.Fingerprint] = e
	c.buckets[e.Fingerprint.Bucket()][e.Fingerprint] = e
}

func (c *Cache) removeLocked(e *phash.Entry) {
	delete(c.entries, e.Fingerprint)
	delete(c.buckets[e.Fingerprint.Bucket()], e.Fingerprint)
}

func (c *Cache) evictLRULocked() *phash.Entry {
	var oldest *phash.Entry
	for _, e := range c.entries {
		if oldest == nil || e.LastHitAt.Before(oldest.LastHitAt) {
			oldest = e
		}
	}
	if oldest != nil {
		c.removeLocked(oldest)
	}
	return oldest
}
