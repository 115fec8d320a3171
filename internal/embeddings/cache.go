// Package embeddings implements a three-tier embedding cache:
// lookup (in-process LRU, durable table, remote API) plus the remote
// embedding providers it falls back to.
package embeddings

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultBatchSize is the component design's default B: up to 100
// documents grouped per remote embedding call.
const DefaultBatchSize = 100

// DefaultTTL is how long a durable-tier entry is considered fresh before a
// read treats it as a miss.
const DefaultTTL = 30 * 24 * time.Hour

// HealthLevel summarizes cache effectiveness for external health reporting.
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

// Stats is the cache-statistics snapshot the component design names:
// memory_hits, persistent_hits, remote_calls, total_requests plus derived
// hit rates and total token usage.
type Stats struct {
	MemoryHits     int64
	PersistentHits int64
	RemoteCalls    int64
	TotalRequests  int64
	TokensTotal    int64
}

func (s Stats) MemoryHitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.MemoryHits) / float64(s.TotalRequests)
}

func (s Stats) OverallHitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.MemoryHits+s.PersistentHits) / float64(s.TotalRequests)
}

// Cache orchestrates the three lookup tiers: an in-process LRU, a durable
// tier (SQLite by default, optionally Redis), and a remote Embedder as the
// last resort. A miss all the way to tier 3 writes back through tiers 1
// and 2 atomically (both updated before Get returns).
type Cache struct {
	lru      *lru
	durable  DurableTier
	embedder Embedder
	ttl      time.Duration
	maxBytes int64
	batch    int

	memoryHits     atomic.Int64
	persistentHits atomic.Int64
	remoteCalls    atomic.Int64
	totalRequests  atomic.Int64
	tokensTotal    atomic.Int64
}

// Config configures a Cache's tunables; zero values fall back to the
// component design's defaults.
type Config struct {
	LRUCapacity int
	TTL         time.Duration
	MaxBytes    int64
	BatchSize   int
}

// NewCache builds a Cache over durable and embedder.
func NewCache(durable DurableTier, embedder Embedder, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Cache{
		lru:      newLRU(cfg.LRUCapacity),
		durable:  durable,
		embedder: embedder,
		ttl:      cfg.TTL,
		maxBytes: cfg.MaxBytes,
		batch:    cfg.BatchSize,
	}
}

// Get returns the embedding for text under model, probing tier 1, then
// tier 2 (honoring TTL), then falling back to the remote embedder and
// writing the result back into both tiers.
func (c *Cache) Get(ctx context.Context, model, text string) ([]float32, error) {
	c.totalRequests.Add(1)
	key := CacheKey(model, text)

	if rec, ok := c.lru.get(key); ok {
		c.memoryHits.Add(1)
		return rec.Vector, nil
	}

	if c.durable != nil {
		rec, found, err := c.durable.Get(ctx, key)
		if err == nil && found && time.Since(rec.CreatedAt) < c.ttl {
			c.persistentHits.Add(1)
			c.lru.put(*rec)
			return rec.Vector, nil
		}
	}

	c.remoteCalls.Add(1)
	vectors, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	vector := vectors[0]
	c.tokensTotal.Add(int64(len(text) / 4)) // rough token estimate for the stats counter

	now := time.Now().UTC()
	rec := Record{Key: key, Model: model, Vector: vector, Dimensions: len(vector), CreatedAt: now, LastAccessedAt: now}
	c.lru.put(rec)
	if c.durable != nil {
		_ = c.durable.Put(ctx, rec)
	}
	return vector, nil
}

// BatchGet resolves texts against the cache, grouping any remaining misses
// into remote calls of up to Config.BatchSize documents each.
func (c *Cache) BatchGet(ctx context.Context, model string, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		c.totalRequests.Add(1)
		key := CacheKey(model, text)
		if rec, ok := c.lru.get(key); ok {
			c.memoryHits.Add(1)
			results[i] = rec.Vector
			continue
		}
		if c.durable != nil {
			if rec, found, err := c.durable.Get(ctx, key); err == nil && found && time.Since(rec.CreatedAt) < c.ttl {
				c.persistentHits.Add(1)
				c.lru.put(*rec)
				results[i] = rec.Vector
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	for start := 0; start < len(missTexts); start += c.batch {
		end := start + c.batch
		if end > len(missTexts) {
			end = len(missTexts)
		}
		group := missTexts[start:end]
		c.remoteCalls.Add(1)

		vectors, err := c.embedder.Embed(ctx, group)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		for j, vector := range vectors {
			idx := missIdx[start+j]
			key := CacheKey(model, group[j])
			c.tokensTotal.Add(int64(len(group[j]) / 4))
			rec := Record{Key: key, Model: model, Vector: vector, Dimensions: len(vector), CreatedAt: now, LastAccessedAt: now}
			c.lru.put(rec)
			if c.durable != nil {
				_ = c.durable.Put(ctx, rec)
			}
			results[idx] = vector
		}
	}

	return results, nil
}

// Stats returns a snapshot of cache-effectiveness counters.
func (c *Cache) Stats() Stats {
	return Stats{
		MemoryHits:     c.memoryHits.Load(),
		PersistentHits: c.persistentHits.Load(),
		RemoteCalls:    c.remoteCalls.Load(),
		TotalRequests:  c.totalRequests.Load(),
		TokensTotal:    c.tokensTotal.Load(),
	}
}

// Health derives a HealthLevel from overall hit rate and the durable
// tier's size against Config.MaxBytes: healthy when hit rate >= 80% and
// under the byte cap, warning when exactly one threshold is breached,
// critical when both are.
func (c *Cache) Health(ctx context.Context) HealthLevel {
	stats := c.Stats()
	hitRateOK := stats.TotalRequests == 0 || stats.OverallHitRate() >= 0.8

	sizeOK := true
	if c.durable != nil && c.maxBytes > 0 {
		if _, bytes, err := c.durable.Stats(ctx); err == nil {
			sizeOK = bytes <= c.maxBytes
		}
	}

	switch {
	case hitRateOK && sizeOK:
		return HealthHealthy
	case hitRateOK != sizeOK:
		return HealthWarning
	default:
		return HealthCritical
	}
}

// Sweep runs the durable tier's TTL eviction and, if MaxBytes is set, its
// size-bound compaction — the scheduled half of the component design's
// "lazy plus scheduled" TTL eviction policy.
func (c *Cache) Sweep(ctx context.Context) (evicted int, err error) {
	if c.durable == nil {
		return 0, nil
	}
	n, err := c.durable.Sweep(ctx, c.ttl)
	if err != nil {
		return n, err
	}
	evicted = n
	if c.maxBytes > 0 {
		m, err := c.durable.CompactToSize(ctx, c.maxBytes)
		if err != nil {
			return evicted, err
		}
		evicted += m
	}
	return evicted, nil
}
