package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
)

// redisTier is the optional DurableTier backend, using Redis's native TTL
// instead of the SQLite tier's lazy-plus-scheduled sweep. CompactToSize and
// Sweep are no-ops here — eviction is Redis's job once a TTL is set.
type redisTier struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTier wraps an existing Redis client. Every key is namespaced
// under prefix (default "embedcache:") and set with ttl (zero disables
// expiry, relying on CompactToSize/Sweep being called externally — which
// this backend cannot service, so a zero TTL is discouraged).
func NewRedisTier(client *redis.Client, prefix string, ttl time.Duration) DurableTier {
	if prefix == "" {
		prefix = "embedcache:"
	}
	return &redisTier{client: client, prefix: prefix, ttl: ttl}
}

type redisPayload struct {
	Model          string    `json:"model"`
	Dimensions     int       `json:"dimensions"`
	Vector         []float32 `json:"vector"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

func (t *redisTier) Get(ctx context.Context, key string) (*Record, bool, error) {
	data, err := t.client.Get(ctx, t.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embeddings: redis get: %w", err)
	}

	var payload redisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("embeddings: decoding redis payload: %w", err)
	}

	payload.LastAccessedAt = time.Now().UTC()
	if refreshed, err := json.Marshal(payload); err == nil {
		t.client.Set(ctx, t.prefix+key, refreshed, t.ttl)
	}

	return &Record{
		Key:            key,
		Model:          payload.Model,
		Dimensions:     payload.Dimensions,
		Vector:         payload.Vector,
		CreatedAt:      payload.CreatedAt,
		LastAccessedAt: payload.LastAccessedAt,
	}, true, nil
}

func (t *redisTier) Put(ctx context.Context, rec Record) error {
	payload := redisPayload{
		Model:          rec.Model,
		Dimensions:     rec.Dimensions,
		Vector:         rec.Vector,
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("embeddings: encoding redis payload: %w", err)
	}
	if err := t.client.Set(ctx, t.prefix+rec.Key, data, t.ttl).Err(); err != nil {
		return fmt.Errorf("embeddings: redis set: %w", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself once TTL is set on Put.
func (t *redisTier) Sweep(ctx context.Context, olderThan time.Duration) (int, error) { return 0, nil }

// CompactToSize is a no-op: Redis has no byte-budget concept here; use
// maxmemory-policy on the Redis side instead.
func (t *redisTier) CompactToSize(ctx context.Context, maxBytes int64) (int, error) { return 0, nil }

func (t *redisTier) Stats(ctx context.Context) (int, int64, error) {
	var cursor uint64
	var count int
	var bytes int64
	for {
		keys, next, err := t.client.Scan(ctx, cursor, t.prefix+"*", 100).Result()
		if err != nil {
			return 0, 0, fmt.Errorf("embeddings: redis scan: %w", err)
		}
		count += len(keys)
		for _, k := range keys {
			if n, err := t.client.StrLen(ctx, k).Result(); err == nil {
				bytes += n
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, bytes, nil
}
