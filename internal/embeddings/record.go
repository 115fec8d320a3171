package embeddings

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Record is one cached embedding, shared across the in-process LRU and the
// durable tier — both store the same shape, per the component design's
// "same schema as EmbeddingRecord" requirement.
type Record struct {
	Key            string
	Model          string
	Vector         []float32
	Dimensions     int
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

func (r *Record) byteSize() int64 {
	return int64(len(r.Vector) * 4)
}

// CacheKey derives the lookup key: SHA-256(model || "\x00" || normalized
// text). Normalization is whitespace-trimmed, lower-cased — enough to
// collapse trivial formatting differences without attempting real NLP
// normalization.
func CacheKey(model, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
