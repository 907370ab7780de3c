// Package cache is an in-process decision cache: identical task
// descriptions within the TTL reuse the previous routing decision
// instead of re-running the cascade.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Decisions caches serialized routing decisions keyed by a hash of the
// task description.
type Decisions struct {
	c   *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// New creates a decision cache. maxCostBytes bounds the total size of
// cached values.
func New(maxCostBytes int64, ttl time.Duration) (*Decisions, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Decisions{c: c, ttl: ttl}, nil
}

// Key hashes a task description into a cache key.
func Key(description string) string {
	sum := sha256.Sum256([]byte(description))
	return "route:" + hex.EncodeToString(sum[:8])
}

func (d *Decisions) Get(key string) ([]byte, bool) {
	return d.c.Get(key)
}

func (d *Decisions) Set(key string, value []byte) {
	d.c.SetWithTTL(key, value, int64(len(value)), d.ttl)
}

func (d *Decisions) Close() {
	d.c.Close()
}
