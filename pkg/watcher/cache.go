package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSeenTTL bounds how long a hash stays in the fast path. The
// file-log table is authoritative; the cache only saves a query for
// recently redelivered files.
const DefaultSeenTTL = 72 * time.Hour

// SeenCache fronts the file-log dedup check with redis. Cache failures
// degrade to the database check, never to reprocessing.
type SeenCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewSeenCache wraps a redis client. ttl <= 0 uses DefaultSeenTTL.
func NewSeenCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *SeenCache {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &SeenCache{client: client, ttl: ttl, log: log.With("component", "seencache")}
}

func seenKey(storeID, hash string) string {
	return "ingest:seen:" + storeID + ":" + hash
}

// Seen reports whether the hash was recently processed for the store.
func (c *SeenCache) Seen(ctx context.Context, storeID, hash string) bool {
	n, err := c.client.Exists(ctx, seenKey(storeID, hash)).Result()
	if err != nil {
		c.log.Warn("seen lookup failed", "error", err)
		return false
	}
	return n > 0
}

// Mark remembers a processed hash.
func (c *SeenCache) Mark(ctx context.Context, storeID, hash string) {
	if err := c.client.Set(ctx, seenKey(storeID, hash), 1, c.ttl).Err(); err != nil {
		c.log.Warn("seen mark failed", "error", err)
	}
}
