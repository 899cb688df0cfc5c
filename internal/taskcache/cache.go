// Package taskcache memoizes terminal task results in Redis so repeated
// status polls for a finished task stop hitting the vendor. The cache is
// strictly an optimization: with no Redis, or a broken one, every lookup
// misses and the caller queries upstream.
package taskcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores normalized terminal task results keyed by provider and task
// id. If rdb is nil every operation is a no-op.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func taskKey(provider, taskID string) string {
	return fmt.Sprintf("muse:task:%s:%s", provider, taskID)
}

// Get returns the cached result body, or nil on a miss. Redis errors are
// treated as misses.
func (c *Cache) Get(ctx context.Context, provider, taskID string) []byte {
	if c == nil || c.rdb == nil {
		return nil
	}
	body, err := c.rdb.Get(ctx, taskKey(provider, taskID)).Bytes()
	if err != nil {
		return nil
	}
	return body
}

// Put stores the result body for a terminal task. Errors are swallowed; a
// failed write just means the next poll goes upstream again.
func (c *Cache) Put(ctx context.Context, provider, taskID string, body []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Set(ctx, taskKey(provider, taskID), body, c.ttl)
}
