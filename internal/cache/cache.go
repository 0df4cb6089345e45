// Package cache holds the Redis-backed board content cache and the
// invalidation protocol that keeps it safe under concurrent reads and writes.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"cardboard/api/internal/store"
)

// BoardCache stores assembled board snapshots under a short TTL. A missing
// entry is always safe: readers fall through to the store and repopulate.
type BoardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *BoardCache {
	return &BoardCache{rdb: rdb, ttl: ttl}
}

func boardKey(boardID int64) string {
	return "cache:board:" + strconv.FormatInt(boardID, 10)
}

// Get returns the cached snapshot for the board, if present. Redis errors
// degrade to a miss; the caller recomputes from the store either way.
func (c *BoardCache) Get(ctx context.Context, boardID int64) (store.BoardContent, bool) {
	data, err := c.rdb.Get(ctx, boardKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: get board %d: %v", boardID, err)
		}
		return store.BoardContent{}, false
	}

	var content store.BoardContent
	if err := json.Unmarshal(data, &content); err != nil {
		log.Printf("cache: corrupt entry for board %d, evicting: %v", boardID, err)
		_ = c.rdb.Del(ctx, boardKey(boardID)).Err()
		return store.BoardContent{}, false
	}
	return content, true
}

// Put stores a snapshot. Best-effort: failures are logged and swallowed, a
// reader that could not populate the cache just stays on the store path.
func (c *BoardCache) Put(ctx context.Context, boardID int64, content store.BoardContent) {
	data, err := json.Marshal(content)
	if err != nil {
		log.Printf("cache: marshal board %d: %v", boardID, err)
		return
	}
	if err := c.rdb.Set(ctx, boardKey(boardID), data, c.ttl).Err(); err != nil {
		log.Printf("cache: put board %d: %v", boardID, err)
	}
}

// Delete removes the board's entry. Deleting an absent key is a no-op.
func (c *BoardCache) Delete(ctx context.Context, boardID int64) error {
	return c.rdb.Del(ctx, boardKey(boardID)).Err()
}
