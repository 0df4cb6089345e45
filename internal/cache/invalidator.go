package cache

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"cardboard/api/internal/queue"
)

// Invalidator implements the double delayed delete. The first delete happens
// synchronously on the write path; the second is scheduled a short delay out
// to clear any stale entry written by a read that was already in flight when
// the first delete ran.
//
// Every path here is logged-and-swallowed: the cache TTL is the correctness
// backstop and invalidation must never fail a write.
type Invalidator struct {
	cache   *BoardCache
	delayed *queue.Delayed
	delay   time.Duration
}

type deleteJob struct {
	BoardID int64 `json:"boardId"`
}

// DeleteQueueName is the delay queue carrying second-delete jobs.
const DeleteQueueName = "cache_deletes"

func NewInvalidator(cache *BoardCache, delayed *queue.Delayed, delay time.Duration) *Invalidator {
	return &Invalidator{cache: cache, delayed: delayed, delay: delay}
}

// Invalidate deletes the board's cache entry now and schedules the second
// delete. Safe to call repeatedly; deletes are idempotent.
func (i *Invalidator) Invalidate(ctx context.Context, boardID int64) {
	if err := i.cache.Delete(ctx, boardID); err != nil {
		log.Printf("invalidate: immediate delete for board %d: %v", boardID, err)
	}
	if err := i.delayed.Schedule(ctx, deleteJob{BoardID: boardID}, time.Now().Add(i.delay)); err != nil {
		log.Printf("invalidate: scheduling second delete for board %d: %v", boardID, err)
	}
}

// Run consumes due second-delete jobs until the context is cancelled.
func (i *Invalidator) Run(ctx context.Context, pollInterval time.Duration) {
	i.delayed.Run(ctx, pollInterval, func(ctx context.Context, body json.RawMessage) {
		var job deleteJob
		if err := json.Unmarshal(body, &job); err != nil {
			log.Printf("invalidate: undecodable delete job: %v", err)
			return
		}
		if err := i.cache.Delete(ctx, job.BoardID); err != nil {
			log.Printf("invalidate: delayed delete for board %d: %v", job.BoardID, err)
		}
	})
}
