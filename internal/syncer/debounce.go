package syncer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"cardboard/api/internal/queue"
)

// Debouncer coalesces full-resync demand per board. The first event on a
// quiet board opens a window and schedules one resync at its far edge;
// events landing while the window is open neither extend it nor schedule
// more work, so a board under constant churn is still rebuilt once per
// window rather than never.
type Debouncer struct {
	rdb      *redis.Client
	delayed  *queue.Delayed
	window   time.Duration
	leaseTTL time.Duration
}

type resyncJob struct {
	BoardID int64 `json:"boardId"`
}

func NewDebouncer(rdb *redis.Client, delayed *queue.Delayed, window, leaseTTL time.Duration) *Debouncer {
	return &Debouncer{rdb: rdb, delayed: delayed, window: window, leaseTTL: leaseTTL}
}

func debounceKey(boardID int64) string {
	return "sync:debounce:" + strconv.FormatInt(boardID, 10)
}

func resyncLeaseKey(boardID int64) string {
	return "sync:resync:" + strconv.FormatInt(boardID, 10)
}

// Arm notes activity on a board. Only the event that opens the window
// schedules a resync.
func (d *Debouncer) Arm(ctx context.Context, boardID int64) error {
	opened, err := d.rdb.SetNX(ctx, debounceKey(boardID), 1, d.window).Result()
	if err != nil {
		return fmt.Errorf("open debounce window: %w", err)
	}
	if !opened {
		return nil
	}
	if err := d.delayed.Schedule(ctx, resyncJob{BoardID: boardID}, time.Now().Add(d.window)); err != nil {
		return fmt.Errorf("schedule resync: %w", err)
	}
	return nil
}

// Fire closes the board's window and tries to take the resync lease. It
// returns false when another worker holds the lease; the caller skips the
// rebuild in that case. The lease is never released early: it lapses by TTL,
// which is shorter than the window, so the next scheduled resync always finds
// it gone.
func (d *Debouncer) Fire(ctx context.Context, boardID int64) (bool, error) {
	if err := d.rdb.Del(ctx, debounceKey(boardID)).Err(); err != nil {
		return false, fmt.Errorf("close debounce window: %w", err)
	}
	acquired, err := d.rdb.SetNX(ctx, resyncLeaseKey(boardID), 1, d.leaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire resync lease: %w", err)
	}
	return acquired, nil
}
