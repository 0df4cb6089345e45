package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Delayed is a sorted-set delay queue: members become visible only once their
// due time has passed. Scheduling is fire-and-forget; a poller claims due
// members with ZREM so concurrent workers never deliver the same member twice.
type Delayed struct {
	rdb *redis.Client
	key string
}

func NewDelayed(rdb *redis.Client, name string) *Delayed {
	return &Delayed{rdb: rdb, key: "delay:" + name}
}

type delayedEnvelope struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// Schedule enqueues a payload due at the given time. Distinct calls with the
// same payload produce distinct members; consumers must tolerate duplicates.
func (d *Delayed) Schedule(ctx context.Context, body any, due time.Time) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal delayed body: %w", err)
	}
	member, err := json.Marshal(delayedEnvelope{ID: uuid.NewString(), Body: raw})
	if err != nil {
		return fmt.Errorf("marshal delayed envelope: %w", err)
	}

	z := redis.Z{Score: float64(due.UnixMilli()), Member: member}
	if err := d.rdb.ZAdd(ctx, d.key, z).Err(); err != nil {
		return fmt.Errorf("schedule delayed: %w", err)
	}
	return nil
}

// PopDue claims every member whose due time has passed and returns its body.
func (d *Delayed) PopDue(ctx context.Context, now time.Time) ([]json.RawMessage, error) {
	members, err := d.rdb.ZRangeByScore(ctx, d.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 128,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range due: %w", err)
	}

	bodies := make([]json.RawMessage, 0, len(members))
	for _, member := range members {
		removed, err := d.rdb.ZRem(ctx, d.key, member).Result()
		if err != nil {
			return bodies, fmt.Errorf("claim due member: %w", err)
		}
		if removed == 0 {
			// Another worker claimed it first.
			continue
		}
		var env delayedEnvelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			log.Printf("delay %s: dropping undecodable member: %v", d.key, err)
			continue
		}
		bodies = append(bodies, env.Body)
	}
	return bodies, nil
}

// Run polls for due members until the context is cancelled, passing each body
// to the handler. Handler failures are the handler's problem: delayed
// delivery is best-effort and the callers all have a TTL or resync backstop.
func (d *Delayed) Run(ctx context.Context, interval time.Duration, handler func(ctx context.Context, body json.RawMessage)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bodies, err := d.PopDue(ctx, time.Now())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("delay %s: poll failed: %v", d.key, err)
				continue
			}
			for _, body := range bodies {
				handler(ctx, body)
			}
		}
	}
}

// Len reports how many members are waiting, due or not.
func (d *Delayed) Len(ctx context.Context) (int64, error) {
	return d.rdb.ZCard(ctx, d.key).Result()
}
