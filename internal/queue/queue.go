// Package queue provides the Redis-backed message transport for mutation
// events: an at-least-once work queue with bounded redelivery and a
// quarantine list, and a delay queue that delivers payloads only after their
// due time (the TTL/dead-letter pattern).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Message is the envelope carried on the wire. Attempts counts deliveries
// that ended in a handler error.
type Message struct {
	ID       string          `json:"id"`
	Attempts int             `json:"attempts"`
	Body     json.RawMessage `json:"body"`
}

// Handler processes one message body. Returning an error requeues the
// message until its attempt budget runs out.
type Handler func(ctx context.Context, body json.RawMessage) error

// Queue is an at-least-once Redis list queue. Failed deliveries are pushed
// back to the end of the line; after maxAttempts failures the message lands
// on the quarantine list for manual inspection.
type Queue struct {
	rdb         *redis.Client
	key         string
	quarantine  string
	maxAttempts int
}

func New(rdb *redis.Client, name string, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Queue{
		rdb:         rdb,
		key:         name,
		quarantine:  name + ":quarantine",
		maxAttempts: maxAttempts,
	}
}

// Publish appends a payload to the queue.
func (q *Queue) Publish(ctx context.Context, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return q.push(ctx, Message{ID: uuid.NewString(), Body: raw})
}

func (q *Queue) push(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// Consume pops and handles messages until the context is cancelled. Handler
// errors requeue the message with an incremented attempt count; messages that
// exhaust their budget move to the quarantine list.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := q.rdb.BRPop(ctx, time.Second, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("queue %s: pop failed: %v", q.key, err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) != 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			log.Printf("queue %s: dropping undecodable message: %v", q.key, err)
			continue
		}

		if err := handler(ctx, msg.Body); err != nil {
			q.retry(ctx, msg, err)
		}
	}
}

// HandleOnce pops at most one message and handles it. Returns false when the
// queue is empty. Intended for tests and drain loops.
func (q *Queue) HandleOnce(ctx context.Context, handler Handler) (bool, error) {
	res, err := q.rdb.RPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pop message: %w", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(res), &msg); err != nil {
		return true, fmt.Errorf("decode message: %w", err)
	}
	if err := handler(ctx, msg.Body); err != nil {
		q.retry(ctx, msg, err)
	}
	return true, nil
}

func (q *Queue) retry(ctx context.Context, msg Message, cause error) {
	msg.Attempts++
	if msg.Attempts >= q.maxAttempts {
		log.Printf("queue %s: message %s quarantined after %d attempts: %v", q.key, msg.ID, msg.Attempts, cause)
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := q.rdb.LPush(ctx, q.quarantine, data).Err(); err != nil {
			log.Printf("queue %s: quarantine push failed: %v", q.key, err)
		}
		return
	}

	log.Printf("queue %s: message %s requeued (attempt %d): %v", q.key, msg.ID, msg.Attempts, cause)
	if err := q.push(ctx, msg); err != nil {
		log.Printf("queue %s: requeue failed: %v", q.key, err)
	}
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *Queue) QuarantineLen(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.quarantine).Result()
}
