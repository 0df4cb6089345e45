// Package syncer keeps the search index in step with the database. It runs
// two repair speeds side by side: a partial path that applies each mutation
// event to the affected document within seconds, and a debounced full resync
// that rebuilds a board's documents from scratch once a burst of activity
// settles.
package syncer

import (
	"context"

	log "github.com/sirupsen/logrus"

	"cardboard/api/internal/queue"
)

// EntityType names the kind of record a mutation touched.
type EntityType string

const (
	EntityBoard  EntityType = "BOARD"
	EntityColumn EntityType = "COLUMN"
	EntityCard   EntityType = "CARD"
	EntityTag    EntityType = "TAG"
)

// Queue names on the Redis side.
const (
	MutationQueueName = "sync:mutations"
	ResyncQueueName   = "board_resyncs"
)

// Event announces a committed mutation. Tag events carry the parent card's ID
// in EntityID so the consumer refreshes the card document the tag lives on.
type Event struct {
	BoardID    int64      `json:"boardId"`
	EntityType EntityType `json:"entityType"`
	EntityID   int64      `json:"entityId"`
}

// Emitter publishes mutation events. Emission is best-effort: the write
// already committed, and the debounced resync repairs anything a lost event
// would have covered.
type Emitter struct {
	q *queue.Queue
}

func NewEmitter(q *queue.Queue) *Emitter {
	return &Emitter{q: q}
}

func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if err := e.q.Publish(ctx, ev); err != nil {
		log.Printf("syncer: emit %s/%d for board %d failed: %v", ev.EntityType, ev.EntityID, ev.BoardID, err)
	}
}
