package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"cardboard/api/internal/queue"
	"cardboard/api/internal/search"
	"cardboard/api/internal/store"
)

// dataStore is the slice of the database layer the syncer reads from.
type dataStore interface {
	GetBoard(ctx context.Context, boardID int64) (store.Board, error)
	GetCard(ctx context.Context, cardID int64) (store.Card, error)
	ListTagsByCard(ctx context.Context, cardID int64) ([]store.Tag, error)
	GetBoardContent(ctx context.Context, boardID int64) (store.BoardContent, error)
}

// Pipeline consumes mutation events and resync jobs and applies them to the
// search index.
type Pipeline struct {
	store     dataStore
	index     search.Index
	debouncer *Debouncer
	events    *queue.Queue
	resyncs   *queue.Delayed
}

func NewPipeline(ds dataStore, index search.Index, debouncer *Debouncer, events *queue.Queue, resyncs *queue.Delayed) *Pipeline {
	return &Pipeline{
		store:     ds,
		index:     index,
		debouncer: debouncer,
		events:    events,
		resyncs:   resyncs,
	}
}

// Run blocks until the context is cancelled, consuming the event queue and
// polling the resync schedule.
func (p *Pipeline) Run(ctx context.Context, pollInterval time.Duration) error {
	go p.resyncs.Run(ctx, pollInterval, p.handleResync)
	return p.events.Consume(ctx, p.handleEvent)
}

// handleEvent applies one mutation event. A handler error requeues the event;
// arming the debounce window is best-effort since the partial repair already
// landed.
func (p *Pipeline) handleEvent(ctx context.Context, body json.RawMessage) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Printf("syncer: dropping undecodable event: %v", err)
		return nil
	}

	var err error
	switch ev.EntityType {
	case EntityCard, EntityTag:
		err = p.syncCard(ctx, ev.EntityID)
	case EntityBoard, EntityColumn:
		err = p.syncBoard(ctx, ev.BoardID)
	default:
		log.Printf("syncer: ignoring event with unknown entity type %q", ev.EntityType)
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.debouncer.Arm(ctx, ev.BoardID); err != nil {
		log.Printf("syncer: arm debounce for board %d failed: %v", ev.BoardID, err)
	}
	return nil
}

// syncCard refreshes one card document from the database. A card that no
// longer exists means a delete event, or an update event that a later delete
// overtook; either way the document goes.
func (p *Pipeline) syncCard(ctx context.Context, cardID int64) error {
	card, err := p.store.GetCard(ctx, cardID)
	if store.IsNotFound(err) {
		if err := p.index.DeleteByID(search.CardDocID(cardID)); err != nil {
			return fmt.Errorf("delete card doc %d: %w", cardID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load card %d: %w", cardID, err)
	}

	tags, err := p.store.ListTagsByCard(ctx, cardID)
	if err != nil {
		return fmt.Errorf("load tags for card %d: %w", cardID, err)
	}

	if err := p.index.Upsert(cardDocument(card, tags)); err != nil {
		return fmt.Errorf("upsert card doc %d: %w", cardID, err)
	}
	return nil
}

// syncBoard refreshes the board's own document. A vanished board takes all of
// its documents with it.
func (p *Pipeline) syncBoard(ctx context.Context, boardID int64) error {
	board, err := p.store.GetBoard(ctx, boardID)
	if store.IsNotFound(err) {
		if err := p.index.DeleteByBoard(boardID); err != nil {
			return fmt.Errorf("purge board %d: %w", boardID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load board %d: %w", boardID, err)
	}

	if err := p.index.Upsert(boardDocument(board)); err != nil {
		return fmt.Errorf("upsert board doc %d: %w", boardID, err)
	}
	return nil
}

func (p *Pipeline) handleResync(ctx context.Context, body json.RawMessage) {
	var job resyncJob
	if err := json.Unmarshal(body, &job); err != nil {
		log.Printf("syncer: dropping undecodable resync job: %v", err)
		return
	}
	if err := p.FullResync(ctx, job.BoardID); err != nil {
		log.Printf("syncer: full resync of board %d failed: %v", job.BoardID, err)
	}
}

// FullResync rebuilds every document of a board from the database. The board
// is purged first so documents for deleted cards do not linger.
func (p *Pipeline) FullResync(ctx context.Context, boardID int64) error {
	acquired, err := p.debouncer.Fire(ctx, boardID)
	if err != nil {
		return err
	}
	if !acquired {
		log.Printf("syncer: board %d resync already in flight, skipping", boardID)
		return nil
	}

	content, err := p.store.GetBoardContent(ctx, boardID)
	if store.IsNotFound(err) {
		return p.index.DeleteByBoard(boardID)
	}
	if err != nil {
		return fmt.Errorf("load board %d content: %w", boardID, err)
	}

	if err := p.index.DeleteByBoard(boardID); err != nil {
		return fmt.Errorf("purge board %d: %w", boardID, err)
	}
	if err := p.index.UpsertAll(boardDocuments(content)); err != nil {
		return fmt.Errorf("reindex board %d: %w", boardID, err)
	}
	return nil
}

func cardDocument(card store.Card, tags []store.Tag) search.Document {
	doc := search.Document{
		ID:       search.CardDocID(card.ID),
		Kind:     search.KindCard,
		BoardID:  card.BoardID,
		ColumnID: card.ColumnID,
		CardID:   card.ID,
		Content:  card.Content,
	}
	for _, tag := range tags {
		doc.Tags = append(doc.Tags, tag.Content)
	}
	return doc
}

func boardDocument(board store.Board) search.Document {
	return search.Document{
		ID:      search.BoardDocID(board.ID),
		Kind:    search.KindBoard,
		BoardID: board.ID,
		Content: board.Title,
	}
}

func boardDocuments(content store.BoardContent) []search.Document {
	docs := []search.Document{boardDocument(content.Board)}
	for _, column := range content.Columns {
		for _, card := range column.Cards {
			docs = append(docs, cardDocument(card.Card, card.Tags))
		}
	}
	return docs
}
