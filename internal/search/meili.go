package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxCards = "cardboard_cards"

// deleteScanLimit bounds how many stale documents a single board purge
// fetches per round trip.
const deleteScanLimit = 1000

// Meili implements Searcher and Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index.
// The client keeps retrying in the background if the initial connection fails.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCards,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxCards, err)
	}

	index := m.client.Index(idxCards)
	filterable := []interface{}{"boardId", "kind"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxCards, err)
	}
	searchable := []string{"content", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxCards, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs a full-text query scoped to the given boards.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if len(q.BoardIDs) == 0 {
		return nil, 0, nil
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		IndexUID:              idxCards,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		Filter:                []string{boardFilter(q.BoardIDs)},
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
		ShowRankingScore:      true,
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func boardFilter(boardIDs []int64) string {
	parts := make([]string, len(boardIDs))
	for i, id := range boardIDs {
		parts[i] = fmt.Sprintf("boardId = %d", id)
	}
	return strings.Join(parts, " OR ")
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:      decodeString(hit, "id"),
		Kind:    DocKind(decodeString(hit, "kind")),
		BoardID: decodeInt64(hit, "boardId"),
		CardID:  decodeInt64(hit, "cardId"),
		Content: decodeString(hit, "content"),
		Snippet: firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt64(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	// Meilisearch may round-trip numbers as floats.
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int64(f)
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// Upsert adds or replaces one document in the index.
func (m *Meili) Upsert(doc Document) error {
	_, err := m.client.Index(idxCards).AddDocuments([]Document{doc}, nil)
	return err
}

// UpsertAll bulk-indexes documents.
func (m *Meili) UpsertAll(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCards).AddDocuments(docs, nil)
	return err
}

// DeleteByID removes one document from the index.
func (m *Meili) DeleteByID(id string) error {
	_, err := m.client.Index(idxCards).DeleteDocument(id, nil)
	return err
}

// DeleteByBoard removes every document belonging to a board, including the
// board's own entry. Used before a full re-index and when a board is deleted.
// The scan loops for boards larger than one page. Deletes are queued as tasks
// on the Meilisearch side, so a rescan can surface documents whose removal is
// still pending; the loop stops once a pass finds no document it has not
// already deleted.
func (m *Meili) DeleteByBoard(boardID int64) error {
	scan := func() ([]string, error) {
		resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
			Queries: []*meili.SearchRequest{{
				IndexUID: idxCards,
				Query:    "",
				Limit:    deleteScanLimit,
				Filter:   []string{fmt.Sprintf("boardId = %d", boardID)},
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("meilisearch scan board %d: %w", boardID, err)
		}

		var ids []string
		for _, r := range resp.Results {
			for _, hit := range r.Hits {
				if id := decodeString(hit, "id"); id != "" {
					ids = append(ids, id)
				}
			}
		}
		return ids, nil
	}
	del := func(id string) error {
		if _, err := m.client.Index(idxCards).DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("meilisearch delete %s: %w", id, err)
		}
		return nil
	}
	return deleteAllMatches(scan, del)
}

// deleteAllMatches deletes every ID the scan surfaces, rescanning until a
// pass yields nothing new. IDs already deleted in an earlier pass are skipped
// so pending removals never stall the loop.
func deleteAllMatches(scan func() ([]string, error), del func(id string) error) error {
	deleted := make(map[string]struct{})
	for {
		ids, err := scan()
		if err != nil {
			return err
		}

		fresh := 0
		for _, id := range ids {
			if _, done := deleted[id]; done {
				continue
			}
			if err := del(id); err != nil {
				return err
			}
			deleted[id] = struct{}{}
			fresh++
		}
		if fresh == 0 {
			return nil
		}
	}
}
