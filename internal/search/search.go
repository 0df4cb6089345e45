package search

import "strconv"

// DocKind identifies what a search document represents.
type DocKind string

const (
	KindCard  DocKind = "card"
	KindBoard DocKind = "board"
)

// CardDocID builds the search document ID for a card.
func CardDocID(cardID int64) string {
	return "card_" + strconv.FormatInt(cardID, 10)
}

// BoardDocID builds the search document ID for a board's own entry.
func BoardDocID(boardID int64) string {
	return "kanban_" + strconv.FormatInt(boardID, 10)
}

// Document is the unit stored in the search index. Cards and boards share
// one index; Kind and the ID prefix tell them apart.
type Document struct {
	ID       string   `json:"id"`
	Kind     DocKind  `json:"kind"`
	BoardID  int64    `json:"boardId"`
	ColumnID int64    `json:"columnId,omitempty"`
	CardID   int64    `json:"cardId,omitempty"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string  `json:"id"`
	Kind    DocKind `json:"kind"`
	BoardID int64   `json:"boardId"`
	CardID  int64   `json:"cardId,omitempty"`
	Content string  `json:"content"`
	Snippet string  `json:"snippet"`
}

// Query describes a search request. BoardIDs scopes results to the boards
// the caller may see; an empty slice matches nothing.
type Query struct {
	Text     string
	BoardIDs []int64
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Index can push documents into the search index and remove them.
type Index interface {
	Upsert(doc Document) error
	UpsertAll(docs []Document) error
	DeleteByID(id string) error
	DeleteByBoard(boardID int64) error
}
