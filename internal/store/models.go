package store

import "time"

// Board is the top-level container. Every board has exactly one owner; the
// owner is always present in the membership set.
type Board struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Color     string    `json:"color"`
	Type      string    `json:"type"`
	OwnerID   int64     `json:"ownerId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Column belongs to a board. OrderKey is strictly increasing left-to-right
// within the board.
type Column struct {
	ID       int64   `json:"id"`
	BoardID  int64   `json:"boardId"`
	Title    string  `json:"title"`
	OrderKey float64 `json:"orderKey"`
}

// Card belongs to a column. OrderKey is strictly increasing top-to-bottom
// within the column.
type Card struct {
	ID        int64     `json:"id"`
	ColumnID  int64     `json:"columnId"`
	BoardID   int64     `json:"boardId"`
	Content   string    `json:"content"`
	OrderKey  float64   `json:"orderKey"`
	HasTag    bool      `json:"hasTag"`
	UpdatedBy int64     `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tag belongs to a card and dies with it.
type Tag struct {
	ID      int64  `json:"id"`
	CardID  int64  `json:"cardId"`
	BoardID int64  `json:"boardId"`
	Color   string `json:"color"`
	Content string `json:"content"`
}

// CardContent is a card with its tags, as served to readers.
type CardContent struct {
	Card
	Tags []Tag `json:"tags"`
}

// ColumnContent is a column with its cards in visual order.
type ColumnContent struct {
	Column
	Cards []CardContent `json:"cards"`
}

// BoardContent is the fully assembled snapshot of one board. It is what the
// board cache stores and what readers receive.
type BoardContent struct {
	Board   Board           `json:"board"`
	Columns []ColumnContent `json:"columns"`
}
