// Package board is the mutation gateway for boards, columns, cards and tags.
// Every write runs the same pipeline: authorize the caller against the board,
// validate the input, commit to the database, invalidate the board's cache
// entry, and emit a mutation event for the search syncer when the change is
// visible to search.
package board

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cardboard/api/internal/cache"
	"cardboard/api/internal/search"
	"cardboard/api/internal/store"
	"cardboard/api/internal/syncer"
)

const (
	maxTitleLen   = 120
	maxContentLen = 4000
)

var allowedBoardTypes = map[string]struct{}{
	"KANBAN": {},
	"NOTE":   {},
}

type dataStore interface {
	CountMembership(ctx context.Context, boardID, userID int64) (int, error)
	InsertBoard(ctx context.Context, board store.Board) (int64, error)
	GetBoard(ctx context.Context, boardID int64) (store.Board, error)
	UpdateBoard(ctx context.Context, boardID int64, title, color string) error
	DeleteBoard(ctx context.Context, boardID int64) error
	AddMember(ctx context.Context, boardID, userID int64) error
	RemoveMember(ctx context.Context, boardID, userID int64) error
	ListBoardIDsByUser(ctx context.Context, userID int64) ([]int64, error)

	InsertColumn(ctx context.Context, column store.Column) (int64, error)
	GetColumn(ctx context.Context, columnID int64) (store.Column, error)
	RenameColumn(ctx context.Context, columnID int64, title string) error
	DeleteColumn(ctx context.Context, columnID int64) error
	LastColumnKey(ctx context.Context, boardID int64) (*float64, error)
	ColumnKeyWindow(ctx context.Context, boardID, columnID int64, size int, down bool) ([]float64, error)
	SetColumnKey(ctx context.Context, columnID int64, key float64) error
	RenumberColumns(ctx context.Context, boardID int64) error

	InsertCard(ctx context.Context, card store.Card) (int64, error)
	GetCard(ctx context.Context, cardID int64) (store.Card, error)
	UpdateCardContent(ctx context.Context, cardID int64, content string, updatedBy int64) error
	DeleteCard(ctx context.Context, cardID int64) error
	LastCardKey(ctx context.Context, columnID int64) (*float64, error)
	CardKeyWindow(ctx context.Context, columnID, cardID int64, size int, down bool) ([]float64, error)
	SetCardKey(ctx context.Context, cardID int64, key float64) error
	TransferCard(ctx context.Context, cardID, columnID int64, key float64) error
	RenumberCards(ctx context.Context, columnID int64) error

	InsertTag(ctx context.Context, tag store.Tag) (int64, error)
	GetTag(ctx context.Context, tagID int64) (store.Tag, error)
	DeleteTag(ctx context.Context, tagID int64) error

	GetBoardContent(ctx context.Context, boardID int64) (store.BoardContent, error)
}

type boardCache interface {
	Get(ctx context.Context, boardID int64) (store.BoardContent, bool)
	Put(ctx context.Context, boardID int64, content store.BoardContent)
}

type invalidator interface {
	Invalidate(ctx context.Context, boardID int64)
}

type emitter interface {
	Emit(ctx context.Context, ev syncer.Event)
}

type searcher interface {
	Search(q search.Query) ([]search.Result, int, error)
}

type Service struct {
	store    dataStore
	cache    boardCache
	inval    invalidator
	events   emitter
	searcher searcher
}

func New(dataStore *store.PostgresStore, boardCache *cache.BoardCache, inval *cache.Invalidator, events *syncer.Emitter, s search.Searcher) *Service {
	return &Service{
		store:    dataStore,
		cache:    boardCache,
		inval:    inval,
		events:   events,
		searcher: s,
	}
}

// authorize rejects callers who are not members of the board.
func (s *Service) authorize(ctx context.Context, boardID, userID int64) error {
	n, err := s.store.CountMembership(ctx, boardID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if n == 0 {
		return domainError(http.StatusForbidden, "FORBIDDEN", "not a member of this board", nil)
	}
	return nil
}

// requireOwner guards the operations only the board's owner may run.
func (s *Service) requireOwner(ctx context.Context, boardID, userID int64) (store.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if store.IsNotFound(err) {
		return store.Board{}, domainError(http.StatusNotFound, "NOT_FOUND", "board not found", nil)
	}
	if err != nil {
		return store.Board{}, fmt.Errorf("load board: %w", err)
	}
	if board.OwnerID != userID {
		return store.Board{}, domainError(http.StatusForbidden, "FORBIDDEN", "only the board owner may do this", nil)
	}
	return board, nil
}

func validTitle(title string) bool {
	title = strings.TrimSpace(title)
	return title != "" && len(title) <= maxTitleLen
}

// ---- boards ----

type CreateBoardInput struct {
	Title string `json:"title"`
	Color string `json:"color"`
	Type  string `json:"type"`
}

func (s *Service) CreateBoard(ctx context.Context, userID int64, in CreateBoardInput) (store.Board, error) {
	if !validTitle(in.Title) {
		return store.Board{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if in.Type == "" {
		in.Type = "KANBAN"
	}
	if _, ok := allowedBoardTypes[in.Type]; !ok {
		return store.Board{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid board type", nil)
	}

	board := store.Board{
		Title:   strings.TrimSpace(in.Title),
		Color:   in.Color,
		Type:    in.Type,
		OwnerID: userID,
	}
	id, err := s.store.InsertBoard(ctx, board)
	if err != nil {
		return store.Board{}, fmt.Errorf("create board: %w", err)
	}
	board.ID = id

	s.inval.Invalidate(ctx, id)
	s.events.Emit(ctx, syncer.Event{BoardID: id, EntityType: syncer.EntityBoard, EntityID: id})
	return board, nil
}

type UpdateBoardInput struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

func (s *Service) UpdateBoard(ctx context.Context, userID, boardID int64, in UpdateBoardInput) error {
	if err := s.authorize(ctx, boardID, userID); err != nil {
		return err
	}
	if !validTitle(in.Title) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	if err := s.store.UpdateBoard(ctx, boardID, strings.TrimSpace(in.Title), in.Color); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "board not found", nil)
		}
		return fmt.Errorf("update board: %w", err)
	}

	s.inval.Invalidate(ctx, boardID)
	s.events.Emit(ctx, syncer.Event{BoardID: boardID, EntityType: syncer.EntityBoard, EntityID: boardID})
	return nil
}

func (s *Service) DeleteBoard(ctx context.Context, userID, boardID int64) error {
	if _, err := s.requireOwner(ctx, boardID, userID); err != nil {
		return err
	}

	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "board not found", nil)
		}
		return fmt.Errorf("delete board: %w", err)
	}

	s.inval.Invalidate(ctx, boardID)
	s.events.Emit(ctx, syncer.Event{BoardID: boardID, EntityType: syncer.EntityBoard, EntityID: boardID})
	return nil
}

func (s *Service) ShareBoard(ctx context.Context, userID, boardID, memberID int64) error {
	if _, err := s.requireOwner(ctx, boardID, userID); err != nil {
		return err
	}
	if err := s.store.AddMember(ctx, boardID, memberID); err != nil {
		return fmt.Errorf("share board: %w", err)
	}
	s.inval.Invalidate(ctx, boardID)
	return nil
}

func (s *Service) UnshareBoard(ctx context.Context, userID, boardID, memberID int64) error {
	board, err := s.requireOwner(ctx, boardID, userID)
	if err != nil {
		return err
	}
	if memberID == board.OwnerID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot remove the board owner", nil)
	}
	if err := s.store.RemoveMember(ctx, boardID, memberID); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "membership not found", nil)
		}
		return fmt.Errorf("unshare board: %w", err)
	}
	s.inval.Invalidate(ctx, boardID)
	return nil
}

// ---- read paths ----

// Content returns the board snapshot, serving from cache when possible. The
// cache write is best-effort; a failed put just means the next reader hits
// the database again.
func (s *Service) Content(ctx context.Context, userID, boardID int64) (store.BoardContent, error) {
	if err := s.authorize(ctx, boardID, userID); err != nil {
		return store.BoardContent{}, err
	}

	if content, ok := s.cache.Get(ctx, boardID); ok {
		return content, nil
	}

	content, err := s.store.GetBoardContent(ctx, boardID)
	if store.IsNotFound(err) {
		return store.BoardContent{}, domainError(http.StatusNotFound, "NOT_FOUND", "board not found", nil)
	}
	if err != nil {
		return store.BoardContent{}, fmt.Errorf("load board content: %w", err)
	}

	s.cache.Put(ctx, boardID, content)
	return content, nil
}

// Search runs a full-text query over every board the user belongs to.
func (s *Service) Search(ctx context.Context, userID int64, text string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "query text is required", nil)
	}

	boardIDs, err := s.store.ListBoardIDsByUser(ctx, userID)
	if err != nil {
		return search.Response{}, fmt.Errorf("resolve user boards: %w", err)
	}
	if len(boardIDs) == 0 {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	results, total, err := s.searcher.Search(search.Query{
		Text:     text,
		BoardIDs: boardIDs,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return search.Response{}, fmt.Errorf("search: %w", err)
	}
	if results == nil {
		results = []search.Result{}
	}
	return search.Response{Results: results, Total: total, Query: text}, nil
}
