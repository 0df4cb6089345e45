package board

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cardboard/api/internal/order"
	"cardboard/api/internal/store"
	"cardboard/api/internal/syncer"
)

type CreateColumnInput struct {
	BoardID int64  `json:"boardId"`
	Title   string `json:"title"`
}

func (s *Service) CreateColumn(ctx context.Context, userID int64, in CreateColumnInput) (store.Column, error) {
	if err := s.authorize(ctx, in.BoardID, userID); err != nil {
		return store.Column{}, err
	}
	if !validTitle(in.Title) {
		return store.Column{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	last, err := s.store.LastColumnKey(ctx, in.BoardID)
	if err != nil {
		return store.Column{}, fmt.Errorf("load last column key: %w", err)
	}

	column := store.Column{
		BoardID:  in.BoardID,
		Title:    strings.TrimSpace(in.Title),
		OrderKey: order.Append(last),
	}
	id, err := s.store.InsertColumn(ctx, column)
	if err != nil {
		return store.Column{}, fmt.Errorf("create column: %w", err)
	}
	column.ID = id

	s.inval.Invalidate(ctx, in.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: in.BoardID, EntityType: syncer.EntityColumn, EntityID: id})
	return column, nil
}

func (s *Service) RenameColumn(ctx context.Context, userID, columnID int64, title string) error {
	column, err := s.loadColumn(ctx, columnID, userID)
	if err != nil {
		return err
	}
	if !validTitle(title) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	if err := s.store.RenameColumn(ctx, columnID, strings.TrimSpace(title)); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "column not found", nil)
		}
		return fmt.Errorf("rename column: %w", err)
	}

	s.inval.Invalidate(ctx, column.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: column.BoardID, EntityType: syncer.EntityColumn, EntityID: columnID})
	return nil
}

// DeleteColumn removes the column and everything in it. The stale card
// documents left in the search index are swept by the debounced resync the
// emitted event arms.
func (s *Service) DeleteColumn(ctx context.Context, userID, columnID int64) error {
	column, err := s.loadColumn(ctx, columnID, userID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteColumn(ctx, columnID); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "column not found", nil)
		}
		return fmt.Errorf("delete column: %w", err)
	}

	s.inval.Invalidate(ctx, column.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: column.BoardID, EntityType: syncer.EntityColumn, EntityID: columnID})
	return nil
}

// MoveColumn reorders a column within its board. Like card moves, no event.
func (s *Service) MoveColumn(ctx context.Context, userID, columnID int64, offset int) error {
	if offset == 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be non-zero", nil)
	}

	column, err := s.loadColumn(ctx, columnID, userID)
	if err != nil {
		return err
	}

	key, err := s.moveKey(ctx, offset,
		func(ctx context.Context, size int) ([]float64, error) {
			return s.store.ColumnKeyWindow(ctx, column.BoardID, column.ID, size, offset > 0)
		},
		func(ctx context.Context) error {
			return s.store.RenumberColumns(ctx, column.BoardID)
		})
	if err != nil {
		return err
	}

	if err := s.store.SetColumnKey(ctx, columnID, key); err != nil {
		return fmt.Errorf("set column key: %w", err)
	}

	s.inval.Invalidate(ctx, column.BoardID)
	return nil
}

func (s *Service) loadColumn(ctx context.Context, columnID, userID int64) (store.Column, error) {
	column, err := s.store.GetColumn(ctx, columnID)
	if store.IsNotFound(err) {
		return store.Column{}, domainError(http.StatusNotFound, "NOT_FOUND", "column not found", nil)
	}
	if err != nil {
		return store.Column{}, fmt.Errorf("load column: %w", err)
	}
	if err := s.authorize(ctx, column.BoardID, userID); err != nil {
		return store.Column{}, err
	}
	return column, nil
}
