package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cardboard/api/internal/order"
	"cardboard/api/internal/store"
	"cardboard/api/internal/syncer"
)

// fullWindow asks the store for every sibling key at once.
const fullWindow = 1 << 30

type CreateCardInput struct {
	ColumnID int64  `json:"columnId"`
	Content  string `json:"content"`
}

func (s *Service) CreateCard(ctx context.Context, userID int64, in CreateCardInput) (store.Card, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" || len(content) > maxContentLen {
		return store.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	column, err := s.store.GetColumn(ctx, in.ColumnID)
	if store.IsNotFound(err) {
		return store.Card{}, domainError(http.StatusNotFound, "NOT_FOUND", "column not found", nil)
	}
	if err != nil {
		return store.Card{}, fmt.Errorf("load column: %w", err)
	}
	if err := s.authorize(ctx, column.BoardID, userID); err != nil {
		return store.Card{}, err
	}

	last, err := s.store.LastCardKey(ctx, column.ID)
	if err != nil {
		return store.Card{}, fmt.Errorf("load last card key: %w", err)
	}

	card := store.Card{
		ColumnID:  column.ID,
		BoardID:   column.BoardID,
		Content:   content,
		OrderKey:  order.Append(last),
		UpdatedBy: userID,
	}
	id, err := s.store.InsertCard(ctx, card)
	if err != nil {
		return store.Card{}, fmt.Errorf("create card: %w", err)
	}
	card.ID = id

	s.inval.Invalidate(ctx, column.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: column.BoardID, EntityType: syncer.EntityCard, EntityID: id})
	return card, nil
}

func (s *Service) UpdateCardContent(ctx context.Context, userID, cardID int64, content string) error {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxContentLen {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	card, err := s.loadCard(ctx, cardID, userID)
	if err != nil {
		return err
	}

	if err := s.store.UpdateCardContent(ctx, cardID, content, userID); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "card not found", nil)
		}
		return fmt.Errorf("update card: %w", err)
	}

	s.inval.Invalidate(ctx, card.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: card.BoardID, EntityType: syncer.EntityCard, EntityID: cardID})
	return nil
}

func (s *Service) DeleteCard(ctx context.Context, userID, cardID int64) error {
	card, err := s.loadCard(ctx, cardID, userID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "card not found", nil)
		}
		return fmt.Errorf("delete card: %w", err)
	}

	s.inval.Invalidate(ctx, card.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: card.BoardID, EntityType: syncer.EntityCard, EntityID: cardID})
	return nil
}

// MoveCard reorders a card within its column by a signed offset, positive
// meaning toward the end. A pure reorder changes nothing the search index
// stores, so no event is emitted.
func (s *Service) MoveCard(ctx context.Context, userID, cardID int64, offset int) error {
	if offset == 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be non-zero", nil)
	}

	card, err := s.loadCard(ctx, cardID, userID)
	if err != nil {
		return err
	}

	key, err := s.moveKey(ctx, offset,
		func(ctx context.Context, size int) ([]float64, error) {
			return s.store.CardKeyWindow(ctx, card.ColumnID, card.ID, size, offset > 0)
		},
		func(ctx context.Context) error {
			return s.store.RenumberCards(ctx, card.ColumnID)
		})
	if err != nil {
		return err
	}

	if err := s.store.SetCardKey(ctx, cardID, key); err != nil {
		return fmt.Errorf("set card key: %w", err)
	}

	s.inval.Invalidate(ctx, card.BoardID)
	return nil
}

// TransferCard appends a card to the end of another column on the same board.
func (s *Service) TransferCard(ctx context.Context, userID, cardID, toColumnID int64) error {
	card, err := s.loadCard(ctx, cardID, userID)
	if err != nil {
		return err
	}

	target, err := s.store.GetColumn(ctx, toColumnID)
	if store.IsNotFound(err) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "column not found", nil)
	}
	if err != nil {
		return fmt.Errorf("load target column: %w", err)
	}
	if target.BoardID != card.BoardID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot transfer a card to another board", nil)
	}
	if target.ID == card.ColumnID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "card is already in that column", nil)
	}

	last, err := s.store.LastCardKey(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("load last card key: %w", err)
	}
	if err := s.store.TransferCard(ctx, cardID, target.ID, order.Append(last)); err != nil {
		return fmt.Errorf("transfer card: %w", err)
	}

	s.inval.Invalidate(ctx, card.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: card.BoardID, EntityType: syncer.EntityCard, EntityID: cardID})
	return nil
}

// loadCard fetches a card and checks the caller may touch its board.
func (s *Service) loadCard(ctx context.Context, cardID, userID int64) (store.Card, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if store.IsNotFound(err) {
		return store.Card{}, domainError(http.StatusNotFound, "NOT_FOUND", "card not found", nil)
	}
	if err != nil {
		return store.Card{}, fmt.Errorf("load card: %w", err)
	}
	if err := s.authorize(ctx, card.BoardID, userID); err != nil {
		return store.Card{}, err
	}
	return card, nil
}

// moveKey computes a new order key for a move. When neighboring keys have
// converged it retries with the full sibling window, and as a last resort
// renumbers the siblings and tries once more.
func (s *Service) moveKey(ctx context.Context, offset int,
	fetch func(ctx context.Context, size int) ([]float64, error),
	renumber func(ctx context.Context) error) (float64, error) {

	steps := offset
	if steps < 0 {
		steps = -steps
	}

	for _, size := range []int{steps + 2, fullWindow} {
		window, err := fetch(ctx, size)
		if err != nil {
			return 0, fmt.Errorf("load key window: %w", err)
		}
		key, err := order.KeyForMove(window, offset)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, order.ErrKeyExhausted) {
			return 0, err
		}
	}

	if err := renumber(ctx); err != nil {
		return 0, fmt.Errorf("renumber: %w", err)
	}
	window, err := fetch(ctx, steps+2)
	if err != nil {
		return 0, fmt.Errorf("load key window: %w", err)
	}
	key, err := order.KeyForMove(window, offset)
	if err != nil {
		return 0, fmt.Errorf("compute key after renumber: %w", err)
	}
	return key, nil
}
