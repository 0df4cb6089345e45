package board

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cardboard/api/internal/store"
	"cardboard/api/internal/syncer"
)

const maxTagLen = 60

type AddTagInput struct {
	CardID  int64  `json:"cardId"`
	Color   string `json:"color"`
	Content string `json:"content"`
}

// AddTag attaches a tag to a card. Tag events carry the card's ID so the
// syncer refreshes the card document the tag is searchable through.
func (s *Service) AddTag(ctx context.Context, userID int64, in AddTagInput) (store.Tag, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" || len(content) > maxTagLen {
		return store.Tag{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tag content is required", nil)
	}

	card, err := s.loadCard(ctx, in.CardID, userID)
	if err != nil {
		return store.Tag{}, err
	}

	tag := store.Tag{
		CardID:  card.ID,
		BoardID: card.BoardID,
		Color:   in.Color,
		Content: content,
	}
	id, err := s.store.InsertTag(ctx, tag)
	if err != nil {
		return store.Tag{}, fmt.Errorf("add tag: %w", err)
	}
	tag.ID = id

	s.inval.Invalidate(ctx, card.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: card.BoardID, EntityType: syncer.EntityTag, EntityID: card.ID})
	return tag, nil
}

func (s *Service) DeleteTag(ctx context.Context, userID, tagID int64) error {
	tag, err := s.store.GetTag(ctx, tagID)
	if store.IsNotFound(err) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "tag not found", nil)
	}
	if err != nil {
		return fmt.Errorf("load tag: %w", err)
	}
	if err := s.authorize(ctx, tag.BoardID, userID); err != nil {
		return err
	}

	if err := s.store.DeleteTag(ctx, tagID); err != nil {
		if store.IsNotFound(err) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "tag not found", nil)
		}
		return fmt.Errorf("delete tag: %w", err)
	}

	s.inval.Invalidate(ctx, tag.BoardID)
	s.events.Emit(ctx, syncer.Event{BoardID: tag.BoardID, EntityType: syncer.EntityTag, EntityID: tag.CardID})
	return nil
}
