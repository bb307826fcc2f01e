package services

import (
	"context"
	"errors"
	"fmt"

	"chatbot/internal/models"
	"chatbot/internal/store"

	"github.com/google/uuid"
)

// ErrInvalidFeedback is returned for ratings other than 0 and 1.
var ErrInvalidFeedback = errors.New("rating must be 0 or 1")

// FeedbackService stores ratings of message pairs.
type FeedbackService struct {
	store store.Store
}

func NewFeedbackService(s store.Store) *FeedbackService {
	return &FeedbackService{store: s}
}

// SubmitFeedback replaces the rating of pairID. The pair must belong to a live
// thread of account, otherwise store.ErrNotFound is returned.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, account int64, pairID uuid.UUID, fb models.Feedback) error {
	if !fb.Rating.Valid() {
		return ErrInvalidFeedback
	}
	if _, err := s.store.GetMessagePair(ctx, pairID, account); err != nil {
		return err
	}
	err := s.store.UpsertFeedback(ctx, models.FeedbackRecord{
		MessagePairID: pairID,
		Account:       account,
		Rating:        fb.Rating,
		Comment:       fb.Comment,
	})
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}
	return nil
}

// GetFeedback returns the stored rating of pairID.
func (s *FeedbackService) GetFeedback(ctx context.Context, account int64, pairID uuid.UUID) (*models.FeedbackRecord, error) {
	if _, err := s.store.GetMessagePair(ctx, pairID, account); err != nil {
		return nil, err
	}
	return s.store.GetFeedback(ctx, pairID)
}
