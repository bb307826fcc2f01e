package services

import (
	"context"
	"fmt"
	"strings"

	"chatbot/internal/models"
	"chatbot/internal/store"

	"github.com/google/uuid"
)

// defaultThreadTitle names threads created without a title.
const defaultThreadTitle = "Conversa"

// ThreadService manages the threads of an account.
type ThreadService struct {
	store store.Store
}

func NewThreadService(s store.Store) *ThreadService {
	return &ThreadService{store: s}
}

func (s *ThreadService) CreateThread(ctx context.Context, account int64, title string) (*models.Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultThreadTitle
	}
	t, err := s.store.CreateThread(ctx, account, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return t, nil
}

// ListThreads returns the live threads of account, oldest first.
func (s *ThreadService) ListThreads(ctx context.Context, account int64) ([]models.Thread, error) {
	threads, err := s.store.ListThreads(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// DeleteThread removes the thread and the assistant memory attached to it.
// Returns store.ErrNotFound when the thread is missing or not owned by account.
func (s *ThreadService) DeleteThread(ctx context.Context, account int64, id uuid.UUID) error {
	return s.store.DeleteThread(ctx, id, account)
}
