package store

import (
	"context"
	"errors"

	"chatbot/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a specific record is not found, including
	// threads that were deleted.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
)

// Store defines the persistence operations of the backend.
type Store interface {
	// User operations
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, email, hashedPassword string) (*models.User, error)

	// Thread operations. Deleted threads behave as missing.
	CreateThread(ctx context.Context, account int64, title string) (*models.Thread, error)
	GetThread(ctx context.Context, id uuid.UUID, account int64) (*models.Thread, error)
	ListThreads(ctx context.Context, account int64) ([]models.Thread, error)
	// DeleteThread tombstones the thread and drops its checkpoints.
	DeleteThread(ctx context.Context, id uuid.UUID, account int64) error

	// Message pair operations
	CreateMessagePair(ctx context.Context, threadID uuid.UUID, pair *models.MessagePair) error
	ListMessagePairs(ctx context.Context, threadID uuid.UUID) ([]models.MessagePair, error)
	// GetMessagePair returns a pair of a live thread owned by account.
	GetMessagePair(ctx context.Context, id uuid.UUID, account int64) (*models.MessagePair, error)

	// Checkpoint operations
	AddCheckpoint(ctx context.Context, cp models.Checkpoint) error
	ListCheckpoints(ctx context.Context, threadID uuid.UUID) ([]models.Checkpoint, error)

	// Feedback operations
	UpsertFeedback(ctx context.Context, fb models.FeedbackRecord) error
	GetFeedback(ctx context.Context, pairID uuid.UUID) (*models.FeedbackRecord, error)
}
