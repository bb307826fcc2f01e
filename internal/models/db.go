package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder in the database.
type User struct {
	ID             int64     `db:"id"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Checkpoint is the assistant memory left behind by one completed run of a
// thread. Checkpoints are hard-deleted together with their thread.
type Checkpoint struct {
	ThreadID    uuid.UUID `db:"thread_id"`
	RunID       uuid.UUID `db:"run_id"`
	UserMessage string    `db:"user_message"`
	Answer      string    `db:"answer"`
	CreatedAt   time.Time `db:"created_at"`
}

// FeedbackRecord is a stored rating for a message pair.
type FeedbackRecord struct {
	MessagePairID uuid.UUID `db:"message_pair_id"`
	Account       int64     `db:"account"`
	Rating        Rating    `db:"rating"`
	Comment       string    `db:"comment"`
	UpdatedAt     time.Time `db:"updated_at"`
}
