package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// TokenRequest defines the credentials accepted by the token endpoint. The
// endpoint takes them either form-encoded or as a JSON body.
type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateThreadRequest defines the body for creating a thread.
type CreateThreadRequest struct {
	Title string `json:"title"`
}

// UserMessage is the body of a streaming message request. The id is generated
// client-side for every request.
type UserMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// NewUserMessage wraps content with a fresh message id.
func NewUserMessage(content string) UserMessage {
	return UserMessage{ID: uuid.NewString(), Content: content}
}

// Rating is the binary feedback score of a message pair.
type Rating int

const (
	RatingDown Rating = 0
	RatingUp   Rating = 1
)

// Valid reports whether r is one of the accepted scores.
func (r Rating) Valid() bool {
	return r == RatingDown || r == RatingUp
}

// Feedback defines the body of the feedback endpoint.
type Feedback struct {
	Rating  Rating `json:"rating"`
	Comment string `json:"comment"`
}

// --- Response Structs ---

// TokenResponse defines the response body for successful authentication.
type TokenResponse struct {
	Access string `json:"access"`
}

// Thread is a conversation container owned by an account.
type Thread struct {
	ID        uuid.UUID `json:"id"`
	Account   int64     `json:"account"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
