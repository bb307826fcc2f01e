package conversation

import (
	"time"

	"chatbot/internal/models"

	"github.com/google/uuid"
)

// RecordParams holds the fields of a message pair under construction.
type RecordParams struct {
	// ID is the record id. A nil id is replaced by a fresh one.
	ID               uuid.UUID
	UserMessage      string
	AssistantMessage *string
	ErrorMessage     *string
	GeneratedQueries []string
	ChartData        *models.ChartData
	ChartMetadata    *models.ChartMetadata
	ModelURI         *string
	Events           []models.StreamEvent
	CreatedAt        *time.Time
}

// Build assembles an immutable message pair. It fails with
// models.ErrInvalidMessagePair unless exactly one of the assistant answer and
// the error message is set. Slices and pointed-to strings are copied.
func Build(p RecordParams) (*models.MessagePair, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	pair := &models.MessagePair{
		ID:               id,
		UserMessage:      p.UserMessage,
		AssistantMessage: cloneString(p.AssistantMessage),
		ErrorMessage:     cloneString(p.ErrorMessage),
		ChartData:        p.ChartData,
		ChartMetadata:    p.ChartMetadata,
		ModelURI:         cloneString(p.ModelURI),
		CreatedAt:        p.CreatedAt,
	}
	if p.GeneratedQueries != nil {
		pair.GeneratedQueries = append([]string{}, p.GeneratedQueries...)
	}
	if p.Events != nil {
		pair.Events = append([]models.StreamEvent{}, p.Events...)
	}
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	return pair, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
