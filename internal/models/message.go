package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMessagePair is returned when a message pair holds both or neither
// of the assistant answer and the error message.
var ErrInvalidMessagePair = errors.New("exactly one of assistant_message or error_message must be set")

// MessagePair is one user/assistant exchange of a thread. It is built once the
// stream reaches its terminal event and never changes afterwards.
type MessagePair struct {
	ID               uuid.UUID      `json:"id"`
	UserMessage      string         `json:"user_message"`
	AssistantMessage *string        `json:"assistant_message"`
	ErrorMessage     *string        `json:"error_message"`
	GeneratedQueries []string       `json:"generated_queries"`
	ChartData        *ChartData     `json:"chart_data,omitempty"`
	ChartMetadata    *ChartMetadata `json:"chart_metadata,omitempty"`
	ModelURI         *string        `json:"model_uri,omitempty"`
	Events           []StreamEvent  `json:"events,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
}

// Validate enforces the exactly-one-of rule on answer and error.
func (p *MessagePair) Validate() error {
	if (p.AssistantMessage != nil) == (p.ErrorMessage != nil) {
		return ErrInvalidMessagePair
	}
	return nil
}

// Succeeded reports whether the exchange produced an answer.
func (p *MessagePair) Succeeded() bool { return p.AssistantMessage != nil }

// Answer returns the assistant text, or "" for failed exchanges.
func (p *MessagePair) Answer() string {
	if p.AssistantMessage == nil {
		return ""
	}
	return *p.AssistantMessage
}

// Text returns whichever of the answer or the error message is set.
func (p *MessagePair) Text() string {
	if p.AssistantMessage != nil {
		return *p.AssistantMessage
	}
	if p.ErrorMessage != nil {
		return *p.ErrorMessage
	}
	return ""
}

// UnmarshalJSON decodes a pair and rejects it when it breaks the
// exactly-one-of rule.
func (p *MessagePair) UnmarshalJSON(data []byte) error {
	type alias MessagePair
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	pair := MessagePair(out)
	if err := pair.Validate(); err != nil {
		return err
	}
	*p = pair
	return nil
}

// ChartType names a supported visualization.
type ChartType string

const (
	ChartBar           ChartType = "bar"
	ChartHorizontalBar ChartType = "horizontal_bar"
	ChartLine          ChartType = "line"
	ChartPie           ChartType = "pie"
	ChartScatter       ChartType = "scatter"
)

// Supported reports whether the chart type can be rendered.
func (c ChartType) Supported() bool {
	switch c {
	case ChartBar, ChartHorizontalBar, ChartLine, ChartPie, ChartScatter:
		return true
	}
	return false
}

// ChartData holds the rows of a generated chart. Each row is a JSON object.
type ChartData struct {
	Data []Value `json:"data"`
}

// ChartMetadata describes how ChartData should be plotted.
type ChartMetadata struct {
	ChartType  ChartType `json:"chart_type"`
	Title      string    `json:"title"`
	XAxis      string    `json:"x_axis"`
	XAxisTitle string    `json:"x_axis_title"`
	YAxis      string    `json:"y_axis"`
	YAxisTitle string    `json:"y_axis_title"`
	Label      *string   `json:"label,omitempty"`
	LabelTitle *string   `json:"label_title,omitempty"`
}
