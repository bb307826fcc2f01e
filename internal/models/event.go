package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventType is the kind of a streaming protocol event.
type EventType string

const (
	EventToolCall    EventType = "tool_call"
	EventToolOutput  EventType = "tool_output"
	EventFinalAnswer EventType = "final_answer"
	EventError       EventType = "error"
	EventComplete    EventType = "complete"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventToolCall, EventToolOutput, EventFinalAnswer, EventError, EventComplete:
		return true
	}
	return false
}

// StreamEvent is one line of the message stream.
type StreamEvent struct {
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the payload of a StreamEvent. Which fields are set depends
// on the event type:
//
//	tool_call     content (optional narrative), tool_calls
//	tool_output   tool_outputs
//	final_answer  content
//	error         error_details (object with at least "message")
//	complete      run_id
type EventData struct {
	Content      *string      `json:"content,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolOutputs  []ToolOutput `json:"tool_outputs,omitempty"`
	ErrorDetails *Value       `json:"error_details,omitempty"`
	RunID        *uuid.UUID   `json:"run_id,omitempty"`
}

// UnmarshalJSON rejects events whose type is missing or unknown.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	type alias StreamEvent
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if !out.Type.Valid() {
		return fmt.Errorf("models: unknown stream event type %q", out.Type)
	}
	*e = StreamEvent(out)
	return nil
}

// ErrorMessage returns error_details.message when it is present and a string.
func (d EventData) ErrorMessage() (string, bool) {
	if d.ErrorDetails == nil {
		return "", false
	}
	return d.ErrorDetails.GetString("message")
}

// ToolCall is one tool invocation announced by a tool_call event.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args Value  `json:"args"`
}

// ToolStatus is the outcome of a tool invocation.
type ToolStatus string

const (
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// ToolOutput is the result of one tool invocation.
type ToolOutput struct {
	Status     ToolStatus `json:"status"`
	ToolCallID string     `json:"tool_call_id"`
	ToolName   string     `json:"tool_name"`
	Output     string     `json:"output"`
	Metadata   *Value     `json:"metadata,omitempty"`
}

// Truncated reports whether the backend cut the output short.
func (o ToolOutput) Truncated() bool {
	if o.Metadata == nil {
		return false
	}
	f, ok := o.Metadata.Get("is_truncated")
	if !ok {
		return false
	}
	b, _ := f.AsBool()
	return b
}

// --- Event constructors ---

func NewToolCallEvent(content string, calls ...ToolCall) StreamEvent {
	data := EventData{ToolCalls: calls}
	if content != "" {
		data.Content = &content
	}
	return StreamEvent{Type: EventToolCall, Data: data}
}

func NewToolOutputEvent(outputs ...ToolOutput) StreamEvent {
	return StreamEvent{Type: EventToolOutput, Data: EventData{ToolOutputs: outputs}}
}

func NewFinalAnswerEvent(content string) StreamEvent {
	return StreamEvent{Type: EventFinalAnswer, Data: EventData{Content: &content}}
}

// NewErrorEvent builds an error event whose details hold only message.
func NewErrorEvent(message string) StreamEvent {
	details := Object(Field{Key: "message", Value: String(message)})
	return StreamEvent{Type: EventError, Data: EventData{ErrorDetails: &details}}
}

func NewCompleteEvent(runID uuid.UUID) StreamEvent {
	return StreamEvent{Type: EventComplete, Data: EventData{RunID: &runID}}
}
