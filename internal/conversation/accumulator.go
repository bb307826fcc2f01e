// Package conversation folds streamed protocol events into message pairs and
// derives the presentation views of a finished pair.
package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"chatbot/internal/models"

	"github.com/google/uuid"
)

// sqlQueryArg is the tool argument that carries a generated SQL query.
const sqlQueryArg = "sql_query"

var (
	// ErrAccumulatorClosed is returned when an event arrives after complete.
	ErrAccumulatorClosed = errors.New("conversation: event received after complete")
	// ErrUnknownEvent is returned for events with an unrecognized type.
	ErrUnknownEvent = errors.New("conversation: unknown event type")
)

// Status is the pending visual state of an exchange that is still streaming.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeding
	StatusFailing
)

func (s Status) String() string {
	switch s {
	case StatusSucceeding:
		return "succeeding"
	case StatusFailing:
		return "failing"
	default:
		return "pending"
	}
}

// StepKind classifies a Step for rendering.
type StepKind int

const (
	// StepNarrative is the free text that may precede a batch of tool calls.
	StepNarrative StepKind = iota
	// StepToolCall is one tool invocation with its arguments.
	StepToolCall
	// StepToolResult is the successful output of a tool.
	StepToolResult
	// StepToolError marks a tool that failed.
	StepToolError
)

// Step is one renderable item of the thinking trace.
type Step struct {
	Kind StepKind
	// Label is the tool name for tool steps and empty for narrative steps.
	Label string
	// Content is narrative text, pretty-printed arguments or pretty-printed output.
	Content   string
	Truncated bool
}

// Accumulator folds the ordered events of one exchange. It is not safe for
// concurrent use; one stream feeds one accumulator.
type Accumulator struct {
	userMessage string
	events      []models.StreamEvent
	answer      *string
	errMsg      *string
	queries     []string
	status      Status
	record      *models.MessagePair
}

// NewAccumulator starts the fold for the exchange opened by userMessage.
func NewAccumulator(userMessage string) *Accumulator {
	return &Accumulator{userMessage: userMessage}
}

// Apply records ev and returns the steps it contributes to the live trace.
// The complete event closes the accumulator and builds the record.
func (a *Accumulator) Apply(ev models.StreamEvent) ([]Step, error) {
	if a.record != nil {
		return nil, ErrAccumulatorClosed
	}
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	a.events = append(a.events, ev)

	switch ev.Type {
	case models.EventToolCall:
		return a.applyToolCall(ev.Data), nil

	case models.EventToolOutput:
		steps := make([]Step, 0, len(ev.Data.ToolOutputs))
		for _, out := range ev.Data.ToolOutputs {
			if out.Status == models.ToolError {
				steps = append(steps, Step{Kind: StepToolError, Label: out.ToolName})
				continue
			}
			steps = append(steps, Step{
				Kind:      StepToolResult,
				Label:     out.ToolName,
				Content:   prettyOutput(out.Output),
				Truncated: out.Truncated(),
			})
		}
		return steps, nil

	case models.EventFinalAnswer:
		content := ""
		if ev.Data.Content != nil {
			content = *ev.Data.Content
		}
		a.answer, a.errMsg = &content, nil
		a.status = StatusSucceeding

	case models.EventError:
		msg, ok := ev.Data.ErrorMessage()
		if !ok {
			msg = models.MsgUnknownError
		}
		a.answer, a.errMsg = nil, &msg
		a.status = StatusFailing

	case models.EventComplete:
		return nil, a.complete(ev.Data.RunID)
	}
	return nil, nil
}

func (a *Accumulator) applyToolCall(data models.EventData) []Step {
	var steps []Step
	if data.Content != nil && strings.TrimSpace(*data.Content) != "" {
		steps = append(steps, Step{Kind: StepNarrative, Content: *data.Content})
	}
	for _, call := range data.ToolCalls {
		if sql, ok := call.Args.GetString(sqlQueryArg); ok {
			a.queries = append(a.queries, sql)
		}
		steps = append(steps, Step{Kind: StepToolCall, Label: call.Name, Content: call.Args.Pretty()})
	}
	return steps
}

func (a *Accumulator) complete(runID *uuid.UUID) error {
	params := RecordParams{
		UserMessage:      a.userMessage,
		AssistantMessage: a.answer,
		ErrorMessage:     a.errMsg,
		GeneratedQueries: a.queries,
		Events:           a.events,
	}
	if runID != nil {
		params.ID = *runID
	}
	if params.AssistantMessage == nil && params.ErrorMessage == nil {
		msg := models.MsgNoAnswer
		params.ErrorMessage = &msg
		a.status = StatusFailing
	}
	record, err := Build(params)
	if err != nil {
		return err
	}
	a.record = record
	return nil
}

// Status returns the pending visual state.
func (a *Accumulator) Status() Status { return a.status }

// Done reports whether complete has been applied.
func (a *Accumulator) Done() bool { return a.record != nil }

// Record returns the built record once complete has been applied.
func (a *Accumulator) Record() (*models.MessagePair, bool) {
	return a.record, a.record != nil
}

// Events returns a copy of the events applied so far.
func (a *Accumulator) Events() []models.StreamEvent {
	return append([]models.StreamEvent(nil), a.events...)
}

// Finish closes an exchange whose stream ended without complete: it applies
// an error carrying message and a complete event with a fresh run id. It is a
// no-op once complete has been applied.
func (a *Accumulator) Finish(message string) error {
	if a.Done() {
		return nil
	}
	if _, err := a.Apply(models.NewErrorEvent(message)); err != nil {
		return err
	}
	_, err := a.Apply(models.NewCompleteEvent(uuid.New()))
	return err
}

// Fold consumes seq and returns the record of the exchange. Events after
// complete are not pulled. A sequence that ends without complete is closed
// with a disconnect error and a fresh run id.
func Fold(userMessage string, seq iter.Seq[models.StreamEvent]) (*models.MessagePair, error) {
	acc := NewAccumulator(userMessage)
	for ev := range seq {
		if _, err := acc.Apply(ev); err != nil {
			return nil, err
		}
		if acc.Done() {
			break
		}
	}
	if err := acc.Finish(models.MsgStreamDisconnect); err != nil {
		return nil, err
	}
	record, _ := acc.Record()
	return record, nil
}

// prettyOutput indents JSON tool output and leaves anything else untouched.
func prettyOutput(output string) string {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return output
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return output
	}
	return buf.String()
}
