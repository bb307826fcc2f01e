package conversation

import (
	"slices"
	"testing"

	"chatbot/internal/models"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlCall(id, query string) models.ToolCall {
	return models.ToolCall{
		ID:   id,
		Name: "sql_db_query",
		Args: models.Object(models.Field{Key: "sql_query", Value: models.String(query)}),
	}
}

func answerScript(runID uuid.UUID) []models.StreamEvent {
	meta := models.Object(models.Field{Key: "is_truncated", Value: models.Bool(true)})
	return []models.StreamEvent{
		models.NewToolCallEvent("Vou consultar a base.", sqlCall("c1", "SELECT 42")),
		models.NewToolOutputEvent(models.ToolOutput{
			Status:     models.ToolSuccess,
			ToolCallID: "c1",
			ToolName:   "sql_db_query",
			Output:     `[{"answer":42}]`,
			Metadata:   &meta,
		}),
		models.NewFinalAnswerEvent("42"),
		models.NewCompleteEvent(runID),
	}
}

func TestFoldAnswer(t *testing.T) {
	runID := uuid.New()
	events := answerScript(runID)

	record, err := Fold("qual a resposta?", slices.Values(events))
	require.NoError(t, err)

	require.NotNil(t, record.AssistantMessage)
	assert.Equal(t, "42", *record.AssistantMessage)
	assert.Nil(t, record.ErrorMessage)
	assert.Equal(t, runID, record.ID)
	assert.Len(t, record.Events, 4)
	assert.Equal(t, []string{"SELECT 42"}, record.GeneratedQueries)
	assert.Equal(t, "qual a resposta?", record.UserMessage)
}

func TestApplyClassifiesSteps(t *testing.T) {
	acc := NewAccumulator("q")
	events := answerScript(uuid.New())

	steps, err := acc.Apply(events[0])
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, StepNarrative, steps[0].Kind)
	assert.Equal(t, "Vou consultar a base.", steps[0].Content)
	assert.Equal(t, StepToolCall, steps[1].Kind)
	assert.Equal(t, "sql_db_query", steps[1].Label)
	assert.Equal(t, "{\n  \"sql_query\": \"SELECT 42\"\n}", steps[1].Content)

	steps, err = acc.Apply(events[1])
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, StepToolResult, steps[0].Kind)
	assert.True(t, steps[0].Truncated)
	assert.Equal(t, "[\n  {\n    \"answer\": 42\n  }\n]", steps[0].Content)
	assert.Equal(t, StatusPending, acc.Status())

	_, err = acc.Apply(events[2])
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeding, acc.Status())
	assert.False(t, acc.Done())

	_, err = acc.Apply(events[3])
	require.NoError(t, err)
	assert.True(t, acc.Done())

	_, err = acc.Apply(models.NewFinalAnswerEvent("late"))
	assert.ErrorIs(t, err, ErrAccumulatorClosed)
	assert.Len(t, acc.Events(), 4)
}

func TestApplyToolError(t *testing.T) {
	acc := NewAccumulator("q")
	steps, err := acc.Apply(models.NewToolOutputEvent(
		models.ToolOutput{Status: models.ToolError, ToolName: "sql_db_query", Output: "syntax error"},
		models.ToolOutput{Status: models.ToolSuccess, ToolName: "python", Output: "plain text"},
	))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, Step{Kind: StepToolError, Label: "sql_db_query"}, steps[0])
	assert.Equal(t, "plain text", steps[1].Content)
	assert.False(t, steps[1].Truncated)
}

func TestApplyBlankNarrativeIsSkipped(t *testing.T) {
	acc := NewAccumulator("q")
	steps, err := acc.Apply(models.NewToolCallEvent("   ", sqlCall("c1", "SELECT 1")))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, StepToolCall, steps[0].Kind)
}

func TestApplyUnknownEvent(t *testing.T) {
	acc := NewAccumulator("q")
	_, err := acc.Apply(models.StreamEvent{Type: "partial"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Empty(t, acc.Events())
}

func TestFoldTimeoutPair(t *testing.T) {
	events := []models.StreamEvent{
		models.NewErrorEvent(models.MsgStreamTimeout),
		models.NewCompleteEvent(uuid.New()),
	}
	record, err := Fold("q", slices.Values(events))
	require.NoError(t, err)
	assert.Nil(t, record.AssistantMessage)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, models.MsgStreamTimeout, *record.ErrorMessage)
	assert.Len(t, record.Events, 2)
	assert.Nil(t, record.GeneratedQueries)
}

func TestFoldSilentTruncation(t *testing.T) {
	events := []models.StreamEvent{
		models.NewToolCallEvent("", sqlCall("c1", "SELECT 1")),
	}
	record, err := Fold("q", slices.Values(events))
	require.NoError(t, err)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, models.MsgStreamDisconnect, *record.ErrorMessage)
	assert.Nil(t, record.AssistantMessage)
	assert.Len(t, record.Events, 3)
	assert.Equal(t, models.EventComplete, record.Events[2].Type)
	assert.NotEqual(t, uuid.Nil, record.ID)
}

func TestFoldStopsPullingAfterComplete(t *testing.T) {
	pulled := 0
	seq := func(yield func(models.StreamEvent) bool) {
		for _, ev := range append(answerScript(uuid.New()), models.NewFinalAnswerEvent("extra")) {
			pulled++
			if !yield(ev) {
				return
			}
		}
	}
	record, err := Fold("q", seq)
	require.NoError(t, err)
	assert.Equal(t, 4, pulled)
	assert.Equal(t, "42", record.Answer())
}

func TestCompleteWithoutAnswerOrError(t *testing.T) {
	record, err := Fold("q", slices.Values([]models.StreamEvent{models.NewCompleteEvent(uuid.New())}))
	require.NoError(t, err)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, models.MsgNoAnswer, *record.ErrorMessage)
	assert.NoError(t, record.Validate())
}

func TestErrorAfterAnswerSupersedes(t *testing.T) {
	events := []models.StreamEvent{
		models.NewFinalAnswerEvent("42"),
		models.NewErrorEvent("falhou"),
		models.NewCompleteEvent(uuid.New()),
	}
	acc := NewAccumulator("q")
	for _, ev := range events[:2] {
		_, err := acc.Apply(ev)
		require.NoError(t, err)
	}
	assert.Equal(t, StatusFailing, acc.Status())

	record, err := Fold("q", slices.Values(events))
	require.NoError(t, err)
	assert.Nil(t, record.AssistantMessage)
	assert.Equal(t, "falhou", *record.ErrorMessage)
}

func TestErrorWithoutMessageUsesLabel(t *testing.T) {
	details := models.Object(models.Field{Key: "code", Value: models.Int(500)})
	events := []models.StreamEvent{
		{Type: models.EventError, Data: models.EventData{ErrorDetails: &details}},
		models.NewCompleteEvent(uuid.New()),
	}
	record, err := Fold("q", slices.Values(events))
	require.NoError(t, err)
	assert.Equal(t, models.MsgUnknownError, *record.ErrorMessage)
}

func TestFinish(t *testing.T) {
	acc := NewAccumulator("q")
	_, err := acc.Apply(models.NewFinalAnswerEvent("parcial"))
	require.NoError(t, err)

	require.NoError(t, acc.Finish(models.MsgStreamFailure))
	record, ok := acc.Record()
	require.True(t, ok)
	assert.Nil(t, record.AssistantMessage)
	assert.Equal(t, models.MsgStreamFailure, *record.ErrorMessage)
	assert.Len(t, record.Events, 3)

	require.NoError(t, acc.Finish(models.MsgStreamDisconnect))
	again, _ := acc.Record()
	assert.Same(t, record, again)
}

func TestFoldProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// kinds: 0 tool_call, 1 tool_output, 2 final_answer, 3 error
	buildEvents := func(kinds []int, texts []string) []models.StreamEvent {
		events := make([]models.StreamEvent, 0, len(kinds)+1)
		for i, k := range kinds {
			text := "t"
			if i < len(texts) {
				text = texts[i]
			}
			switch k % 4 {
			case 0:
				events = append(events, models.NewToolCallEvent(text, sqlCall("c", text)))
			case 1:
				events = append(events, models.NewToolOutputEvent(models.ToolOutput{Status: models.ToolSuccess, Output: text}))
			case 2:
				events = append(events, models.NewFinalAnswerEvent(text))
			case 3:
				events = append(events, models.NewErrorEvent(text))
			}
		}
		return append(events, models.NewCompleteEvent(uuid.MustParse("6f1c2a8e-5b7d-4c2e-9a51-3f0e6d9b8c47")))
	}

	properties.Property("every complete sequence yields exactly one of answer or error", prop.ForAll(
		func(kinds []int, texts []string) bool {
			events := buildEvents(kinds, texts)
			record, err := Fold("q", slices.Values(events))
			if err != nil {
				return false
			}
			return record.Validate() == nil && len(record.Events) == len(events)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("folding is idempotent", prop.ForAll(
		func(kinds []int, texts []string) bool {
			events := buildEvents(kinds, texts)
			a, errA := Fold("q", slices.Values(events))
			b, errB := Fold("q", slices.Values(events))
			if errA != nil || errB != nil {
				return false
			}
			return assert.ObjectsAreEqual(a, b)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
