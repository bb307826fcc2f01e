package session

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"chatbot/internal/chatclient"
	"chatbot/internal/conversation"
	"chatbot/internal/models"
	"chatbot/internal/threadlock"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentFeedback struct {
	pairID uuid.UUID
	fb     models.Feedback
}

// fakeAPI scripts the backend. Fields are set before use; the recorded calls
// are guarded by mu.
type fakeAPI struct {
	authErr     error
	createErr   error
	listErr     error
	feedbackErr error
	deleteErr   error
	pairs       []models.MessagePair
	script      func(message string) []models.StreamEvent
	started     chan struct{}
	unblock     chan struct{}

	mu        sync.Mutex
	titles    []string
	feedbacks []sentFeedback
	deleted   []uuid.UUID
	sent      []string
}

func (f *fakeAPI) Authenticate(_ context.Context, email, _ string) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	return "token-" + email, nil
}

func (f *fakeAPI) CreateThread(_ context.Context, _ string, title string) (*models.Thread, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return &models.Thread{ID: uuid.New(), Account: 1, Title: title, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) ListThreads(context.Context, string) ([]models.Thread, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []models.Thread{{ID: uuid.New(), Title: "Conversa"}}, nil
}

func (f *fakeAPI) ListMessagePairs(context.Context, string, uuid.UUID) ([]models.MessagePair, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pairs, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, _ string, _ uuid.UUID, message string) iter.Seq[models.StreamEvent] {
	return func(yield func(models.StreamEvent) bool) {
		f.mu.Lock()
		f.sent = append(f.sent, message)
		f.mu.Unlock()
		if f.started != nil {
			close(f.started)
		}
		if f.unblock != nil {
			<-f.unblock
		}
		for _, ev := range f.script(message) {
			if !yield(ev) {
				return
			}
		}
	}
}

func (f *fakeAPI) SendFeedback(_ context.Context, _ string, pairID uuid.UUID, fb models.Feedback) error {
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks = append(f.feedbacks, sentFeedback{pairID, fb})
	return nil
}

func (f *fakeAPI) DeleteThread(_ context.Context, _ string, threadID uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, threadID)
	return nil
}

func answering(message string) []models.StreamEvent {
	return []models.StreamEvent{
		models.NewToolCallEvent("Consultando.", models.ToolCall{
			ID:   "c1",
			Name: "sql_db_query",
			Args: models.Object(models.Field{Key: "sql_query", Value: models.String("SELECT 1")}),
		}),
		models.NewFinalAnswerEvent("resposta para " + message),
		models.NewCompleteEvent(uuid.New()),
	}
}

type recorder struct {
	waiting  []string
	steps    []conversation.Step
	statuses []conversation.Status
	finished []*models.MessagePair
}

func (r *recorder) Waiting(prompt string) { r.waiting = append(r.waiting, prompt) }

func (r *recorder) Steps(steps []conversation.Step, status conversation.Status) {
	r.steps = append(r.steps, steps...)
	r.statuses = append(r.statuses, status)
}

func (r *recorder) Finished(record *models.MessagePair) { r.finished = append(r.finished, record) }

func loggedIn(t *testing.T, api *fakeAPI, opts ...Option) *Session {
	t.Helper()
	s := New(api, opts...)
	out := s.Login(t.Context(), "ana@example.com", "s3cr3t")
	require.True(t, out.OK)
	return s
}

func TestLogin(t *testing.T) {
	s := New(&fakeAPI{})
	out := s.Login(t.Context(), "ana@example.com", "s3cr3t")
	assert.Equal(t, Outcome{OK: true, Message: models.MsgLoginSuccess}, out)
	assert.True(t, s.LoggedIn())
	assert.Equal(t, "ana@example.com", s.Email())

	s = New(&fakeAPI{authErr: chatclient.ErrInvalidCredentials})
	assert.Equal(t, Outcome{Message: models.MsgInvalidCredentials}, s.Login(t.Context(), "a", "b"))
	assert.False(t, s.LoggedIn())

	s = New(&fakeAPI{authErr: &chatclient.StatusError{StatusCode: 500}})
	assert.Equal(t, Outcome{Message: models.MsgLoginFailed}, s.Login(t.Context(), "a", "b"))
}

func TestAskCreatesThreadOnce(t *testing.T) {
	api := &fakeAPI{script: answering}
	s := loggedIn(t, api, WithThreadTitle("Dúvidas"))
	obs := &recorder{}

	record, out := s.Ask(t.Context(), "quantos clientes?", obs)
	require.True(t, out.OK)
	require.NotNil(t, record)
	assert.Equal(t, "resposta para quantos clientes?", record.Answer())
	assert.Equal(t, []string{"SELECT 1"}, record.GeneratedQueries)

	assert.Equal(t, []string{"quantos clientes?"}, obs.waiting)
	require.Len(t, obs.steps, 2)
	assert.Equal(t, conversation.StepNarrative, obs.steps[0].Kind)
	assert.Equal(t, conversation.StepToolCall, obs.steps[1].Kind)
	assert.Equal(t, conversation.StatusSucceeding, obs.statuses[len(obs.statuses)-1])
	require.Len(t, obs.finished, 1)
	assert.Same(t, record, obs.finished[0])

	_, out = s.Ask(t.Context(), "e fornecedores?", nil)
	require.True(t, out.OK)

	assert.Equal(t, []string{"Dúvidas"}, api.titles)
	assert.Len(t, s.History(), 2)
	assert.Equal(t, StateIdle, s.State())
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "e fornecedores?", last.UserMessage)
}

func TestAskFailures(t *testing.T) {
	timeout := func(string) []models.StreamEvent {
		return []models.StreamEvent{models.NewErrorEvent(models.MsgStreamTimeout), models.NewCompleteEvent(uuid.New())}
	}
	truncated := func(string) []models.StreamEvent {
		return []models.StreamEvent{models.NewFinalAnswerEvent("metade")}
	}
	silent := func(string) []models.StreamEvent {
		return []models.StreamEvent{models.NewCompleteEvent(uuid.New())}
	}
	cases := []struct {
		name   string
		script func(string) []models.StreamEvent
		want   string
		events int
	}{
		{"timeout", timeout, models.MsgStreamTimeout, 2},
		{"truncated", truncated, models.MsgStreamDisconnect, 3},
		{"no answer", silent, models.MsgNoAnswer, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := loggedIn(t, &fakeAPI{script: tc.script})
			record, out := s.Ask(t.Context(), "oi", nil)
			assert.Equal(t, Outcome{Message: tc.want}, out)
			require.NotNil(t, record)
			assert.Nil(t, record.AssistantMessage)
			assert.Len(t, record.Events, tc.events)
			assert.Len(t, s.History(), 1)
			assert.Equal(t, StateIdle, s.State())
		})
	}
}

func TestAskRejected(t *testing.T) {
	s := New(&fakeAPI{script: answering})
	_, out := s.Ask(t.Context(), "oi", nil)
	assert.Equal(t, Outcome{Message: models.MsgNotLoggedIn}, out)

	s = loggedIn(t, &fakeAPI{script: answering})
	_, out = s.Ask(t.Context(), "   ", nil)
	assert.False(t, out.OK)
	assert.Equal(t, StateIdle, s.State())

	s = loggedIn(t, &fakeAPI{createErr: errors.New("down")})
	record, out := s.Ask(t.Context(), "oi", nil)
	assert.Nil(t, record)
	assert.Equal(t, Outcome{Message: models.MsgThreadCreateFailed}, out)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.History())
}

func TestAskOneStreamPerThread(t *testing.T) {
	guard := threadlock.New()
	api := &fakeAPI{script: answering, started: make(chan struct{}), unblock: make(chan struct{})}
	first := loggedIn(t, api, WithGuard(guard))
	threadID, out := first.EnsureThread(t.Context())
	require.True(t, out.OK)

	second := loggedIn(t, &fakeAPI{script: answering}, WithGuard(guard))
	second.UseThread(threadID)

	done := make(chan Outcome)
	go func() {
		_, out := first.Ask(context.Background(), "primeira", nil)
		done <- out
	}()
	<-api.started
	assert.Equal(t, StateStreaming, first.State())

	_, out = first.Ask(t.Context(), "de novo", nil)
	assert.Equal(t, Outcome{Message: models.MsgStreamBusy}, out)
	_, out = second.Ask(t.Context(), "concorrente", nil)
	assert.Equal(t, Outcome{Message: models.MsgStreamBusy}, out)
	assert.Equal(t, Outcome{Message: models.MsgStreamBusy}, first.Reset(t.Context()))

	close(api.unblock)
	assert.True(t, (<-done).OK)
	assert.False(t, guard.Busy(threadID))

	_, out = second.Ask(t.Context(), "agora sim", nil)
	assert.True(t, out.OK)
}

func TestSubmitFeedback(t *testing.T) {
	api := &fakeAPI{script: answering}
	s := loggedIn(t, api)
	id := uuid.New()

	assert.Equal(t, Outcome{OK: true}, s.SubmitFeedback(t.Context(), id, nil))
	assert.Empty(t, api.feedbacks)

	up := models.Feedback{Rating: models.RatingUp, Comment: "boa"}
	assert.Equal(t, Outcome{OK: true, Message: models.MsgFeedbackSent}, s.SubmitFeedback(t.Context(), id, &up))
	assert.Equal(t, Outcome{OK: true}, s.SubmitFeedback(t.Context(), id, &up))
	require.Len(t, api.feedbacks, 1)

	assert.True(t, s.Rate(t.Context(), id, models.RatingDown, "").OK)
	require.Len(t, api.feedbacks, 2)
	assert.Equal(t, models.RatingDown, api.feedbacks[1].fb.Rating)
	got, ok := s.Feedback(id)
	require.True(t, ok)
	assert.Equal(t, models.RatingDown, got.Rating)

	api.feedbackErr = errors.New("down")
	assert.Equal(t, Outcome{Message: models.MsgFeedbackFailed}, s.Rate(t.Context(), id, models.RatingUp, ""))
	got, _ = s.Feedback(id)
	assert.Equal(t, models.RatingDown, got.Rating)
}

func TestToggleAndReset(t *testing.T) {
	api := &fakeAPI{script: answering}
	s := loggedIn(t, api)
	record, out := s.Ask(t.Context(), "oi", nil)
	require.True(t, out.OK)
	threadID, _ := s.ThreadID()
	other := uuid.New()

	assert.False(t, s.Flag(WidgetCode, record.ID))
	assert.True(t, s.Toggle(WidgetCode, record.ID))
	assert.True(t, s.Flag(WidgetCode, record.ID))
	assert.True(t, s.Toggle(WidgetChart, other))
	assert.False(t, s.Flag(WidgetChart, record.ID))
	require.True(t, s.Rate(t.Context(), record.ID, models.RatingUp, "").OK)

	api.deleteErr = errors.New("down")
	assert.Equal(t, Outcome{Message: models.MsgResetFailed}, s.Reset(t.Context()))
	assert.True(t, s.Flag(WidgetCode, record.ID))

	api.deleteErr = nil
	require.True(t, s.Reset(t.Context()).OK)
	assert.Equal(t, []uuid.UUID{threadID}, api.deleted)
	assert.False(t, s.Flag(WidgetCode, record.ID))
	assert.True(t, s.Flag(WidgetChart, other))
	_, ok := s.Feedback(record.ID)
	assert.False(t, ok)
	_, ok = s.ThreadID()
	assert.False(t, ok)
	assert.Empty(t, s.History())

	_, out = s.Ask(t.Context(), "de novo", nil)
	require.True(t, out.OK)
	assert.Len(t, api.titles, 2)
}

func TestWidgetKey(t *testing.T) {
	id := uuid.MustParse("6f1c2d4e-8a1b-4c3d-9e5f-0a1b2c3d4e5f")
	assert.Equal(t, "show_code_6f1c2d4e-8a1b-4c3d-9e5f-0a1b2c3d4e5f", WidgetKey(WidgetCode, id))
}

func TestLoadHistory(t *testing.T) {
	answer := "olá"
	api := &fakeAPI{pairs: []models.MessagePair{{ID: uuid.New(), UserMessage: "oi", AssistantMessage: &answer}}}
	s := loggedIn(t, api)

	require.True(t, s.LoadHistory(t.Context()).OK)
	assert.Empty(t, s.History())

	s.UseThread(uuid.New())
	require.True(t, s.LoadHistory(t.Context()).OK)
	require.Len(t, s.History(), 1)
	_, ok := s.Record(api.pairs[0].ID)
	assert.True(t, ok)

	api.listErr = errors.New("down")
	assert.Equal(t, Outcome{Message: models.MsgHistoryLoadFailed}, s.LoadHistory(t.Context()))
	assert.Len(t, s.History(), 1)
	_, out := s.Threads(t.Context())
	assert.Equal(t, Outcome{Message: models.MsgThreadListFailed}, out)
}

func TestRefreshRecordKeepsUnstoredRecords(t *testing.T) {
	api := &fakeAPI{script: answering}
	s := loggedIn(t, api)
	ctx := t.Context()

	stored, out := s.Ask(ctx, "quanto vendemos?", nil)
	require.True(t, out.OK)
	withChart := *stored
	withChart.ChartData = &models.ChartData{Data: []models.Value{models.Object()}}
	api.pairs = []models.MessagePair{withChart}

	api.script = func(string) []models.StreamEvent {
		return []models.StreamEvent{models.NewErrorEvent(models.MsgStreamFailure), models.NewCompleteEvent(uuid.New())}
	}
	failed, out := s.Ask(ctx, "e ontem?", nil)
	require.False(t, out.OK)

	require.True(t, s.RefreshRecord(ctx, failed.ID).OK)
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, failed.ID, last.ID)
	require.Len(t, s.History(), 2)

	require.True(t, s.RefreshRecord(ctx, stored.ID).OK)
	history := s.History()
	require.Len(t, history, 2)
	assert.NotNil(t, history[0].ChartData)
	assert.Equal(t, failed.ID, history[1].ID)

	api.listErr = errors.New("down")
	assert.Equal(t, Outcome{Message: models.MsgHistoryLoadFailed}, s.RefreshRecord(ctx, stored.ID))
	assert.Len(t, s.History(), 2)
}

func TestExportCSV(t *testing.T) {
	s := loggedIn(t, &fakeAPI{script: answering})
	_, out := s.Ask(t.Context(), "oi", nil)
	require.True(t, out.OK)

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(&buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"modelo", "pergunta", "resposta", "consulta"}, rows[0])
	assert.Equal(t, []string{"", "oi", "resposta para oi", "SELECT 1"}, rows[1])
}

func TestSnapshotRestore(t *testing.T) {
	s := loggedIn(t, &fakeAPI{script: answering})
	record, out := s.Ask(t.Context(), "oi", nil)
	require.True(t, out.OK)
	s.Toggle(WidgetSteps, record.ID)
	require.True(t, s.Rate(t.Context(), record.ID, models.RatingUp, "").OK)

	snap := s.Snapshot()
	restored := New(&fakeAPI{})
	require.NoError(t, restored.Restore(snap))

	assert.True(t, restored.LoggedIn())
	assert.Equal(t, s.History(), restored.History())
	assert.True(t, restored.Flag(WidgetSteps, record.ID))
	wantThread, _ := s.ThreadID()
	gotThread, ok := restored.ThreadID()
	require.True(t, ok)
	assert.Equal(t, wantThread, gotThread)

	restored.Toggle(WidgetSteps, record.ID)
	assert.True(t, s.Flag(WidgetSteps, record.ID))
}

func TestLogout(t *testing.T) {
	s := loggedIn(t, &fakeAPI{script: answering})
	_, out := s.Ask(t.Context(), "oi", nil)
	require.True(t, out.OK)

	assert.Equal(t, Outcome{OK: true, Message: models.MsgLogoutSuccess}, s.Logout(t.Context()))
	assert.False(t, s.LoggedIn())
	assert.Empty(t, s.History())
	_, ok := s.ThreadID()
	assert.False(t, ok)
}
