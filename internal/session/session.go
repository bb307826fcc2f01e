// Package session holds the per-user conversation context and drives one
// exchange at a time through the streaming state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"

	"chatbot/internal/chatclient"
	"chatbot/internal/conversation"
	"chatbot/internal/models"
	"chatbot/internal/threadlock"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

// DefaultThreadTitle names threads created on the first prompt.
const DefaultThreadTitle = "Conversa"

// API is the part of the chatbot API the session uses. *chatclient.Client
// implements it.
type API interface {
	Authenticate(ctx context.Context, email, password string) (string, error)
	CreateThread(ctx context.Context, token, title string) (*models.Thread, error)
	ListThreads(ctx context.Context, token string) ([]models.Thread, error)
	ListMessagePairs(ctx context.Context, token string, threadID uuid.UUID) ([]models.MessagePair, error)
	SendMessage(ctx context.Context, token string, threadID uuid.UUID, message string) iter.Seq[models.StreamEvent]
	SendFeedback(ctx context.Context, token string, pairID uuid.UUID, fb models.Feedback) error
	DeleteThread(ctx context.Context, token string, threadID uuid.UUID) error
}

// Outcome is what the renderer gets back from an operation: a success flag
// and a message ready to be shown.
type Outcome struct {
	OK      bool
	Message string
}

func success(msg string) Outcome { return Outcome{OK: true, Message: msg} }
func failure(msg string) Outcome { return Outcome{Message: msg} }

// Observer receives the live rendering of an exchange.
type Observer interface {
	// Waiting is called once the prompt is accepted, before the first event.
	Waiting(prompt string)
	// Steps is called for every event with the steps it contributes and the
	// pending status of the exchange.
	Steps(steps []conversation.Step, status conversation.Status)
	// Finished is called with the terminal record.
	Finished(record *models.MessagePair)
}

type nopObserver struct{}

func (nopObserver) Waiting(string)                                 {}
func (nopObserver) Steps([]conversation.Step, conversation.Status) {}
func (nopObserver) Finished(*models.MessagePair)                   {}

// WidgetKind names a per-record toggle of the UI.
type WidgetKind string

const (
	WidgetCode  WidgetKind = "show_code"
	WidgetChart WidgetKind = "show_chart"
	WidgetSteps WidgetKind = "show_steps"
)

// WidgetKey is the flag key of a widget bound to one record.
func WidgetKey(kind WidgetKind, recordID uuid.UUID) string {
	return fmt.Sprintf("%s_%s", kind, recordID)
}

// Option configures a Session.
type Option func(*Session)

// WithGuard shares a stream guard between sessions.
func WithGuard(g *threadlock.Guard) Option { return func(s *Session) { s.guard = g } }

// WithThreadTitle sets the title of threads created by the session.
func WithThreadTitle(title string) Option { return func(s *Session) { s.title = title } }

// Session is the context of one user: access token, current thread,
// history, feedback cache and widget flags. Its methods are safe for
// concurrent use, but only one exchange runs at a time.
type Session struct {
	api   API
	guard *threadlock.Guard
	title string

	mu       sync.Mutex
	state    State
	email    string
	token    string
	threadID *uuid.UUID
	history  []models.MessagePair
	feedback map[uuid.UUID]models.Feedback
	flags    map[string]bool
}

// New returns an idle, logged-out session backed by api.
func New(api API, opts ...Option) *Session {
	s := &Session{
		api:      api,
		title:    DefaultThreadTitle,
		feedback: make(map[uuid.UUID]models.Feedback),
		flags:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.guard == nil {
		s.guard = threadlock.New()
	}
	return s
}

// State returns the current phase of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Transition(s.state, to)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// LoggedIn reports whether the session holds an access token.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Email returns the address the session logged in with.
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// ThreadID returns the current thread, if any.
func (s *Session) ThreadID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadID == nil {
		return uuid.Nil, false
	}
	return *s.threadID, true
}

func (s *Session) accessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

// Login authenticates and stores the access token.
func (s *Session) Login(ctx context.Context, email, password string) Outcome {
	token, err := s.api.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, chatclient.ErrInvalidCredentials) {
			return failure(models.MsgInvalidCredentials)
		}
		return failure(models.MsgLoginFailed)
	}
	s.mu.Lock()
	s.email, s.token = email, token
	s.mu.Unlock()
	log.Print(ctx, log.KV{K: "msg", V: "[SESSION] logged in"}, log.KV{K: "email", V: email})
	return success(models.MsgLoginSuccess)
}

// Logout forgets the token and the whole conversation context.
func (s *Session) Logout(ctx context.Context) Outcome {
	s.mu.Lock()
	s.email, s.token = "", ""
	s.threadID = nil
	s.history = nil
	clear(s.feedback)
	clear(s.flags)
	s.mu.Unlock()
	log.Print(ctx, log.KV{K: "msg", V: "[SESSION] logged out"})
	return success(models.MsgLogoutSuccess)
}

// UseThread switches the session to an existing thread and drops the history
// of the previous one.
func (s *Session) UseThread(threadID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadID != nil && *s.threadID == threadID {
		return
	}
	s.dropRecordStateLocked()
	s.threadID = &threadID
	s.history = nil
}

// EnsureThread returns the current thread, creating one if needed.
func (s *Session) EnsureThread(ctx context.Context) (uuid.UUID, Outcome) {
	token, ok := s.accessToken()
	if !ok {
		return uuid.Nil, failure(models.MsgNotLoggedIn)
	}
	if id, ok := s.ThreadID(); ok {
		return id, success("")
	}
	thread, err := s.api.CreateThread(ctx, token, s.title)
	if err != nil {
		return uuid.Nil, failure(models.MsgThreadCreateFailed)
	}
	s.mu.Lock()
	s.threadID = &thread.ID
	s.mu.Unlock()
	return thread.ID, success("")
}

// Threads lists the user's threads, oldest first.
func (s *Session) Threads(ctx context.Context) ([]models.Thread, Outcome) {
	token, ok := s.accessToken()
	if !ok {
		return nil, failure(models.MsgNotLoggedIn)
	}
	threads, err := s.api.ListThreads(ctx, token)
	if err != nil {
		return nil, failure(models.MsgThreadListFailed)
	}
	return threads, success("")
}

// LoadHistory replaces the local history with the backend's copy of the
// current thread. Without a thread the history is simply empty.
func (s *Session) LoadHistory(ctx context.Context) Outcome {
	token, ok := s.accessToken()
	if !ok {
		return failure(models.MsgNotLoggedIn)
	}
	threadID, ok := s.ThreadID()
	if !ok {
		return success("")
	}
	pairs, err := s.api.ListMessagePairs(ctx, token, threadID)
	if err != nil {
		return failure(models.MsgHistoryLoadFailed)
	}
	s.mu.Lock()
	s.history = pairs
	s.mu.Unlock()
	return success("")
}

// RefreshRecord replaces the local record id with the backend's stored copy,
// which carries the chart artifacts the stream does not. A record the backend
// never stored is kept as is.
func (s *Session) RefreshRecord(ctx context.Context, id uuid.UUID) Outcome {
	token, ok := s.accessToken()
	if !ok {
		return failure(models.MsgNotLoggedIn)
	}
	threadID, ok := s.ThreadID()
	if !ok {
		return success("")
	}
	pairs, err := s.api.ListMessagePairs(ctx, token, threadID)
	if err != nil {
		return failure(models.MsgHistoryLoadFailed)
	}
	idx := slices.IndexFunc(pairs, func(p models.MessagePair) bool { return p.ID == id })
	if idx < 0 {
		return success("")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.history {
		if s.history[i].ID == id {
			s.history[i] = pairs[idx]
			break
		}
	}
	return success("")
}

// History returns a copy of the records of the current thread.
func (s *Session) History() []models.MessagePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Record returns the record with the given id from the history.
func (s *Session) Record(id uuid.UUID) (models.MessagePair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.history {
		if p.ID == id {
			return p, true
		}
	}
	return models.MessagePair{}, false
}

// Last returns the most recent record of the history.
func (s *Session) Last() (models.MessagePair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return models.MessagePair{}, false
	}
	return s.history[len(s.history)-1], true
}

// Ask runs one exchange: it resolves the thread, streams the response into
// obs and appends the terminal record to the history. A record is returned
// whenever the stream was opened, including failed exchanges; the outcome
// carries the error message of those.
func (s *Session) Ask(ctx context.Context, prompt string, obs Observer) (*models.MessagePair, Outcome) {
	if obs == nil {
		obs = nopObserver{}
	}
	token, ok := s.accessToken()
	if !ok {
		return nil, failure(models.MsgNotLoggedIn)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, failure(models.MsgPromptPlaceholder)
	}
	if err := s.transition(StateAwaitingThread); err != nil {
		return nil, failure(models.MsgStreamBusy)
	}

	threadID, out := s.EnsureThread(ctx)
	if !out.OK {
		s.mustTransition(ctx, StateIdle)
		return nil, out
	}
	release, err := s.guard.Acquire(threadID)
	if err != nil {
		log.Warn(ctx, log.KV{K: "msg", V: "[SESSION] thread busy"}, log.KV{K: "thread", V: threadID})
		s.mustTransition(ctx, StateIdle)
		return nil, failure(models.MsgStreamBusy)
	}
	defer release()

	s.mustTransition(ctx, StateStreaming)
	obs.Waiting(prompt)
	record := s.stream(ctx, token, threadID, prompt, obs)

	s.mustTransition(ctx, StateRenderingTerminal)
	s.mu.Lock()
	s.history = append(s.history, *record)
	s.mu.Unlock()
	obs.Finished(record)
	s.mustTransition(ctx, StateIdle)

	if !record.Succeeded() {
		return record, failure(record.Text())
	}
	return record, success("")
}

func (s *Session) stream(ctx context.Context, token string, threadID uuid.UUID, prompt string, obs Observer) *models.MessagePair {
	acc := conversation.NewAccumulator(prompt)
	for ev := range s.api.SendMessage(ctx, token, threadID, prompt) {
		steps, err := acc.Apply(ev)
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "[SESSION] unexpected stream event"}, log.KV{K: "thread", V: threadID})
			if err := acc.Finish(models.MsgStreamFailure); err != nil {
				log.Error(ctx, err, log.KV{K: "msg", V: "[SESSION] closing exchange failed"})
			}
			break
		}
		obs.Steps(steps, acc.Status())
		if acc.Done() {
			break
		}
	}
	if err := acc.Finish(models.MsgStreamDisconnect); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[SESSION] closing exchange failed"})
	}
	record, _ := acc.Record()
	return record
}

// mustTransition applies a transition that Ask's own sequencing guarantees.
func (s *Session) mustTransition(ctx context.Context, to State) {
	if err := s.transition(to); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[SESSION] state machine out of sync"})
	}
}

// Feedback returns the feedback already sent for a record.
func (s *Session) Feedback(recordID uuid.UUID) (models.Feedback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb, ok := s.feedback[recordID]
	return fb, ok
}

// Rate sends a rating with an optional comment for a record.
func (s *Session) Rate(ctx context.Context, recordID uuid.UUID, rating models.Rating, comment string) Outcome {
	return s.SubmitFeedback(ctx, recordID, &models.Feedback{Rating: rating, Comment: comment})
}

// SubmitFeedback sends fb unless it is nil or identical to the feedback
// already sent for the record; skipped submissions succeed with no message.
func (s *Session) SubmitFeedback(ctx context.Context, recordID uuid.UUID, fb *models.Feedback) Outcome {
	if fb == nil {
		return success("")
	}
	token, ok := s.accessToken()
	if !ok {
		return failure(models.MsgNotLoggedIn)
	}
	if prev, ok := s.Feedback(recordID); ok && prev == *fb {
		return success("")
	}
	if err := s.api.SendFeedback(ctx, token, recordID, *fb); err != nil {
		return failure(models.MsgFeedbackFailed)
	}
	s.mu.Lock()
	s.feedback[recordID] = *fb
	s.mu.Unlock()
	return success(models.MsgFeedbackSent)
}

// Toggle flips a widget flag and returns its new value.
func (s *Session) Toggle(kind WidgetKind, recordID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := WidgetKey(kind, recordID)
	s.flags[key] = !s.flags[key]
	return s.flags[key]
}

// Flag returns the value of a widget flag. Unset flags are false.
func (s *Session) Flag(kind WidgetKind, recordID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[WidgetKey(kind, recordID)]
}

// Reset deletes the current thread on the backend, which also drops the
// assistant's memory, and forgets its history and the flags bound to its
// records. The next prompt opens a new thread.
func (s *Session) Reset(ctx context.Context) Outcome {
	token, ok := s.accessToken()
	if !ok {
		return failure(models.MsgNotLoggedIn)
	}
	if s.State() != StateIdle {
		return failure(models.MsgStreamBusy)
	}
	threadID, ok := s.ThreadID()
	if ok {
		if err := s.api.DeleteThread(ctx, token, threadID); err != nil {
			return failure(models.MsgResetFailed)
		}
	}
	s.mu.Lock()
	s.dropRecordStateLocked()
	s.threadID = nil
	s.history = nil
	s.mu.Unlock()
	return success("")
}

// dropRecordStateLocked removes flags and feedback bound to history records.
func (s *Session) dropRecordStateLocked() {
	for _, p := range s.history {
		id := p.ID.String()
		maps.DeleteFunc(s.flags, func(key string, _ bool) bool {
			return strings.HasSuffix(key, "_"+id)
		})
		delete(s.feedback, p.ID)
	}
}

// ExportCSV writes the history as CSV.
func (s *Session) ExportCSV(w io.Writer) error {
	return conversation.WriteCSV(w, s.History())
}
