// Package storetest holds behavior tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"chatbot/internal/models"
	"chatbot/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s. Every record it creates uses fresh emails and ids, so s may
// be shared with other data.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("Users", func(t *testing.T) { testUsers(t, s) })
	t.Run("Threads", func(t *testing.T) { testThreads(t, s) })
	t.Run("MessagePairs", func(t *testing.T) { testMessagePairs(t, s) })
	t.Run("Checkpoints", func(t *testing.T) { testCheckpoints(t, s) })
	t.Run("Feedback", func(t *testing.T) { testFeedback(t, s) })
}

func uniqueEmail() string {
	return fmt.Sprintf("user-%s@example.com", uuid.NewString())
}

func newUser(t *testing.T, s store.Store) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), uniqueEmail(), "hash")
	require.NoError(t, err)
	return u
}

func strPtr(s string) *string { return &s }

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	email := uniqueEmail()

	_, err := s.GetUserByEmail(ctx, email)
	assert.ErrorIs(t, err, store.ErrNotFound)

	u, err := s.CreateUser(ctx, email, "hash")
	require.NoError(t, err)
	assert.Positive(t, u.ID)
	assert.Equal(t, email, u.Email)

	got, err := s.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.HashedPassword)

	_, err = s.CreateUser(ctx, email, "other")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func testThreads(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	other := newUser(t, s)

	first, err := s.CreateThread(ctx, owner.ID, "Conversa")
	require.NoError(t, err)
	second, err := s.CreateThread(ctx, owner.ID, "Outra")
	require.NoError(t, err)
	_, err = s.CreateThread(ctx, other.ID, "Alheia")
	require.NoError(t, err)

	threads, err := s.ListThreads(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, first.ID, threads[0].ID)
	assert.Equal(t, second.ID, threads[1].ID)

	_, err = s.GetThread(ctx, first.ID, other.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "threads are scoped to their account")

	require.NoError(t, s.DeleteThread(ctx, first.ID, owner.ID))
	_, err = s.GetThread(ctx, first.ID, owner.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteThread(ctx, first.ID, owner.ID), store.ErrNotFound)

	threads, err = s.ListThreads(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, second.ID, threads[0].ID)
}

func testMessagePairs(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	th, err := s.CreateThread(ctx, owner.ID, "Conversa")
	require.NoError(t, err)

	ok := &models.MessagePair{
		ID:               uuid.New(),
		UserMessage:      "Quantas vendas?",
		AssistantMessage: strPtr("R$ 10"),
		GeneratedQueries: []string{"SELECT 1"},
		ChartData:        &models.ChartData{Data: []models.Value{models.Object(models.Field{Key: "x", Value: models.Int(1)})}},
		ChartMetadata:    &models.ChartMetadata{ChartType: models.ChartBar, Title: "Vendas", XAxis: "x", YAxis: "y"},
		Events:           []models.StreamEvent{models.NewFinalAnswerEvent("R$ 10")},
	}
	failed := &models.MessagePair{
		ID:           uuid.New(),
		UserMessage:  "E agora?",
		ErrorMessage: strPtr(models.MsgStreamFailure),
	}
	require.NoError(t, s.CreateMessagePair(ctx, th.ID, ok))
	require.NoError(t, s.CreateMessagePair(ctx, th.ID, failed))

	assert.ErrorIs(t, s.CreateMessagePair(ctx, th.ID, ok), store.ErrConflict)
	assert.ErrorIs(t, s.CreateMessagePair(ctx, th.ID, &models.MessagePair{ID: uuid.New(), UserMessage: "x"}), models.ErrInvalidMessagePair)
	assert.ErrorIs(t, s.CreateMessagePair(ctx, uuid.New(), &models.MessagePair{ID: uuid.New(), UserMessage: "x", ErrorMessage: strPtr("e")}), store.ErrNotFound)

	pairs, err := s.ListMessagePairs(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, ok.ID, pairs[0].ID)
	assert.Equal(t, "R$ 10", pairs[0].Answer())
	assert.Equal(t, []string{"SELECT 1"}, pairs[0].GeneratedQueries)
	require.NotNil(t, pairs[0].ChartMetadata)
	assert.Equal(t, models.ChartBar, pairs[0].ChartMetadata.ChartType)
	require.NotNil(t, pairs[0].ChartData)
	assert.Len(t, pairs[0].ChartData.Data, 1)
	assert.NotNil(t, pairs[0].CreatedAt)
	assert.Len(t, pairs[0].Events, 1)

	assert.Equal(t, failed.ID, pairs[1].ID)
	assert.False(t, pairs[1].Succeeded())
	assert.Nil(t, pairs[1].GeneratedQueries)
	assert.Nil(t, pairs[1].ChartData)

	got, err := s.GetMessagePair(ctx, failed.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MsgStreamFailure, got.Text())

	stranger := newUser(t, s)
	_, err = s.GetMessagePair(ctx, failed.ID, stranger.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteThread(ctx, th.ID, owner.ID))
	_, err = s.GetMessagePair(ctx, failed.ID, owner.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "pairs of deleted threads are hidden")
}

func testCheckpoints(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	th, err := s.CreateThread(ctx, owner.ID, "Conversa")
	require.NoError(t, err)

	for i := range 2 {
		require.NoError(t, s.AddCheckpoint(ctx, models.Checkpoint{
			ThreadID:    th.ID,
			RunID:       uuid.New(),
			UserMessage: fmt.Sprintf("pergunta %d", i),
			Answer:      fmt.Sprintf("resposta %d", i),
		}))
	}
	cps, err := s.ListCheckpoints(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "pergunta 0", cps[0].UserMessage)
	assert.Equal(t, "resposta 1", cps[1].Answer)

	require.NoError(t, s.DeleteThread(ctx, th.ID, owner.ID))
	cps, err = s.ListCheckpoints(ctx, th.ID)
	require.NoError(t, err)
	assert.Empty(t, cps)
	assert.ErrorIs(t, s.AddCheckpoint(ctx, models.Checkpoint{ThreadID: th.ID, RunID: uuid.New()}), store.ErrNotFound)
}

func testFeedback(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	th, err := s.CreateThread(ctx, owner.ID, "Conversa")
	require.NoError(t, err)
	p := &models.MessagePair{ID: uuid.New(), UserMessage: "q", AssistantMessage: strPtr("a")}
	require.NoError(t, s.CreateMessagePair(ctx, th.ID, p))

	_, err = s.GetFeedback(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertFeedback(ctx, models.FeedbackRecord{MessagePairID: p.ID, Account: owner.ID, Rating: models.RatingDown, Comment: "ruim"}))
	require.NoError(t, s.UpsertFeedback(ctx, models.FeedbackRecord{MessagePairID: p.ID, Account: owner.ID, Rating: models.RatingUp}))

	fb, err := s.GetFeedback(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingUp, fb.Rating)
	assert.Empty(t, fb.Comment)
	assert.False(t, fb.UpdatedAt.IsZero())
}
