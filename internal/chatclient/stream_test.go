package chatclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chatbot/internal/conversation"
	"chatbot/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndjson(t *testing.T, events ...models.StreamEvent) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range events {
		line, err := json.Marshal(ev)
		require.NoError(t, err)
		b.Write(line)
		b.WriteString("\n")
	}
	return b.String()
}

func errorText(t *testing.T, ev models.StreamEvent) string {
	t.Helper()
	require.Equal(t, models.EventError, ev.Type)
	msg, ok := ev.Data.ErrorMessage()
	require.True(t, ok)
	return msg
}

func TestSendMessageStreamsUntilComplete(t *testing.T) {
	threadID := uuid.New()
	runID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chatbot/threads/"+threadID.String()+"/messages/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Accept"))
		var msg models.UserMessage
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg)) {
			assert.Equal(t, "qual a resposta?", msg.Content)
			_, err := uuid.Parse(msg.ID)
			assert.NoError(t, err)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, ndjson(t, models.NewToolCallEvent("pensando", models.ToolCall{ID: "1", Name: "q"})))
		fmt.Fprint(w, "\n   \n")
		fmt.Fprint(w, ndjson(t,
			models.NewFinalAnswerEvent("42"),
			models.NewCompleteEvent(runID),
			models.NewFinalAnswerEvent("never read"),
		))
	}))
	defer server.Close()

	client := New(server.URL)
	events := slices.Collect(client.SendMessage(t.Context(), "tok", threadID, "qual a resposta?"))

	require.Len(t, events, 3)
	assert.Equal(t, models.EventToolCall, events[0].Type)
	assert.Equal(t, models.EventFinalAnswer, events[1].Type)
	assert.Equal(t, models.EventComplete, events[2].Type)
	assert.Equal(t, runID, *events[2].Data.RunID)
}

func TestSendMessageReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := New(server.URL, WithReadTimeout(100*time.Millisecond))
	events := slices.Collect(client.SendMessage(t.Context(), "tok", uuid.New(), "oi"))

	require.Len(t, events, 2)
	assert.Equal(t, models.MsgStreamTimeout, errorText(t, events[0]))
	assert.Equal(t, models.EventComplete, events[1].Type)
	require.NotNil(t, events[1].Data.RunID)
}

func TestSendMessageHeaderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := New(server.URL, WithReadTimeout(100*time.Millisecond))
	record, err := conversation.Fold("oi", client.SendMessage(t.Context(), "tok", uuid.New(), "oi"))
	require.NoError(t, err)

	assert.Nil(t, record.AssistantMessage)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, models.MsgStreamTimeout, *record.ErrorMessage)
	require.Len(t, record.Events, 2)
	assert.Equal(t, models.EventError, record.Events[0].Type)
	assert.Equal(t, models.EventComplete, record.Events[1].Type)
	assert.Equal(t, *record.Events[1].Data.RunID, record.ID)
}

func TestSendMessageTimeoutResetsOnData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for range 4 {
			fmt.Fprint(w, "\n")
			flusher.Flush()
			time.Sleep(60 * time.Millisecond)
		}
		fmt.Fprint(w, ndjson(t, models.NewFinalAnswerEvent("ok"), models.NewCompleteEvent(uuid.New())))
	}))
	defer server.Close()

	client := New(server.URL, WithReadTimeout(150*time.Millisecond))
	events := slices.Collect(client.SendMessage(t.Context(), "tok", uuid.New(), "oi"))
	require.Len(t, events, 2)
	assert.Equal(t, models.EventFinalAnswer, events[0].Type)
}

func TestSendMessageSilentTruncation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ndjson(t, models.NewToolCallEvent("", models.ToolCall{ID: "1", Name: "q"})))
	}))
	defer server.Close()

	events := slices.Collect(New(server.URL).SendMessage(t.Context(), "tok", uuid.New(), "oi"))
	require.Len(t, events, 3)
	assert.Equal(t, models.EventToolCall, events[0].Type)
	assert.Equal(t, models.MsgStreamDisconnect, errorText(t, events[1]))
	assert.Equal(t, models.EventComplete, events[2].Type)
}

func TestSendMessageFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		opts    []Option
		before  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "malformed line",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, ndjson(t, models.NewFinalAnswerEvent("parcial")))
				fmt.Fprint(w, "{not json}\n")
				fmt.Fprint(w, ndjson(t, models.NewCompleteEvent(uuid.New())))
			},
			before: 1,
		},
		{
			name: "unknown event type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"type":"partial","data":{}}`+"\n")
			},
		},
		{
			name: "line too long",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, ndjson(t, models.NewFinalAnswerEvent(strings.Repeat("a", 512))))
			},
			opts: []Option{WithMaxLineSize(128)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			events := slices.Collect(New(server.URL, tc.opts...).SendMessage(t.Context(), "tok", uuid.New(), "oi"))
			require.Len(t, events, tc.before+2)
			assert.Equal(t, models.MsgStreamFailure, errorText(t, events[tc.before]))
			assert.Equal(t, models.EventComplete, events[tc.before+1].Type)
		})
	}
}

func TestSendMessageConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	events := slices.Collect(New(url).SendMessage(t.Context(), "tok", uuid.New(), "oi"))
	require.Len(t, events, 2)
	assert.Equal(t, models.MsgStreamFailure, errorText(t, events[0]))
}

func TestSendMessageConsumerStopsEarly(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		fmt.Fprint(w, ndjson(t, models.NewToolCallEvent("", models.ToolCall{ID: "1", Name: "q"})))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	seq := New(server.URL).SendMessage(t.Context(), "tok", uuid.New(), "oi")
	var got []models.StreamEvent
	for ev := range seq {
		got = append(got, ev)
		break
	}
	require.Len(t, got, 1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not cancelled after the consumer stopped")
	}

	assert.Empty(t, slices.Collect(seq))
}

func TestSendMessageIsLazy(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, ndjson(t, models.NewCompleteEvent(uuid.New())))
	}))
	defer server.Close()

	seq := New(server.URL).SendMessage(t.Context(), "tok", uuid.New(), "oi")
	assert.Equal(t, int32(0), calls.Load())
	assert.Len(t, slices.Collect(seq), 1)
	assert.Equal(t, int32(1), calls.Load())
}
