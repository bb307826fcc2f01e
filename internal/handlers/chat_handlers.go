package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chatbot/internal/models"
	"chatbot/internal/services"
	"chatbot/pkg/httputil"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

// ThreadService defines the thread operations used by the handlers.
type ThreadService interface {
	CreateThread(ctx context.Context, account int64, title string) (*models.Thread, error)
	ListThreads(ctx context.Context, account int64) ([]models.Thread, error)
	DeleteThread(ctx context.Context, account int64, id uuid.UUID) error
}

// ChatService defines the message operations used by the handlers.
type ChatService interface {
	ListMessagePairs(ctx context.Context, account int64, threadID uuid.UUID) ([]models.MessagePair, error)
	Stream(ctx context.Context, account int64, threadID uuid.UUID, msg models.UserMessage, emit services.Emitter) (*models.MessagePair, error)
}

// ChatHandlers handles HTTP requests related to threads and their messages.
type ChatHandlers struct {
	threadService ThreadService
	chatService   ChatService
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(threadService ThreadService, chatService ChatService) *ChatHandlers {
	return &ChatHandlers{
		threadService: threadService,
		chatService:   chatService,
	}
}

// HandleCreateThread handles POST /chatbot/threads/. The body is optional.
func (h *ChatHandlers) HandleCreateThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountFromRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	thread, err := h.threadService.CreateThread(ctx, account, req.Title)
	if err != nil {
		respondServiceError(ctx, w, err, "Thread not found")
		return
	}
	httputil.RespondJSON(ctx, w, http.StatusCreated, thread)
}

// HandleListThreads handles GET /chatbot/threads/. Threads are always
// returned oldest first, the only supported order_by is created_at.
func (h *ChatHandlers) HandleListThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountFromRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if order := r.URL.Query().Get("order_by"); order != "" && order != "created_at" {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Unsupported order_by")
		return
	}

	threads, err := h.threadService.ListThreads(ctx, account)
	if err != nil {
		respondServiceError(ctx, w, err, "Thread not found")
		return
	}
	httputil.RespondJSON(ctx, w, http.StatusOK, threads)
}

// HandleDeleteThread handles DELETE /chatbot/threads/{threadID}/.
func (h *ChatHandlers) HandleDeleteThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountFromRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	threadID, err := uuidParam(r, "threadID")
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid thread ID format")
		return
	}

	if err := h.threadService.DeleteThread(ctx, account, threadID); err != nil {
		respondServiceError(ctx, w, err, "Thread not found")
		return
	}
	httputil.RespondNoContent(w)
}

// HandleListMessages handles GET /chatbot/threads/{threadID}/messages/.
func (h *ChatHandlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountFromRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	threadID, err := uuidParam(r, "threadID")
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid thread ID format")
		return
	}

	pairs, err := h.chatService.ListMessagePairs(ctx, account, threadID)
	if err != nil {
		respondServiceError(ctx, w, err, "Thread not found")
		return
	}
	httputil.RespondJSON(ctx, w, http.StatusOK, pairs)
}

// HandleSendMessage handles POST /chatbot/threads/{threadID}/messages/ and
// streams the run as NDJSON. Errors detected before the first event get a
// regular JSON error response.
func (h *ChatHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountFromRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	threadID, err := uuidParam(r, "threadID")
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid thread ID format")
		return
	}

	var msg models.UserMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	out := httputil.NewNDJSONWriter(w)
	emit := func(ev models.StreamEvent) error { return out.Write(ev) }
	if _, err := h.chatService.Stream(ctx, account, threadID, msg, emit); err != nil {
		if !out.Started() {
			respondServiceError(ctx, w, err, "Thread not found")
			return
		}
		log.Error(ctx, err, log.KV{K: "msg", V: "stream finished with error"}, log.KV{K: "thread", V: threadID})
	}
}
