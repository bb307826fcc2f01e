package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"chatbot/internal/models"
	"chatbot/pkg/httputil"

	"github.com/google/uuid"
)

// FeedbackService defines the feedback operations used by the handlers.
type FeedbackService interface {
	SubmitFeedback(ctx context.Context, account int64, pairID uuid.UUID, fb models.Feedback) error
	GetFeedback(ctx context.Context, account int64, pairID uuid.UUID) (*models.FeedbackRecord, error)
}

type FeedbackHandler struct {
	feedbackService FeedbackService
}

func NewFeedbackHandler(svc FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: svc}
}

// HandlePutFeedback handles PUT /chatbot/message-pairs/{pairID}/feedbacks/.
func (h *FeedbackHandler) HandlePutFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountFromRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	pairID, err := uuidParam(r, "pairID")
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid message pair ID format")
		return
	}

	var fb models.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	if err := h.feedbackService.SubmitFeedback(ctx, account, pairID, fb); err != nil {
		respondServiceError(ctx, w, err, "Message pair not found")
		return
	}
	httputil.RespondJSON(ctx, w, http.StatusOK, fb)
}

// HandleGetFeedback handles GET /chatbot/message-pairs/{pairID}/feedbacks/.
func (h *FeedbackHandler) HandleGetFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := accountFromRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	pairID, err := uuidParam(r, "pairID")
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid message pair ID format")
		return
	}

	rec, err := h.feedbackService.GetFeedback(ctx, account, pairID)
	if err != nil {
		respondServiceError(ctx, w, err, "Feedback not found")
		return
	}
	httputil.RespondJSON(ctx, w, http.StatusOK, models.Feedback{Rating: rec.Rating, Comment: rec.Comment})
}
