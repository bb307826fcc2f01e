package handlers

import (
	"context"
	"errors"
	"net/http"

	"chatbot/internal/auth"
	"chatbot/internal/services"
	"chatbot/internal/store"
	"chatbot/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"goa.design/clue/log"
)

var errNoAccount = errors.New("account not found in context")

// accountFromRequest returns the account injected by the JWT middleware.
func accountFromRequest(r *http.Request) (int64, error) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		return 0, errNoAccount
	}
	return account, nil
}

// uuidParam parses the URL parameter name as a UUID.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// respondServiceError maps service and store errors to status codes.
func respondServiceError(ctx context.Context, w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondError(ctx, w, http.StatusNotFound, notFound)
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidFeedback):
		httputil.RespondError(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrThreadBusy):
		httputil.RespondError(ctx, w, http.StatusConflict, "A message is already being answered in this thread")
	default:
		log.Error(ctx, err, log.KV{K: "msg", V: "request failed"})
		httputil.RespondError(ctx, w, http.StatusInternalServerError, "Internal server error")
	}
}
