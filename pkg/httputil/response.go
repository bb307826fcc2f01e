package httputil

import (
	"context"
	"encoding/json"
	"net/http"

	api_models "chatbot/internal/models"

	"goa.design/clue/log"
)

// RespondJSON writes a JSON response with the given status code and payload.
func RespondJSON(ctx context.Context, w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Can't write header again here, just log the error
		log.Error(ctx, err, log.KV{K: "msg", V: "error encoding JSON response"})
	}
}

// RespondError writes a JSON error response with the given status code and message.
func RespondError(ctx context.Context, w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(ctx, w, statusCode, api_models.ErrorResponse{Error: message})
}

// RespondNoContent writes an empty 204 response.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
