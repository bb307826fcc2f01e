package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	api_models "chatbot/internal/models"
	"chatbot/internal/services"
	"chatbot/pkg/httputil"

	"goa.design/clue/log"
)

// AuthService defines the interface expected from the auth service.
// This promotes loose coupling and testability.
type AuthService interface {
	Login(ctx context.Context, email, password string) (string, *api_models.User, error)
}

type AuthHandler struct {
	authService AuthService
}

func NewAuthHandler(authSvc AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authSvc,
	}
}

// decodeTokenRequest reads the credentials from a JSON body or from form
// values.
func decodeTokenRequest(r *http.Request) (api_models.TokenRequest, error) {
	var req api_models.TokenRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	return req, nil
}

// HandleToken handles the POST /chatbot/token/ request.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer r.Body.Close()

	req, err := decodeTokenRequest(r)
	if err != nil {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.RespondError(ctx, w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, _, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		// Error Mapping
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			log.Warn(ctx, log.KV{K: "msg", V: "token request rejected"})
			httputil.RespondError(ctx, w, http.StatusUnauthorized, err.Error()) // 401
		default:
			log.Error(ctx, err, log.KV{K: "msg", V: "token request failed"})
			httputil.RespondError(ctx, w, http.StatusInternalServerError, "Login failed due to an internal error") // 500
		}
		return
	}

	httputil.RespondJSON(ctx, w, http.StatusOK, api_models.TokenResponse{Access: token})
}
