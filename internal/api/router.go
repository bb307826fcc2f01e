package api

import (
	"context"
	"net/http"

	"chatbot/internal/config"
	"chatbot/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler     *handlers.AuthHandler
	ChatHandler     *handlers.ChatHandlers
	FeedbackHandler *handlers.FeedbackHandler
	Config          *config.ServerConfig
	// LogContext carries the logger copied into every request.
	LogContext context.Context
}

// NewRouter creates and configures the main Chi router for the application.
// Routes keep their trailing slash, which is how clients address them.
func NewRouter(deps RouterDependencies) *chi.Mux {
	if deps.AuthHandler == nil || deps.ChatHandler == nil || deps.FeedbackHandler == nil {
		panic("handler dependency is nil in router setup")
	}
	logCtx := deps.LogContext
	if logCtx == nil {
		logCtx = context.Background()
	}

	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	// No request timeout: message streams stay open for minutes.
	r.Use(middleware.RequestID)  // Inject request ID into context
	r.Use(middleware.RealIP)     // Use X-Forwarded-For or X-Real-IP
	r.Use(RequestLogger(logCtx)) // Structured request logs
	r.Use(middleware.Recoverer)  // Recover from panics, return 500

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/chatbot", func(r chi.Router) {
		r.Post("/token/", deps.AuthHandler.HandleToken)

		// --- Authenticated Routes (JWT Required) ---
		r.Group(func(r chi.Router) {
			r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

			r.Post("/threads/", deps.ChatHandler.HandleCreateThread)
			r.Get("/threads/", deps.ChatHandler.HandleListThreads)
			r.Delete("/threads/{threadID}/", deps.ChatHandler.HandleDeleteThread)
			r.Get("/threads/{threadID}/messages/", deps.ChatHandler.HandleListMessages)
			r.Post("/threads/{threadID}/messages/", deps.ChatHandler.HandleSendMessage)

			r.Put("/message-pairs/{pairID}/feedbacks/", deps.FeedbackHandler.HandlePutFeedback)
			r.Get("/message-pairs/{pairID}/feedbacks/", deps.FeedbackHandler.HandleGetFeedback)
		})
	})

	return r
}
