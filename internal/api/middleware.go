package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"chatbot/internal/auth"
	"chatbot/pkg/httputil"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"goa.design/clue/log"
)

// --- JWT Middleware ---

// JwtAuthMiddleware verifies the JWT token from the Authorization header.
// If valid, it injects the account id into the request context.
func JwtAuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn(ctx, log.KV{K: "msg", V: "Auth Middleware: missing Authorization header"})
				httputil.RespondError(ctx, w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn(ctx, log.KV{K: "msg", V: "Auth Middleware: malformed Authorization header"})
				httputil.RespondError(ctx, w, http.StatusUnauthorized, "Malformed Authorization header (Expected: Bearer <token>)")
				return
			}

			claims, err := auth.ParseAccessToken(parts[1], jwtSecret)
			if err != nil {
				log.Warn(ctx, log.KV{K: "msg", V: "Auth Middleware: rejected token"}, log.KV{K: "err", V: err.Error()})
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					httputil.RespondError(ctx, w, http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, jwt.ErrTokenMalformed):
					httputil.RespondError(ctx, w, http.StatusUnauthorized, "Malformed token")
				default:
					httputil.RespondError(ctx, w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}

			ctx = auth.WithAccount(ctx, claims.Account)
			ctx = log.With(ctx, log.KV{K: "account", V: claims.Account})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// --- Logging Middleware ---

// RequestLogger copies the logger of logCtx into every request context and
// logs one line per request once it is served. The wrapped writer keeps
// http.Flusher so streamed responses are not buffered.
func RequestLogger(logCtx context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := log.WithContext(r.Context(), logCtx)
			ctx = log.With(ctx,
				log.KV{K: "req", V: middleware.GetReqID(r.Context())},
				log.KV{K: "method", V: r.Method},
				log.KV{K: "path", V: r.URL.Path},
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			log.Print(ctx,
				log.KV{K: "status", V: ww.Status()},
				log.KV{K: "bytes", V: ww.BytesWritten()},
				log.KV{K: "duration", V: time.Since(start).String()},
			)
		})
	}
}
