package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbot/internal/api"
	"chatbot/internal/config"
	"chatbot/internal/handlers"
	"chatbot/internal/services"
	"chatbot/internal/store"
	"chatbot/internal/store/memory"
	"chatbot/internal/store/postgres"
	"chatbot/internal/threadlock"

	"goa.design/clue/log"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	log.Print(ctx, log.KV{K: "msg", V: "Starting chatbot backend..."})

	// 1. Load Configuration
	cfg, err := config.LoadServerConfig(ctx)
	if err != nil {
		log.Fatalf(ctx, err, "failed to load configuration")
	}
	if cfg.Debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	// 2. Initialize the store
	var st store.Store
	if cfg.DatabaseURL == "" {
		log.Print(ctx, log.KV{K: "msg", V: "DATABASE_URL not set, using the in-memory store"})
		st = memory.New()
	} else {
		dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second) // Timeout for initial connection
		dbpool, err := postgres.Connect(dbCtx, cfg.DatabaseURL)
		if err != nil {
			dbCancel()
			log.Fatalf(ctx, err, "unable to connect to database")
		}
		defer dbpool.Close()
		pgStore := postgres.NewPostgresStore(dbpool)
		if err := pgStore.EnsureSchema(dbCtx); err != nil {
			dbCancel()
			log.Fatalf(ctx, err, "unable to prepare database schema")
		}
		dbCancel()
		log.Print(ctx, log.KV{K: "msg", V: "Postgres store initialized"})
		st = pgStore
	}

	// 3. Initialize Services
	authService := services.NewAuthService(st, cfg)
	if cfg.SeedEmail != "" {
		if err := authService.EnsureUser(ctx, cfg.SeedEmail, cfg.SeedPassword); err != nil {
			log.Fatalf(ctx, err, "failed to seed user")
		}
		log.Print(ctx, log.KV{K: "msg", V: "seed user ready"}, log.KV{K: "email", V: cfg.SeedEmail})
	}
	responder := &services.ScriptedResponder{Delay: cfg.ResponderDelay}
	chatService := services.NewChatService(st, responder, threadlock.New())

	// 4. Setup Router & Inject Dependencies
	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:     handlers.NewAuthHandler(authService),
		ChatHandler:     handlers.NewChatHandlers(services.NewThreadService(st), chatService),
		FeedbackHandler: handlers.NewFeedbackHandler(services.NewFeedbackService(st)),
		Config:          cfg,
		LogContext:      ctx,
	})

	// 5. Configure and Start HTTP Server
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: message streams outlive any fixed deadline.
		IdleTimeout: 120 * time.Second,
	}

	// Channel to listen for OS signals for graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Print(ctx, log.KV{K: "msg", V: "Server listening"}, log.KV{K: "port", V: cfg.HTTPPort})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf(ctx, err, "could not listen on %s", cfg.HTTPPort)
		}
	}()

	<-stopChan
	log.Print(ctx, log.KV{K: "msg", V: "Shutdown signal received, initiating graceful shutdown..."})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "Server graceful shutdown failed"})
		return
	}
	log.Print(ctx, log.KV{K: "msg", V: "Server shutdown complete."})
}
