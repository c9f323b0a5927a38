package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialcraft/router/internal/auth"
	"github.com/dialcraft/router/internal/config"
	"github.com/dialcraft/router/internal/directory"
	"github.com/dialcraft/router/internal/ivr"
	"github.com/dialcraft/router/internal/metrics"
	"github.com/dialcraft/router/internal/provider"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/routing"
	"github.com/dialcraft/router/internal/storage"
	"github.com/dialcraft/router/internal/webhook"
	"github.com/dialcraft/router/internal/ws"
	"github.com/dialcraft/router/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("base_url", cfg.BaseURL).
		Str("log_level", cfg.LogLevel).
		Msg("starting call routing server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relational store for configuration, flows, agents and queue state
	var store storage.Store
	if dsn := storage.PostgresDSN(); dsn != "" {
		pg, err := storage.NewPostgresStore(dsn, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize postgres store")
		}
		store = pg
	} else {
		log.Warn().Msg("POSTGRES_DSN not set, using noop store")
		store = storage.NewNoopStore()
	}
	defer store.Close()

	// Append-only routing audit trail
	audit, err := storage.NewAuditStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audit store")
	}

	// Telephony carrier
	var carrier provider.Provider
	if cfg.TwilioAccountSID != "" {
		tw, err := provider.NewTwilio(provider.TwilioOpts{
			AccountSID:         cfg.TwilioAccountSID,
			AuthToken:          cfg.TwilioAuthToken,
			BaseURL:            cfg.BaseURL,
			ValidateSignatures: cfg.ValidateWebhookSignatures,
		}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize twilio provider")
		}
		carrier = tw
	} else {
		log.Warn().Msg("TWILIO_ACCOUNT_SID not set, using noop provider")
		carrier = provider.NewNoop(log.Logger)
	}

	// Core services
	dir := directory.New(store, log.Logger)
	if workspaceID := os.Getenv("WORKSPACE_ID"); workspaceID != "" {
		if err := dir.Load(ctx, workspaceID); err != nil {
			log.Error().Err(err).Str("workspace_id", workspaceID).Msg("failed to load agent directory")
		}
	}

	qm := queue.NewManager(store, log.Logger)
	exec := routing.NewExecutor(dir, qm, log.Logger)
	compiler := ivr.NewCompiler(cfg.BaseURL, log.Logger)
	engine := routing.NewEngine(store, audit, dir, qm, exec, compiler, carrier,
		cfg.BaseURL, cfg.DefaultTransferNumber, log.Logger)

	// Supervisor queue-health feed
	hub := ws.NewHub(log.Logger)
	go hub.Run()
	wsHandler := ws.NewHandler(hub, cfg, log.Logger)
	broadcaster := ws.NewBroadcaster(hub, qm, dir, 2*time.Second, log.Logger)
	go broadcaster.Start(ctx)

	// HTTP handlers
	voiceHandler := webhook.NewVoiceHandler(engine, qm, carrier, log.Logger)
	adminHandler := webhook.NewAdminHandler(dir, qm, engine, store, audit, log.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Carrier webhooks (signature-validated, no JWT)
	r.Route("/webhooks/voice", func(r chi.Router) {
		r.Post("/answer", voiceHandler.Answer)
		r.Post("/dtmf", voiceHandler.DTMF)
		r.Post("/connect", voiceHandler.Connect)
		r.Post("/recordings", voiceHandler.Recordings)
		r.Post("/events", voiceHandler.Events)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(webhook.RequireSupervisorOrAdmin)
				r.Get("/queues/{workspaceID}", adminHandler.GetQueueSnapshot)
				r.Get("/queues/{workspaceID}/stats", adminHandler.GetQueueStats)
				r.Get("/agents/{workspaceID}", adminHandler.ListAgents)
				r.Post("/agents/{workspaceID}/{agentID}/release", adminHandler.ReleaseAgent)
			})

			r.Group(func(r chi.Router) {
				r.Use(webhook.RequireAdmin)
				r.Post("/agents/{workspaceID}/reload", adminHandler.ReloadAgents)
				r.Get("/audit/{dateKey}", adminHandler.ListAuditRecords)
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"call-router"}`)
}
