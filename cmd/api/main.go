// Package main is the entry point for the survey platform server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/menuline/survey-platform/internal/config"
	"github.com/menuline/survey-platform/internal/handler"
	"github.com/menuline/survey-platform/internal/kv"
	"github.com/menuline/survey-platform/internal/middleware"
	natsclient "github.com/menuline/survey-platform/internal/nats"
	"github.com/menuline/survey-platform/internal/registry"
	"github.com/menuline/survey-platform/internal/service"
	"github.com/menuline/survey-platform/internal/worker"
	"github.com/menuline/survey-platform/pkg/logger"
	"github.com/menuline/survey-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting survey platform")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "survey-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to Redis
	store, err := kv.ConnectRedis(ctx, kv.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Error("failed to connect to redis", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	// Connect to NATS
	natsClient, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Initialize the registry and survey service
	reg := registry.NewManager(store, cfg.KeyPrefix, log)
	surveys := service.NewSurveyService(reg, log, service.Options{
		MultiPoll: cfg.MultiPoll,
	})

	// Start the inbound message worker
	inbound := worker.New(natsClient, surveys, log, cfg.InboundSubject, cfg.WorkerQueue)
	if err := inbound.Start(); err != nil {
		log.Error("failed to start worker", zap.Error(err))
		os.Exit(1)
	}
	defer inbound.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(store, natsClient)
	pollHandler := handler.NewPollHandler(reg, cfg.DefaultBatchSize, log)
	resultsHandler := handler.NewResultsHandler(reg, log)
	participantHandler := handler.NewParticipantHandler(reg, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/polls", pollHandler.Register)
		r.Route("/polls/{id}", func(r chi.Router) {
			r.Put("/", pollHandler.Register)
			r.Get("/", pollHandler.GetConfig)
			r.Get("/exists", pollHandler.Exists)

			// Dashboard read side
			r.Get("/results", resultsHandler.Results)
			r.Get("/results/question", resultsHandler.QuestionResults)
			r.Get("/results.csv", resultsHandler.ResultsCSV)
			r.Get("/users.csv", resultsHandler.UsersCSV)
			r.Get("/export", resultsHandler.Export)
			r.Get("/export.csv", resultsHandler.ExportCSV)

			// Participants
			r.Get("/participants", participantHandler.Active)
			r.Get("/participants/{user_id}/archive", participantHandler.Archive)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
