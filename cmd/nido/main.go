package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nidohq/nido/internal/api"
	"github.com/nidohq/nido/internal/assistant"
	"github.com/nidohq/nido/internal/config"
	"github.com/nidohq/nido/internal/kv"
	"github.com/nidohq/nido/internal/llm"
	"github.com/nidohq/nido/internal/llm/gemini"
	"github.com/nidohq/nido/internal/llm/openai"
	"github.com/nidohq/nido/internal/server"
	"github.com/nidohq/nido/internal/session"
	"github.com/nidohq/nido/internal/storage/sqlite"
	"github.com/nidohq/nido/internal/telemetry"
	"github.com/nidohq/nido/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdown, err := telemetry.InitTracer("nido", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := sqlite.New(cfg.Storage.SQLite.Path)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	sessions, err := openSessionStore(cfg.Session)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer sessions.Close()
	resolver := session.NewResolver(sessions)

	// Register built-in LLM providers
	openai.Register()
	gemini.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := llm.New(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		log.Fatalf("Failed to create LLM provider: %v", err)
	}

	counter := tokens.NewTiktoken()
	service := assistant.NewService(store, provider, counter, logger, time.Now)
	handler := api.NewHandler(service, service.Engine(), logger)

	srv := server.New(cfg.Server.Port, logger)
	srv.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv.Router.Handle("/metrics", promhttp.Handler())
	srv.Router.Group(func(r chi.Router) {
		r.Use(server.SessionMiddleware(resolver))
		handler.Mount(r)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	logger.Info("nido started",
		slog.Int("port", cfg.Server.Port),
		slog.String("llm_provider", provider.Name()),
		slog.String("storage", cfg.Storage.SQLite.Path))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func openSessionStore(cfg config.SessionConfig) (kv.Store, error) {
	if cfg.Store == "badger" {
		return kv.NewBadger(cfg.Badger.Path)
	}
	return kv.NewMemory(), nil
}
