package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/antoniostano/interviewer/internal/config"
	"github.com/antoniostano/interviewer/internal/httpapi"
	"github.com/antoniostano/interviewer/internal/interview"
	"github.com/antoniostano/interviewer/internal/live"
	"github.com/antoniostano/interviewer/internal/observability"
	"github.com/antoniostano/interviewer/internal/session"
	"github.com/antoniostano/interviewer/internal/transcript"
)

func main() {
	envFile := os.Getenv("APP_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("interviewer exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	if exported, err := cfg.ExportCredentials(); err != nil {
		return err
	} else if exported {
		logger.Info("using service account credentials", "path", cfg.GoogleCredentialsFile)
	}

	runner, provider, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("live provider selected", "provider", provider, "model", cfg.AgentModel)

	store, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("transcript store init failed: %w", err)
	}
	defer store.Close()
	if cfg.DatabaseURL != "" {
		logger.Info("transcripts stored in postgres")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	sessions := session.NewManager(runner, cfg.AppName, cfg.QueueBuffer)
	api := httpapi.New(
		cfg,
		interview.NewInMemoryStore(),
		sessions,
		transcript.NewArchive(store, cfg.TranscriptRedactPII, logger),
		metrics,
		logger,
	)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}
	// Open event streams only end once their sessions are released.
	httpServer.RegisterOnShutdown(func() {
		n := sessions.CloseAll()
		logger.Info("released live sessions", "count", n)
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("interviewer listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-sigCh:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
	return nil
}

// newRunner picks the live runtime. "auto" uses Gemini when credentials are
// available and the local mock otherwise.
func newRunner(ctx context.Context, cfg config.Config, logger *slog.Logger) (live.Runner, string, error) {
	useGemini := cfg.LiveProvider == "gemini" || (cfg.LiveProvider == "auto" && cfg.HasGoogleCredentials())
	if !useGemini {
		if cfg.LiveProvider == "auto" {
			logger.Warn("no Google credentials found, using mock live runtime")
		}
		return live.NewMockRunner(), "mock", nil
	}
	runner, err := live.NewGeminiRunner(ctx, live.GeminiConfig{
		APIKey:          cfg.GoogleAPIKey,
		VertexAI:        cfg.GoogleUseVertexAI,
		Project:         cfg.GoogleCloudProject,
		Location:        cfg.GoogleCloudLocation,
		AudioInputRate:  cfg.AudioInputRate,
		ConnectAttempts: cfg.LiveConnectRetries,
	}, logger)
	if err != nil {
		return nil, "", fmt.Errorf("gemini live runtime init failed: %w", err)
	}
	return runner, "gemini", nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
