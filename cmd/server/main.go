package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheets/internal/config"
	"github.com/JonMunkholm/sheets/internal/core"
	"github.com/JonMunkholm/sheets/internal/logging"
	"github.com/JonMunkholm/sheets/internal/web"
)

func main() {
	// A .env file is optional; real environment variables win.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if envErr != nil {
		slog.Debug("no .env file loaded", "error", envErr)
	}
	slog.Info("configuration loaded", "config", cfg.String())

	uploads := core.NewGate(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime, core.ErrTooManyUploads)
	sessions := core.NewSessions(core.SessionConfig{
		ParseConcurrency: cfg.Upload.ParseConcurrency,
		BusyWait:         cfg.Session.BusyWait,
		AuditSize:        cfg.Session.AuditSize,
		Uploads:          uploads,
	})

	server := web.NewServer(cfg, sessions, uploads)

	// Background jobs stop with the server.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go sessions.StartReaper(jobCtx, core.ReaperConfig{
		MaxIdle:       cfg.Session.IdleTimeout,
		CheckInterval: cfg.Session.ReapInterval,
	})

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	case <-sigCtx.Done():
	}

	slog.Info("shutting down")
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if st := uploads.Status(); st.Active > 0 {
		slog.Info("waiting for uploads to finish", "active", st.Active)
		if err := uploads.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("uploads did not finish in time", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
