package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/config"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
	"github.com/DikshantJangra/hoperxpharma-sub002/scheduler"
	"github.com/DikshantJangra/hoperxpharma-sub002/server"
	"github.com/DikshantJangra/hoperxpharma-sub002/tracing"
)

const shutdownTimeout = 30 * time.Second

// loadEnv reads .env from the working directory, then from the executable's directory.
func loadEnv() {
	if err := godotenv.Load(); err == nil {
		return
	}
	ex, err := os.Executable()
	if err != nil {
		return
	}
	// A missing .env is fine, the environment alone may configure everything.
	_ = godotenv.Load(filepath.Join(filepath.Dir(ex), ".env"))
}

func main() {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logCloser, err := logging.Init(logging.Options{
		Dir:            cfg.LogDir,
		Level:          logging.ParseLevel(cfg.LogLevel),
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	if err != nil {
		logging.Warn("File logging disabled", "error", err)
	}
	defer logCloser.Close()

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env.String(),
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		Insecure:     cfg.OTLPInsecure,
	})
	if err != nil {
		logging.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	application, err := buildApp(startCtx, cfg, clock.NewRealClock())
	cancel()
	if err != nil {
		logging.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	sched := scheduler.NewScheduler(application.finder, application.health, scheduler.Options{
		RolloverAt:     cfg.RolloverAt,
		HealthInterval: cfg.HealthWatchInterval,
	})
	if err := sched.Start(); err != nil {
		logging.Error("Failed to start scheduler", "error", err)
		application.Close()
		os.Exit(1)
	}

	srv := server.NewServer(cfg, application.handler)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logging.Error("Server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server shutdown failed", "error", err)
	}
	sched.Stop()
	if err := application.Close(); err != nil {
		logging.Error("Failed to close backends", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logging.Error("Failed to flush traces", "error", err)
	}
	logging.Info("Shutdown complete")
}
