package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/melih/diskforge/internal/app"
	"github.com/melih/diskforge/internal/config"
)

var CLI struct {
	Config string `short:"c" help:"Configuration file path" type:"path"`
}

func main() {
	kong.Parse(&CLI, kong.Description("diskforge HTTP API server"))

	// 1. Configuration
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	// 2. Adapters and the build service
	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	// 3. Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = a.Serve(ctx)
	stop()
	if closeErr := a.Close(); closeErr != nil {
		logger.Warn("Failed to close", "error", closeErr)
	}
	if err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
