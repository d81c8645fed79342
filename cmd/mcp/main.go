package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/sd-photo-assistant/internal/adapters/mcp"
	"github.com/kirillkom/sd-photo-assistant/internal/bootstrap"
	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol, so logs go to stderr.
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel, "json")
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(version, mcpadapter.Services{
		Ingest:   app.IngestUC,
		Classify: app.ClassifyUC,
		Stats:    app.StatsUC,
	})
	if err := srv.ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
