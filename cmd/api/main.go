package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/sd-photo-assistant/internal/adapters/http"
	"github.com/kirillkom/sd-photo-assistant/internal/bootstrap"
	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/logging"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	pipelineMetrics := metrics.NewPipelineMetrics("api", httpMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Metrics: pipelineMetrics})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingest:   app.IngestUC,
		Classify: app.ClassifyUC,
		Stats:    app.StatsUC,
		Summary:  app.SummaryUC,
		Organize: app.OrganizeUC,
		Export:   app.ExportUC,
		Catalog:  app.CatalogUC,
		Thumbs:   app.Thumbs,
	}, httpMetrics)
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}
	handler, err := router.Handler()
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
