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

	"github.com/kirillkom/sd-photo-assistant/internal/bootstrap"
	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/logging"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipelineMetrics := metrics.NewPipelineMetrics("worker", nil)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Metrics: pipelineMetrics, RequireQueue: true})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           pipelineMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribePhotoIngested(ctx, func(handlerCtx context.Context, photoID int64) error {
		classifyCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()
		report, err := app.ClassifyUC.Classify(classifyCtx, domain.ClassifyRequest{
			PhotoIDs:       []int64{photoID},
			Workers:        1,
			SkipClassified: true,
		})
		pipelineMetrics.ObserveEvent(err)
		if err != nil {
			return err
		}
		logger.Info("photo_event_handled",
			"photo_id", photoID,
			"classified", report.Classified,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
