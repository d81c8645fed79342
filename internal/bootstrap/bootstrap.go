package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
	"github.com/kirillkom/sd-photo-assistant/internal/core/usecase"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/exifmeta"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/photofs"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/thumbnail"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/metrics"
)

type App struct {
	Config config.Config

	// Queue is nil unless NATS_ENABLED is set.
	Queue  ports.MessageQueue
	Repo   ports.PhotoRepository
	Thumbs *thumbnail.Cache

	IngestUC   *usecase.IngestUseCase
	ClassifyUC *usecase.ClassifyUseCase
	StatsUC    *usecase.StatsUseCase
	SummaryUC  *usecase.SummaryUseCase
	OrganizeUC *usecase.OrganizeUseCase
	ExportUC   *usecase.ExportUseCase
	CatalogUC  *usecase.CatalogUseCase

	closers []func() error
}

type Options struct {
	// Metrics observes ingestion and classification when set.
	Metrics *metrics.PipelineMetrics
	// RequireQueue fails startup when NATS is disabled.
	RequireQueue bool
}

type schemaRepository interface {
	ports.PhotoRepository
	EnsureSchema(ctx context.Context) error
}

type aiClient interface {
	ports.ImageClassifier
	ports.SummaryWriter
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	db, repo, err := openRepository(cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Repo = repo

	thumbs, err := thumbnail.New(cfg.ThumbsDir, cfg.ThumbWidth, cfg.ThumbQuality)
	if err != nil {
		return nil, fmt.Errorf("init thumbnail cache: %w", err)
	}
	app.Thumbs = thumbs

	var fallback exifmeta.Fallback
	if cfg.UseExifTool {
		et, err := exifmeta.NewExifTool()
		if err != nil {
			slog.Warn("exiftool_unavailable", "error", err)
		} else {
			fallback = et
			app.closers = append(app.closers, et.Close)
		}
	}

	executor := resilience.NewExecutor(classifyPolicy(cfg))

	var events ports.EventPublisher
	if cfg.NATSEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, func() error {
			queue.Close()
			return nil
		})
		app.Queue = queue
		events = queue
	} else if opts.RequireQueue {
		return nil, errors.New("NATS_ENABLED must be true for this process")
	}

	ai := newAIClient(cfg)
	blobs := localfs.New()

	ingestOpts := usecase.IngestOptions{Workers: cfg.IngestWorkers}
	classifyOpts := usecase.ClassifyOptions{DefaultWorkers: cfg.ClassifyWorkers}
	if opts.Metrics != nil {
		ingestOpts.Observer = opts.Metrics
		classifyOpts.Observer = opts.Metrics
	}

	app.IngestUC = usecase.NewIngestUseCase(
		repo,
		photofs.NewWalker(),
		photofs.NewHasher(cfg.HashChunkSize),
		exifmeta.NewExtractor(fallback),
		thumbs,
		photofs.NewCompanionMatcher(),
		events,
		ingestOpts,
	)
	app.ClassifyUC = usecase.NewClassifyUseCase(repo, thumbs, ai, executor, classifyOpts)
	app.StatsUC = usecase.NewStatsUseCase(repo)
	app.SummaryUC = usecase.NewSummaryUseCase(app.StatsUC, ai)
	app.OrganizeUC = usecase.NewOrganizeUseCase(repo, blobs, cfg.LibraryRoot)
	app.ExportUC = usecase.NewExportUseCase(repo, blobs, cfg.ExportRoot)
	app.CatalogUC = usecase.NewCatalogUseCase(repo)

	slog.Info("bootstrap_ready",
		"db_driver", cfg.DBDriver,
		"ai_provider", cfg.AIProvider,
		"nats_enabled", cfg.NATSEnabled,
		"exiftool", fallback != nil,
	)
	return app, nil
}

// classifyPolicy bounds model calls by AI_MAX_RETRIES alone.
func classifyPolicy(cfg config.Config) resilience.Config {
	return resilience.ForRemoteCalls(cfg.AIMaxRetries)
}

// publishPolicy guards event publishing; BREAKER_ENABLED toggles its breaker.
func publishPolicy(cfg config.Config) resilience.Config {
	policy := resilience.DefaultConfig()
	policy.BreakerEnabled = cfg.BreakerEnabled
	return policy
}

func openRepository(cfg config.Config) (*sql.DB, schemaRepository, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, postgres.NewPhotoRepository(db), nil
	case config.DriverSQLite, "":
		db, err := sqlite.OpenDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, sqlite.NewPhotoRepository(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

func newAIClient(cfg config.Config) aiClient {
	timeout := time.Duration(cfg.AITimeoutSeconds) * time.Second
	if cfg.AIProvider == config.ProviderOllama {
		return ollama.New(ollama.Options{
			BaseURL:           cfg.OllamaURL,
			Model:             cfg.OllamaVisionModel,
			Timeout:           timeout,
			RequestsPerSecond: cfg.AIRequestsPerSecond,
		})
	}
	return openaicompat.New(openaicompat.Options{
		BaseURL:           cfg.AIBaseURL,
		APIKey:            cfg.AIAPIKey,
		Model:             cfg.AIModel,
		Timeout:           timeout,
		RequestsPerSecond: cfg.AIRequestsPerSecond,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
