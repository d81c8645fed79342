package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/resilience"
)

const (
	DefaultClassifyWorkers = 4
	MaxClassifyWorkers     = 8

	classifyOperation = "vision.classify"
)

// ClassifyObserver tracks photos entering and leaving the worker pool.
type ClassifyObserver interface {
	StartClassification()
	FinishClassification(success bool, attempts int)
}

type ClassifyOptions struct {
	DefaultWorkers int
	Observer       ClassifyObserver
}

type ClassifyUseCase struct {
	repo       ports.PhotoRepository
	thumbs     ports.ThumbnailStore
	classifier ports.ImageClassifier
	executor   *resilience.Executor
	opts       ClassifyOptions
}

func NewClassifyUseCase(
	repo ports.PhotoRepository,
	thumbs ports.ThumbnailStore,
	classifier ports.ImageClassifier,
	executor *resilience.Executor,
	opts ClassifyOptions,
) *ClassifyUseCase {
	if opts.DefaultWorkers < 1 || opts.DefaultWorkers > MaxClassifyWorkers {
		opts.DefaultWorkers = DefaultClassifyWorkers
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.ForRemoteCalls(2))
	}
	return &ClassifyUseCase{
		repo:       repo,
		thumbs:     thumbs,
		classifier: classifier,
		executor:   executor,
		opts:       opts,
	}
}

// Classify runs one batch to completion. Per-photo failures land in the report;
// only invalid input or a missing credential fail the call.
func (uc *ClassifyUseCase) Classify(ctx context.Context, req domain.ClassifyRequest) (*domain.ClassificationReport, error) {
	workers := req.Workers
	if workers == 0 {
		workers = uc.opts.DefaultWorkers
	}
	if workers < 1 || workers > MaxClassifyWorkers {
		return nil, domain.WrapError(domain.ErrInvalidInput, "classify", fmt.Errorf("workers must be between 1 and %d, got %d", MaxClassifyWorkers, workers))
	}
	if err := uc.classifier.Ready(); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "classify", err)
	}

	report := &domain.ClassificationReport{
		BatchID: uuid.NewString(),
		Details: []domain.ClassificationOutcome{},
	}
	ids := dedupeIDs(req.PhotoIDs)
	report.Total = len(ids)

	jobs, missing, err := uc.plan(ctx, ids, req.SkipClassified, report)
	if err != nil {
		return nil, err
	}
	for _, out := range missing {
		report.Failed++
		report.Details = append(report.Details, out)
	}

	started := time.Now()
	for out := range uc.dispatch(ctx, jobs, workers) {
		if out.Success {
			report.Classified++
		} else {
			report.Failed++
		}
		report.Details = append(report.Details, out)
	}

	report.Message = fmt.Sprintf("classification complete: %d classified, %d failed, %d skipped",
		report.Classified, report.Failed, report.Skipped)
	slog.Info("classification_done",
		"batch_id", report.BatchID,
		"total", report.Total,
		"classified", report.Classified,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"workers", workers,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

// plan loads the batch, splitting it into dispatchable photos, skips and
// not-found outcomes.
func (uc *ClassifyUseCase) plan(
	ctx context.Context,
	ids []int64,
	skipClassified bool,
	report *domain.ClassificationReport,
) ([]domain.Photo, []domain.ClassificationOutcome, error) {
	photos, err := uc.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load photos: %w", err)
	}
	byID := make(map[int64]domain.Photo, len(photos))
	for _, p := range photos {
		byID[p.ID] = p
	}

	jobs := make([]domain.Photo, 0, len(ids))
	var missing []domain.ClassificationOutcome
	for _, id := range ids {
		photo, ok := byID[id]
		if !ok {
			err := domain.WrapError(domain.ErrNotFound, "classify photo", fmt.Errorf("photo id=%d", id))
			missing = append(missing, failedOutcome(id, 0, err))
			continue
		}
		if skipClassified && photo.Category != domain.CategoryUnclassified {
			report.Skipped++
			continue
		}
		jobs = append(jobs, photo)
	}
	return jobs, missing, nil
}

// dispatch feeds jobs to a fixed pool and streams outcomes in completion order.
// The channel closes once every job is terminal.
func (uc *ClassifyUseCase) dispatch(ctx context.Context, jobs []domain.Photo, workers int) <-chan domain.ClassificationOutcome {
	queue := make(chan domain.Photo)
	results := make(chan domain.ClassificationOutcome)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for photo := range queue {
				results <- uc.classifyOne(ctx, photo)
			}
		}()
	}
	go func() {
		for _, photo := range jobs {
			queue <- photo
		}
		close(queue)
		wg.Wait()
		close(results)
	}()
	return results
}

func (uc *ClassifyUseCase) classifyOne(ctx context.Context, photo domain.Photo) (out domain.ClassificationOutcome) {
	if uc.opts.Observer != nil {
		uc.opts.Observer.StartClassification()
		defer func() {
			uc.opts.Observer.FinishClassification(out.Success, out.Attempts)
		}()
	}

	image, err := uc.loadThumbnail(photo.ContentHash)
	if err != nil {
		return failedOutcome(photo.ID, 0, err)
	}

	var result domain.Classification
	attempts, err := uc.executor.Execute(ctx, classifyOperation, func(ctx context.Context, _ int) error {
		c, err := uc.classifier.ClassifyImage(ctx, image)
		if err != nil {
			return err
		}
		result = c
		return nil
	}, resilience.ClassifyRemoteError)
	if err != nil {
		slog.Warn("classification_failed", "photo_id", photo.ID, "attempts", attempts, "error", err)
		return failedOutcome(photo.ID, attempts, fmt.Errorf("gave up after %d attempt(s): %w", attempts, err))
	}

	tags := result.Tags
	caption := result.Caption
	category := result.Category
	if _, err := uc.repo.UpdateFields(ctx, photo.ID, domain.PhotoUpdate{
		Category: &category,
		Tags:     &tags,
		Caption:  &caption,
	}); err != nil {
		return failedOutcome(photo.ID, attempts, fmt.Errorf("save classification: %w", err))
	}

	return domain.ClassificationOutcome{
		PhotoID:    photo.ID,
		Success:    true,
		Category:   category,
		Tags:       tags,
		Caption:    caption,
		Confidence: result.Confidence,
		Attempts:   attempts,
	}
}

// loadThumbnail reads the cached thumbnail. A missing one is permanent.
func (uc *ClassifyUseCase) loadThumbnail(hash string) ([]byte, error) {
	rc, err := uc.thumbs.Open(hash)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrThumbnail, "load thumbnail", fmt.Errorf("missing thumbnail for %s", hash))
		}
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "read thumbnail", err)
	}
	return raw, nil
}

func failedOutcome(id int64, attempts int, err error) domain.ClassificationOutcome {
	return domain.ClassificationOutcome{
		PhotoID:   id,
		Attempts:  attempts,
		ErrorKind: domain.KindOf(err),
		Error:     err.Error(),
	}
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
