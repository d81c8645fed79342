package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
)

const (
	ingestResultNew       = "new"
	ingestResultDuplicate = "duplicate"
	ingestResultError     = "error"
)

// IngestObserver receives per-file and per-scan measurements.
type IngestObserver interface {
	ObserveIngestFile(result string)
	ObserveIngestScan(duration time.Duration)
}

type IngestOptions struct {
	// Workers prepares files concurrently; 1 processes them one at a time.
	Workers  int
	Observer IngestObserver
}

type IngestUseCase struct {
	repo       ports.PhotoRepository
	walker     ports.FileWalker
	hasher     ports.ContentHasher
	extractor  ports.MetadataExtractor
	thumbs     ports.ThumbnailStore
	companions ports.CompanionFinder
	events     ports.EventPublisher
	opts       IngestOptions
	hashLocks  *keyedMutex
}

// NewIngestUseCase wires the scan pipeline. events may be nil.
func NewIngestUseCase(
	repo ports.PhotoRepository,
	walker ports.FileWalker,
	hasher ports.ContentHasher,
	extractor ports.MetadataExtractor,
	thumbs ports.ThumbnailStore,
	companions ports.CompanionFinder,
	events ports.EventPublisher,
	opts IngestOptions,
) *IngestUseCase {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &IngestUseCase{
		repo:       repo,
		walker:     walker,
		hasher:     hasher,
		extractor:  extractor,
		thumbs:     thumbs,
		companions: companions,
		events:     events,
		opts:       opts,
		hashLocks:  newKeyedMutex(),
	}
}

type fileOutcome struct {
	photo   *domain.Photo
	created bool
	err     error
}

func (uc *IngestUseCase) Scan(ctx context.Context, root string, opts domain.ScanOptions) (*domain.IngestionReport, error) {
	started := time.Now()
	files, err := uc.walker.Walk(ctx, root)
	if err != nil {
		return nil, err
	}

	report := &domain.IngestionReport{
		SessionID:  uuid.NewString(),
		Root:       root,
		TotalFound: len(files),
		Photos:     []domain.Photo{},
		Errors:     []domain.ItemError{},
	}
	if len(files) == 0 {
		report.Message = "no JPG photos found"
		report.Duration = time.Since(started)
		return report, nil
	}

	outcomes := uc.processAll(ctx, files, opts)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan %s interrupted: %w", root, err)
	}

	for i, out := range outcomes {
		switch {
		case out.err != nil:
			report.Errors = append(report.Errors, domain.NewPathError(files[i], out.err))
			uc.observeFile(ingestResultError)
		case out.created:
			report.NewImported++
			if out.photo.HasCompanion() {
				report.WithCompanion++
			}
			report.Photos = append(report.Photos, *out.photo)
			uc.observeFile(ingestResultNew)
		default:
			report.Duplicates++
			report.Photos = append(report.Photos, *out.photo)
			uc.observeFile(ingestResultDuplicate)
		}
	}
	sort.SliceStable(report.Errors, func(i, j int) bool {
		return report.Errors[i].Path < report.Errors[j].Path
	})

	report.Duration = time.Since(started)
	report.Message = fmt.Sprintf("scan complete: found %d, imported %d, duplicates %d, errors %d",
		report.TotalFound, report.NewImported, report.Duplicates, len(report.Errors))
	if uc.opts.Observer != nil {
		uc.opts.Observer.ObserveIngestScan(report.Duration)
	}

	slog.Info("scan_completed",
		"session_id", report.SessionID,
		"root", root,
		"total_found", report.TotalFound,
		"new_imported", report.NewImported,
		"duplicates", report.Duplicates,
		"errors", len(report.Errors),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// processAll runs ingestFile over every path with a fixed pool. Each worker
// writes only the slot of the file it took.
func (uc *IngestUseCase) processAll(ctx context.Context, files []string, opts domain.ScanOptions) []fileOutcome {
	outcomes := make([]fileOutcome, len(files))
	jobs := make(chan int)

	workers := min(uc.opts.Workers, len(files))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = uc.ingestFile(ctx, files[i], opts)
			}
		}()
	}

dispatch:
	for i := range files {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

func (uc *IngestUseCase) ingestFile(ctx context.Context, path string, opts domain.ScanOptions) (out fileOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = fileOutcome{err: domain.WrapError(domain.ErrParse, "ingest file", fmt.Errorf("panic: %v", r))}
		}
		if out.err != nil {
			slog.Warn("scan_file_failed", "path", path, "kind", domain.KindOf(out.err), "error", out.err)
		}
	}()

	hash, err := uc.hasher.Hash(path)
	if err != nil {
		return fileOutcome{err: err}
	}

	photo := &domain.Photo{
		FileName:    filepath.Base(path),
		ContentHash: hash,
		SourcePath:  path,
		Category:    domain.CategoryUnclassified,
		Tags:        []string{},
	}
	photo.ApplyMetadata(uc.extractor.Extract(ctx, path))

	if _, err := uc.thumbs.Ensure(ctx, path, hash); err != nil {
		slog.Warn("thumbnail_failed", "path", path, "hash", hash, "error", err)
	}
	if companion, ok := uc.companions.Find(path); ok {
		photo.CompanionPath = &companion
	}

	unlock := uc.hashLocks.Lock(hash)
	defer unlock()

	stored, created, err := uc.repo.UpsertByHash(ctx, photo)
	if err != nil {
		return fileOutcome{err: domain.WrapError(domain.ErrIO, "store photo", err)}
	}
	if created {
		uc.publish(ctx, stored.ID)
		return fileOutcome{photo: stored, created: true}
	}

	if opts.Relink && needsRelink(stored, photo) {
		relinked, err := uc.relink(ctx, stored, photo)
		if err != nil {
			return fileOutcome{err: err}
		}
		stored = relinked
	}
	return fileOutcome{photo: stored}
}

func needsRelink(stored, found *domain.Photo) bool {
	if stored.SourcePath != found.SourcePath {
		return true
	}
	return companionOf(stored) != companionOf(found)
}

func (uc *IngestUseCase) relink(ctx context.Context, stored, found *domain.Photo) (*domain.Photo, error) {
	source := found.SourcePath
	companion := companionOf(found)
	updated, err := uc.repo.UpdateFields(ctx, stored.ID, domain.PhotoUpdate{
		SourcePath:    &source,
		CompanionPath: &companion,
	})
	if err != nil {
		return nil, fmt.Errorf("relink photo id=%d: %w", stored.ID, err)
	}
	slog.Info("photo_relinked", "photo_id", stored.ID, "from", stored.SourcePath, "to", source)
	return updated, nil
}

func companionOf(p *domain.Photo) string {
	if p.CompanionPath == nil {
		return ""
	}
	return *p.CompanionPath
}

func (uc *IngestUseCase) publish(ctx context.Context, photoID int64) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishPhotoIngested(ctx, photoID); err != nil {
		slog.Warn("publish_photo_ingested_failed", "photo_id", photoID, "error", err)
	}
}

func (uc *IngestUseCase) observeFile(result string) {
	if uc.opts.Observer != nil {
		uc.opts.Observer.ObserveIngestFile(result)
	}
}

// Preview counts preview files and likely companions without hashing or storing.
func (uc *IngestUseCase) Preview(ctx context.Context, root string) (*domain.ScanPreview, error) {
	files, err := uc.walker.Walk(ctx, root)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return &domain.ScanPreview{Valid: false, Path: root}, nil
		}
		return nil, err
	}

	preview := &domain.ScanPreview{Valid: true, Path: root, JPGCount: len(files)}
	for _, path := range files {
		if _, ok := uc.companions.Find(path); ok {
			preview.EstimatedCompanionCount++
		}
	}
	return preview, nil
}
