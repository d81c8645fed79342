package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
)

type ExportUseCase struct {
	repo        ports.PhotoRepository
	blobs       ports.BlobMover
	defaultRoot string
	now         func() time.Time
}

func NewExportUseCase(repo ports.PhotoRepository, blobs ports.BlobMover, defaultRoot string) *ExportUseCase {
	return &ExportUseCase{
		repo:        repo,
		blobs:       blobs,
		defaultRoot: defaultRoot,
		now:         time.Now,
	}
}

type exportItem struct {
	photoID   int64
	jpg       string
	companion string
}

// Export copies the requested photos, or every selected photo when no ids are
// given, into export_<ts>/ or photos_export_<ts>.zip under the destination.
func (uc *ExportUseCase) Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportReport, error) {
	root := strings.TrimSpace(req.Destination)
	if root == "" {
		root = uc.defaultRoot
	}
	if root == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export", errors.New("destination is required"))
	}

	photos, err := uc.selection(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export", errors.New("no photos to export"))
	}

	report := &domain.ExportReport{Errors: []domain.ItemError{}}
	items := make([]exportItem, 0, len(photos))
	for _, photo := range photos {
		item, err := uc.resolve(photo, req.IncludeRAW)
		if err != nil {
			report.Errors = append(report.Errors, domain.NewPhotoError(photo.ID, err))
			continue
		}
		items = append(items, item)
	}

	stamp := uc.now().Format("20060102_150405")
	if req.CreateZip {
		err = uc.exportZip(ctx, filepath.Join(root, "photos_export_"+stamp+".zip"), items, report)
	} else {
		err = uc.exportDir(ctx, filepath.Join(root, "export_"+stamp), items, report)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (uc *ExportUseCase) selection(ctx context.Context, req domain.ExportRequest) ([]domain.Photo, error) {
	if len(req.PhotoIDs) > 0 {
		photos, err := uc.repo.GetByIDs(ctx, dedupeIDs(req.PhotoIDs))
		if err != nil {
			return nil, fmt.Errorf("load export photos: %w", err)
		}
		if !req.OnlySelected {
			return photos, nil
		}
		selected := photos[:0]
		for _, p := range photos {
			if p.IsSelected {
				selected = append(selected, p)
			}
		}
		return selected, nil
	}

	selected := true
	filter := domain.PhotoFilter{IsSelected: &selected, PageSize: domain.MaxPageSize}
	var out []domain.Photo
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := uc.repo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list selected photos: %w", err)
		}
		out = append(out, batch...)
		if len(batch) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

// resolve prefers the organized library copy over the original source.
func (uc *ExportUseCase) resolve(photo domain.Photo, includeRAW bool) (exportItem, error) {
	item := exportItem{photoID: photo.ID}
	switch {
	case photo.LibraryPath != nil && uc.blobs.Exists(*photo.LibraryPath):
		item.jpg = *photo.LibraryPath
	case uc.blobs.Exists(photo.SourcePath):
		item.jpg = photo.SourcePath
	default:
		return item, domain.WrapError(domain.ErrNotFound, "export photo", fmt.Errorf("source file missing: %s", photo.SourcePath))
	}
	if includeRAW && photo.HasCompanion() && uc.blobs.Exists(*photo.CompanionPath) {
		item.companion = *photo.CompanionPath
	}
	return item, nil
}

func (uc *ExportUseCase) exportDir(ctx context.Context, dir string, items []exportItem, report *domain.ExportReport) error {
	report.Path = dir
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := uc.blobs.CopyUnique(ctx, item.jpg, dir); err != nil {
			report.Errors = append(report.Errors, domain.NewPhotoError(item.photoID, err))
			continue
		}
		report.ExportedCount++
		report.JPGCount++
		if item.companion == "" {
			continue
		}
		if _, err := uc.blobs.CopyUnique(ctx, item.companion, dir); err != nil {
			report.Errors = append(report.Errors, domain.NewPhotoError(item.photoID, fmt.Errorf("copy companion: %w", err)))
			continue
		}
		report.RAWCount++
	}
	return nil
}

func (uc *ExportUseCase) exportZip(ctx context.Context, path string, items []exportItem, report *domain.ExportReport) error {
	report.Path = path
	if len(items) == 0 {
		return nil
	}
	files := func(yield func(string, string) bool) {
		for _, item := range items {
			if !yield(filepath.Base(item.jpg), item.jpg) {
				return
			}
			if item.companion != "" && !yield(filepath.Base(item.companion), item.companion) {
				return
			}
		}
	}
	if _, err := uc.blobs.WriteZip(ctx, path, files); err != nil {
		return fmt.Errorf("write export archive: %w", err)
	}
	for _, item := range items {
		report.ExportedCount++
		report.JPGCount++
		if item.companion != "" {
			report.RAWCount++
		}
	}
	return nil
}
