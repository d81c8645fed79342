package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
)

const unknownDateFolder = "unknown-date"

type OrganizeUseCase struct {
	repo        ports.PhotoRepository
	blobs       ports.BlobMover
	defaultRoot string
}

func NewOrganizeUseCase(repo ports.PhotoRepository, blobs ports.BlobMover, defaultRoot string) *OrganizeUseCase {
	return &OrganizeUseCase{repo: repo, blobs: blobs, defaultRoot: defaultRoot}
}

// Organize copies every photo without a library path into
// <root>/<YYYY-MM-DD>/<category>/ and records where it landed.
func (uc *OrganizeUseCase) Organize(ctx context.Context, libraryRoot string) (*domain.OrganizeReport, error) {
	root := strings.TrimSpace(libraryRoot)
	if root == "" {
		root = uc.defaultRoot
	}
	if root == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "organize", errors.New("library root is required"))
	}

	photos, err := uc.repo.ListUnorganized(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unorganized photos: %w", err)
	}

	report := &domain.OrganizeReport{
		LibraryRoot: root,
		Total:       len(photos),
		Errors:      []domain.ItemError{},
	}
	for _, photo := range photos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rawCopied, err := uc.organizeOne(ctx, root, photo)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, domain.NewPhotoError(photo.ID, err))
			slog.Warn("organize_photo_failed", "photo_id", photo.ID, "error", err)
			continue
		}
		report.Success++
		report.JPGCopied++
		if rawCopied {
			report.RAWCopied++
		}
	}
	return report, nil
}

func (uc *OrganizeUseCase) organizeOne(ctx context.Context, root string, photo domain.Photo) (bool, error) {
	if !uc.blobs.Exists(photo.SourcePath) {
		return false, domain.WrapError(domain.ErrNotFound, "organize photo", fmt.Errorf("source file missing: %s", photo.SourcePath))
	}
	dir := LibraryDir(root, photo)

	dst, err := uc.blobs.CopyUnique(ctx, photo.SourcePath, dir)
	if err != nil {
		return false, err
	}

	rawCopied := false
	if photo.HasCompanion() && uc.blobs.Exists(*photo.CompanionPath) {
		if _, err := uc.blobs.CopyUnique(ctx, *photo.CompanionPath, dir); err != nil {
			return false, fmt.Errorf("copy companion: %w", err)
		}
		rawCopied = true
	}

	if _, err := uc.repo.UpdateFields(ctx, photo.ID, domain.PhotoUpdate{LibraryPath: &dst}); err != nil {
		return false, fmt.Errorf("record library path: %w", err)
	}
	return rawCopied, nil
}

// LibraryDir is the dated category folder a photo belongs in.
func LibraryDir(root string, photo domain.Photo) string {
	date := unknownDateFolder
	if photo.CapturedAt != nil {
		date = photo.CapturedAt.Format("2006-01-02")
	}
	category := photo.Category
	if category == "" {
		category = domain.CategoryUnclassified
	}
	return filepath.Join(root, date, string(category))
}
