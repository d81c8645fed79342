package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
)

// CatalogUseCase is the record-level read and curation surface.
type CatalogUseCase struct {
	repo ports.PhotoRepository
}

func NewCatalogUseCase(repo ports.PhotoRepository) *CatalogUseCase {
	return &CatalogUseCase{repo: repo}
}

func (uc *CatalogUseCase) Get(ctx context.Context, id int64) (*domain.Photo, error) {
	if id <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get photo", fmt.Errorf("invalid id %d", id))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *CatalogUseCase) List(ctx context.Context, filter domain.PhotoFilter) (*domain.PhotoPage, error) {
	if err := validateRange(filter.Range); err != nil {
		return nil, err
	}
	if filter.Category != nil && !filter.Category.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list photos", fmt.Errorf("unknown category %q", *filter.Category))
	}
	filter = filter.Normalize()

	photos, total, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return &domain.PhotoPage{
		Photos:   photos,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// Update applies a manual edit. Path fields are owned by ingestion and the
// organizer and cannot be changed here.
func (uc *CatalogUseCase) Update(ctx context.Context, id int64, update domain.PhotoUpdate) (*domain.Photo, error) {
	if err := curationOnly(update); err != nil {
		return nil, err
	}
	return uc.repo.UpdateFields(ctx, id, update)
}

func (uc *CatalogUseCase) BatchUpdate(ctx context.Context, ids []int64, update domain.PhotoUpdate) (int, error) {
	if len(ids) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "batch update", errors.New("photo_ids is required"))
	}
	if err := curationOnly(update); err != nil {
		return 0, err
	}
	return uc.repo.BatchUpdate(ctx, dedupeIDs(ids), update)
}

func (uc *CatalogUseCase) BatchDelete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "batch delete", errors.New("photo_ids is required"))
	}
	return uc.repo.BatchDelete(ctx, dedupeIDs(ids))
}

func curationOnly(update domain.PhotoUpdate) error {
	if update.LibraryPath != nil || update.SourcePath != nil || update.CompanionPath != nil {
		return domain.WrapError(domain.ErrInvalidInput, "update photo", errors.New("path fields are read-only"))
	}
	if update.Empty() {
		return domain.WrapError(domain.ErrInvalidInput, "update photo", errors.New("no fields to update"))
	}
	if update.Category != nil && !update.Category.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "update photo", fmt.Errorf("unknown category %q", *update.Category))
	}
	return nil
}
