package ports

import (
	"context"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

// PhotoIngestor is the inbound contract for scanning a volume into the record store.
type PhotoIngestor interface {
	Scan(ctx context.Context, root string, opts domain.ScanOptions) (*domain.IngestionReport, error)
	Preview(ctx context.Context, root string) (*domain.ScanPreview, error)
}

// PhotoClassifier is the inbound contract for batch classification.
type PhotoClassifier interface {
	Classify(ctx context.Context, req domain.ClassifyRequest) (*domain.ClassificationReport, error)
}

// StatisticsService aggregates shooting statistics.
type StatisticsService interface {
	Compute(ctx context.Context, window domain.DateRange) (*domain.StatsReport, error)
	Quick(ctx context.Context) (*domain.QuickStats, error)
}

// SummaryService renders statistics, chart series and a written review.
type SummaryService interface {
	Generate(ctx context.Context, window domain.DateRange) (*domain.Summary, error)
}

// PhotoOrganizer copies unorganized photos into the dated library tree.
type PhotoOrganizer interface {
	Organize(ctx context.Context, libraryRoot string) (*domain.OrganizeReport, error)
}

// PhotoExporter copies a photo selection into a folder or zip archive.
type PhotoExporter interface {
	Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportReport, error)
}

// PhotoCatalog is the inbound read/write model for individual records.
type PhotoCatalog interface {
	Get(ctx context.Context, id int64) (*domain.Photo, error)
	List(ctx context.Context, filter domain.PhotoFilter) (*domain.PhotoPage, error)
	Update(ctx context.Context, id int64, update domain.PhotoUpdate) (*domain.Photo, error)
	BatchUpdate(ctx context.Context, ids []int64, update domain.PhotoUpdate) (int, error)
	BatchDelete(ctx context.Context, ids []int64) (int, error)
}
