package ports

import (
	"context"
	"io"
	"iter"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

// PhotoRepository persists photo records. Hash uniqueness is enforced by the store.
type PhotoRepository interface {
	// UpsertByHash inserts photo unless a record with the same content hash
	// exists. It returns the stored record and whether it was newly created.
	UpsertByHash(ctx context.Context, photo *domain.Photo) (*domain.Photo, bool, error)
	GetByID(ctx context.Context, id int64) (*domain.Photo, error)
	GetByHash(ctx context.Context, hash string) (*domain.Photo, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Photo, error)
	UpdateFields(ctx context.Context, id int64, update domain.PhotoUpdate) (*domain.Photo, error)
	List(ctx context.Context, filter domain.PhotoFilter) ([]domain.Photo, int, error)
	ListForStats(ctx context.Context, window domain.DateRange) ([]domain.Photo, error)
	ListUnorganized(ctx context.Context) ([]domain.Photo, error)
	BatchUpdate(ctx context.Context, ids []int64, update domain.PhotoUpdate) (int, error)
	BatchDelete(ctx context.Context, ids []int64) (int, error)
}

// FileWalker enumerates preview-format files under a root.
type FileWalker interface {
	Walk(ctx context.Context, root string) ([]string, error)
}

// ContentHasher fingerprints file bytes.
type ContentHasher interface {
	Hash(path string) (string, error)
}

// MetadataExtractor reads capture metadata. It never fails.
type MetadataExtractor interface {
	Extract(ctx context.Context, path string) domain.Metadata
}

// CompanionFinder locates the RAW sibling of a preview file.
type CompanionFinder interface {
	Find(path string) (string, bool)
}

// ThumbnailStore produces and serves cached thumbnails keyed by content hash.
type ThumbnailStore interface {
	Ensure(ctx context.Context, sourcePath, hash string) (string, error)
	Open(hash string) (io.ReadCloser, error)
}

// ImageClassifier sends one JPEG to a vision model.
type ImageClassifier interface {
	// Ready reports a configuration error when the classifier cannot be used.
	Ready() error
	ClassifyImage(ctx context.Context, jpeg []byte) (domain.Classification, error)
}

// SummaryWriter produces free-form review text from a prompt.
type SummaryWriter interface {
	Ready() error
	WriteSummary(ctx context.Context, prompt string) (string, error)
}

// EventPublisher announces newly ingested photos.
type EventPublisher interface {
	PublishPhotoIngested(ctx context.Context, photoID int64) error
}

// MessageQueue publishes and consumes ingestion events.
type MessageQueue interface {
	EventPublisher
	SubscribePhotoIngested(ctx context.Context, handler func(context.Context, int64) error) error
}

// BlobMover copies photo files into library and export destinations.
type BlobMover interface {
	CopyUnique(ctx context.Context, src, dstDir string) (string, error)
	Exists(path string) bool
	WriteZip(ctx context.Context, dst string, files iter.Seq2[string, string]) (int, error)
}
