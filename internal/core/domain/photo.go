package domain

import "time"

// Photo is the durable record for one unique preview image, keyed by content hash.
type Photo struct {
	ID            int64   `json:"id"`
	FileName      string  `json:"file_name"`
	ContentHash   string  `json:"content_hash"`
	SourcePath    string  `json:"source_path"`
	CompanionPath *string `json:"companion_path,omitempty"`
	LibraryPath   *string `json:"library_path,omitempty"`

	CapturedAt     *time.Time `json:"captured_at,omitempty"`
	CameraModel    *string    `json:"camera_model,omitempty"`
	Lens           *string    `json:"lens,omitempty"`
	FocalLengthMM  *float64   `json:"focal_length_mm,omitempty"`
	ISO            *int       `json:"iso,omitempty"`
	Aperture       *float64   `json:"aperture,omitempty"`
	ShutterSeconds *float64   `json:"shutter_seconds,omitempty"`

	Category   Category `json:"category"`
	Tags       []string `json:"tags"`
	Caption    *string  `json:"caption,omitempty"`
	IsSelected bool     `json:"is_selected"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Photo) HasCompanion() bool {
	return p != nil && p.CompanionPath != nil && *p.CompanionPath != ""
}

// ApplyMetadata copies extracted capture metadata onto the record.
func (p *Photo) ApplyMetadata(meta Metadata) {
	p.CapturedAt = meta.CapturedAt
	p.CameraModel = meta.CameraModel
	p.Lens = meta.Lens
	p.FocalLengthMM = meta.FocalLengthMM
	p.ISO = meta.ISO
	p.Aperture = meta.Aperture
	p.ShutterSeconds = meta.ShutterSeconds
}

// Metadata is the capture metadata extracted from a preview file. Every field
// is optional; CapturedAt falls back to the file modification time.
type Metadata struct {
	CapturedAt     *time.Time
	CameraModel    *string
	Lens           *string
	FocalLengthMM  *float64
	ISO            *int
	Aperture       *float64
	ShutterSeconds *float64
}

// PhotoUpdate is a partial update; nil fields are left untouched.
type PhotoUpdate struct {
	Category      *Category `json:"category,omitempty"`
	Tags          *[]string `json:"tags,omitempty"`
	Caption       *string   `json:"caption,omitempty"`
	IsSelected    *bool     `json:"is_selected,omitempty"`
	LibraryPath   *string   `json:"library_path,omitempty"`
	SourcePath    *string   `json:"source_path,omitempty"`
	CompanionPath *string   `json:"companion_path,omitempty"`
}

func (u PhotoUpdate) Empty() bool {
	return u.Category == nil && u.Tags == nil && u.Caption == nil && u.IsSelected == nil &&
		u.LibraryPath == nil && u.SourcePath == nil && u.CompanionPath == nil
}

// DateRange bounds CapturedAt inclusively. Zero values are open ends.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

func (r DateRange) Contains(t *time.Time) bool {
	if r.From.IsZero() && r.To.IsZero() {
		return true
	}
	if t == nil {
		return false
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type PhotoFilter struct {
	Range      DateRange
	Category   *Category
	IsSelected *bool
	FocalMin   *float64
	FocalMax   *float64
	ISOMin     *int
	ISOMax     *int
	Page       int
	PageSize   int
}

// Normalize clamps paging to sane bounds.
func (f PhotoFilter) Normalize() PhotoFilter {
	out := f
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PageSize <= 0 {
		out.PageSize = DefaultPageSize
	}
	if out.PageSize > MaxPageSize {
		out.PageSize = MaxPageSize
	}
	return out
}

func (f PhotoFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PageSize
}

type PhotoPage struct {
	Photos   []Photo `json:"photos"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Classification is the parsed answer of a vision model for one image.
type Classification struct {
	Category   Category `json:"category"`
	Tags       []string `json:"tags"`
	Caption    string   `json:"caption"`
	Confidence float64  `json:"confidence"`
}
