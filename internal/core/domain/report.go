package domain

import "time"

// ItemError records a per-item failure inside a batch report.
type ItemError struct {
	Path    string `json:"path,omitempty"`
	PhotoID int64  `json:"photo_id,omitempty"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

func NewPathError(path string, err error) ItemError {
	return ItemError{Path: path, Kind: KindOf(err), Error: err.Error()}
}

func NewPhotoError(id int64, err error) ItemError {
	return ItemError{PhotoID: id, Kind: KindOf(err), Error: err.Error()}
}

type IngestionReport struct {
	SessionID     string        `json:"session_id"`
	Root          string        `json:"root"`
	TotalFound    int           `json:"total_found"`
	NewImported   int           `json:"new_imported"`
	Duplicates    int           `json:"duplicates"`
	WithCompanion int           `json:"with_companion"`
	Photos        []Photo       `json:"photos"`
	Errors        []ItemError   `json:"errors"`
	Message       string        `json:"message"`
	Duration      time.Duration `json:"duration_ns"`
}

type ScanOptions struct {
	// Relink rewrites path fields of an existing record when the same bytes
	// are found at a new location.
	Relink bool `json:"relink"`
}

type ScanPreview struct {
	Valid                   bool   `json:"valid"`
	Path                    string `json:"path"`
	JPGCount                int    `json:"jpg_count"`
	EstimatedCompanionCount int    `json:"estimated_raw_count"`
}

type ClassifyRequest struct {
	PhotoIDs       []int64 `json:"photo_ids"`
	Workers        int     `json:"workers"`
	SkipClassified bool    `json:"skip_classified"`
}

type ClassificationOutcome struct {
	PhotoID    int64    `json:"photo_id"`
	Success    bool     `json:"success"`
	Category   Category `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Caption    string   `json:"caption,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Attempts   int      `json:"attempts"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type ClassificationReport struct {
	BatchID    string                  `json:"batch_id"`
	Total      int                     `json:"total"`
	Classified int                     `json:"classified"`
	Failed     int                     `json:"failed"`
	Skipped    int                     `json:"skipped"`
	Details    []ClassificationOutcome `json:"details"`
	Message    string                  `json:"message"`
}

type OrganizeReport struct {
	LibraryRoot string      `json:"library_root"`
	Total       int         `json:"total"`
	Success     int         `json:"success"`
	Failed      int         `json:"failed"`
	JPGCopied   int         `json:"jpg_copied"`
	RAWCopied   int         `json:"raw_copied"`
	Errors      []ItemError `json:"errors"`
}

type ExportRequest struct {
	PhotoIDs     []int64 `json:"photo_ids"`
	Destination  string  `json:"destination"`
	IncludeRAW   bool    `json:"include_raw"`
	CreateZip    bool    `json:"create_zip"`
	OnlySelected bool    `json:"only_selected"`
}

type ExportReport struct {
	Path          string      `json:"path"`
	ExportedCount int         `json:"exported_count"`
	JPGCount      int         `json:"jpg_count"`
	RAWCount      int         `json:"raw_count"`
	Errors        []ItemError `json:"errors"`
}
