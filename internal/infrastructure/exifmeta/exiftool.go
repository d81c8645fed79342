package exifmeta

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

// ExifTool reads metadata through a long-running exiftool process. It covers
// files whose maker data trips the embedded decoder.
type ExifTool struct {
	mu   sync.Mutex
	tool *exiftool.Exiftool
}

func NewExifTool() (*ExifTool, error) {
	tool, err := exiftool.NewExiftool(exiftool.NoPrintConversion())
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExifTool{tool: tool}, nil
}

func (e *ExifTool) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool.Close()
}

func (e *ExifTool) Read(path string) (domain.Metadata, error) {
	e.mu.Lock()
	results := e.tool.ExtractMetadata(path)
	e.mu.Unlock()

	if len(results) == 0 {
		return domain.Metadata{}, fmt.Errorf("exiftool returned no result for %s", path)
	}
	fm := results[0]
	if fm.Err != nil {
		return domain.Metadata{}, fmt.Errorf("exiftool %s: %w", path, fm.Err)
	}

	var meta domain.Metadata
	if s, err := fm.GetString("Model"); err == nil {
		meta.CameraModel = nonEmpty(s)
	}
	if s, err := fm.GetString("LensModel"); err == nil {
		meta.Lens = nonEmpty(s)
	}
	if s, err := fm.GetString("DateTimeOriginal"); err == nil {
		meta.CapturedAt = ParseTimestamp(s, time.Local)
	}
	meta.FocalLengthMM = positiveFloat(fm, "FocalLength")
	meta.Aperture = positiveFloat(fm, "FNumber")
	meta.ShutterSeconds = positiveFloat(fm, "ExposureTime")
	if n, err := fm.GetInt("ISO"); err == nil && n > 0 {
		iso := int(n)
		meta.ISO = &iso
	}
	return meta, nil
}

func positiveFloat(fm exiftool.FileMetadata, key string) *float64 {
	v, err := fm.GetFloat(key)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
