package exifmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// Fallback reads metadata when the embedded decoder cannot.
type Fallback interface {
	Read(path string) (domain.Metadata, error)
}

type Extractor struct {
	fallback Fallback
	location *time.Location
}

func NewExtractor(fallback Fallback) *Extractor {
	return &Extractor{fallback: fallback, location: time.Local}
}

// Extract never fails: unreadable metadata degrades to nil fields with the
// file modification time as capture time.
func (e *Extractor) Extract(_ context.Context, path string) domain.Metadata {
	meta, err := decodeFile(path, e.location)
	if err != nil && e.fallback != nil {
		meta, err = e.fallback.Read(path)
	}
	if err != nil {
		slog.Debug("exif_unavailable", "path", path, "error", err)
		meta = domain.Metadata{}
	}
	if meta.CapturedAt == nil {
		meta.CapturedAt = modTime(path)
	}
	return meta
}

func decodeFile(path string, loc *time.Location) (meta domain.Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			meta = domain.Metadata{}
			err = fmt.Errorf("exif decoder panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return domain.Metadata{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if x == nil {
		if err == nil {
			err = errors.New("no exif data")
		}
		return domain.Metadata{}, err
	}
	if err != nil && exif.IsCriticalError(err) {
		return domain.Metadata{}, err
	}

	meta.CameraModel = stringField(x, exif.Model)
	meta.Lens = stringField(x, exif.LensModel)
	meta.FocalLengthMM = rationalField(x, exif.FocalLength)
	meta.Aperture = rationalField(x, exif.FNumber)
	meta.ShutterSeconds = rationalField(x, exif.ExposureTime)
	meta.ISO = intField(x, exif.ISOSpeedRatings)
	if raw := stringField(x, exif.DateTimeOriginal); raw != nil {
		meta.CapturedAt = ParseTimestamp(*raw, loc)
	}
	return meta, nil
}

// ParseTimestamp parses an EXIF "YYYY:MM:DD HH:MM:SS" value in loc.
func ParseTimestamp(raw string, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(exifTimeLayout, cleanString(raw), loc)
	if err != nil {
		return nil
	}
	return &t
}

func stringField(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	s, err := tag.StringVal()
	if err != nil {
		return nil
	}
	s = cleanString(s)
	if s == "" {
		return nil
	}
	return &s
}

func rationalField(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}

func intField(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	n, err := tag.Int(0)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func cleanString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

func modTime(path string) *time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	t := info.ModTime()
	return &t
}
