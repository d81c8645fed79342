package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

const (
	DefaultWidth   = 512
	DefaultQuality = 85
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Cache stores one JPEG thumbnail per content hash under dir.
type Cache struct {
	dir     string
	width   int
	quality int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(dir string, width, quality int) (*Cache, error) {
	if dir == "" {
		dir = "./data/thumbs"
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbs dir: %w", err)
	}
	return &Cache{
		dir:     dir,
		width:   width,
		quality: quality,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) Path(hash string) string {
	return filepath.Join(c.dir, hash+".jpg")
}

// Ensure returns the cached thumbnail for hash, rendering it from src when absent.
// An existing file is never regenerated.
func (c *Cache) Ensure(ctx context.Context, src, hash string) (string, error) {
	if !hashPattern.MatchString(hash) {
		return "", domain.WrapError(domain.ErrInvalidInput, "ensure thumbnail", fmt.Errorf("bad hash %q", hash))
	}
	dst := c.Path(hash)
	if fileExists(dst) {
		return dst, nil
	}

	lock := c.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	if fileExists(dst) {
		return dst, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.render(src, dst); err != nil {
		return "", domain.WrapError(domain.ErrThumbnail, "render "+src, err)
	}
	return dst, nil
}

func (c *Cache) Open(hash string) (io.ReadCloser, error) {
	if !hashPattern.MatchString(hash) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open thumbnail", fmt.Errorf("bad hash %q", hash))
	}
	f, err := os.Open(c.Path(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open thumbnail", err)
		}
		return nil, domain.WrapError(domain.ErrIO, "open thumbnail", err)
	}
	return f, nil
}

func (c *Cache) render(src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	resized := imaging.Resize(img, c.width, 0, imaging.Lanczos)
	bounds := resized.Bounds()
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat = imaging.Overlay(flat, resized, image.Pt(0, 0), 1.0)

	tmp, err := os.CreateTemp(c.dir, ".thumb-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := imaging.Encode(tmp, flat, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("publish thumbnail: %w", err)
	}
	return nil
}

func (c *Cache) lockFor(hash string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[hash]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[hash] = lock
	}
	return lock
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
