package photofs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

var previewExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
}

// IsPreviewFile reports whether name carries a preview-format extension.
func IsPreviewFile(name string) bool {
	_, ok := previewExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

type Walker struct{}

func NewWalker() *Walker {
	return &Walker{}
}

// Walk returns every preview file under root in lexicographic order.
// Unreadable subdirectories are logged and skipped; symlinked directories are not followed.
func (w *Walker) Walk(ctx context.Context, root string) ([]string, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			slog.Warn("walk_dir_skipped", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if IsPreviewFile(d.Name()) {
			seen[path] = struct{}{}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrIO, "walk "+root, err)
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func checkRoot(root string) error {
	if strings.TrimSpace(root) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "walk", errors.New("root path is required"))
	}
	info, err := os.Stat(root)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "walk", fmt.Errorf("root %s: %w", root, err))
	}
	if !info.IsDir() {
		return domain.WrapError(domain.ErrInvalidInput, "walk", fmt.Errorf("root %s is not a directory", root))
	}
	return nil
}
