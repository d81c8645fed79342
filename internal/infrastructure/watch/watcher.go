package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/photofs"
)

const DefaultDebounce = 2 * time.Second

// Watcher fires a callback once a burst of photo file events under root has
// settled. Directories created while watching are picked up as well.
type Watcher struct {
	root     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

func New(root string, debounce time.Duration) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "watch root", err)
	}
	if !info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "watch root", errors.New("not a directory: "+root))
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "create watcher", err)
	}
	w := &Watcher{root: root, debounce: debounce, fsw: fsw}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Vanished or unreadable subtrees are skipped.
			if path == dir {
				return domain.WrapError(domain.ErrIO, "walk watch root", err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return domain.WrapError(domain.ErrIO, "watch directory", err)
		}
		return nil
	})
}

// Run blocks until ctx is done. onSettled is never called concurrently with
// itself; events arriving during a call start a new debounce window.
func (w *Watcher) Run(ctx context.Context, onSettled func(context.Context) error) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", "root", w.root, "error", err)

		case <-timer.C:
			pending = false
			slog.Info("watch_settled", "root", w.root)
			if err := onSettled(ctx); err != nil {
				slog.Error("watch_callback_failed", "root", w.root, "error", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				slog.Warn("watch_add_failed", "path", event.Name, "error", err)
			}
			return true
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	return photofs.IsPreviewFile(event.Name) || isCompanion(event.Name)
}

func isCompanion(name string) bool {
	ext := filepath.Ext(name)
	for _, known := range photofs.CompanionExtensions {
		if strings.EqualFold(ext, known) {
			return true
		}
	}
	return false
}
