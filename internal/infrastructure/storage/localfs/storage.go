package localfs

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

// maxSuffix bounds the stem_N search when picking a free destination name.
const maxSuffix = 10000

// Storage copies photo files between local directories.
type Storage struct{}

func New() *Storage {
	return &Storage{}
}

func (s *Storage) Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CopyUnique copies src into dstDir under its base name, appending _1, _2, ...
// to the stem when the name is taken. The copy lands atomically.
func (s *Storage) CopyUnique(ctx context.Context, src, dstDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", domain.WrapError(domain.ErrIO, "create destination dir", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", domain.WrapError(domain.ErrIO, "open source", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dstDir, ".copy-*")
	if err != nil {
		return "", domain.WrapError(domain.ErrIO, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return "", domain.WrapError(domain.ErrIO, "copy file", fmt.Errorf("%s: %w", src, err))
	}
	if err := tmp.Close(); err != nil {
		return "", domain.WrapError(domain.ErrIO, "close temp file", err)
	}
	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(tmpName, info.ModTime(), info.ModTime())
	}

	for n := 0; n < maxSuffix; n++ {
		dst := filepath.Join(dstDir, suffixed(filepath.Base(src), n))
		// Link fails when dst exists, so concurrent copies never overwrite each other.
		if err := os.Link(tmpName, dst); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			// Filesystems without hard links (FAT, exFAT) fall back to rename.
			if _, statErr := os.Lstat(dst); statErr == nil {
				continue
			}
			if renameErr := os.Rename(tmpName, dst); renameErr != nil {
				return "", domain.WrapError(domain.ErrIO, "publish copy", renameErr)
			}
		}
		return dst, nil
	}
	return "", domain.WrapError(domain.ErrIO, "copy file", fmt.Errorf("no free name for %s in %s", filepath.Base(src), dstDir))
}

// WriteZip stores every (archive name, source path) pair in a new zip at dst.
// Unreadable sources abort the archive.
func (s *Storage) WriteZip(ctx context.Context, dst string, files iter.Seq2[string, string]) (int, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, domain.WrapError(domain.ErrIO, "create archive dir", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, domain.WrapError(domain.ErrIO, "create archive", err)
	}

	zw := zip.NewWriter(out)
	used := make(map[string]struct{})
	written := 0
	var writeErr error
	for name, src := range files {
		if err := ctx.Err(); err != nil {
			writeErr = err
			break
		}
		name = uniqueEntry(used, name)
		if err := addToZip(zw, name, src); err != nil {
			writeErr = err
			break
		}
		written++
	}

	if err := zw.Close(); err != nil && writeErr == nil {
		writeErr = domain.WrapError(domain.ErrIO, "finalize archive", err)
	}
	if err := out.Close(); err != nil && writeErr == nil {
		writeErr = domain.WrapError(domain.ErrIO, "close archive", err)
	}
	if writeErr != nil {
		_ = os.Remove(dst)
		return 0, writeErr
	}
	return written, nil
}

func addToZip(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "open archive entry", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return domain.WrapError(domain.ErrIO, "stat archive entry", err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "archive header", err)
	}
	header.Name = name
	// JPEG and RAW payloads are already compressed.
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "create archive entry", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return domain.WrapError(domain.ErrIO, "write archive entry", fmt.Errorf("%s: %w", src, err))
	}
	return nil
}

func uniqueEntry(used map[string]struct{}, name string) string {
	name = filepath.ToSlash(name)
	for n := 0; ; n++ {
		candidate := suffixed(name, n)
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
	}
}

func suffixed(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
}
