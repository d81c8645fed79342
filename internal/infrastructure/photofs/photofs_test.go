package photofs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWalkReturnsSortedPreviewFilesCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "DCIM", "b.JPG"), []byte("b"))
	writeFile(t, filepath.Join(root, "DCIM", "a.jpeg"), []byte("a"))
	writeFile(t, filepath.Join(root, "DCIM", "c.Jpg"), []byte("c"))
	writeFile(t, filepath.Join(root, "DCIM", "a.ARW"), []byte("raw"))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "z.jpg"), []byte("z"))

	paths, err := NewWalker().Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "DCIM", "a.jpeg"),
		filepath.Join(root, "DCIM", "b.JPG"),
		filepath.Join(root, "DCIM", "c.Jpg"),
		filepath.Join(root, "z.jpg"),
	}
	if strings.Join(paths, "|") != strings.Join(want, "|") {
		t.Fatalf("Walk() = %v, want %v", paths, want)
	}
}

func TestWalkRejectsMissingRootAndFiles(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.jpg")
	writeFile(t, file, []byte("a"))

	if _, err := NewWalker().Walk(context.Background(), filepath.Join(root, "missing")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing root, got %v", err)
	}
	if _, err := NewWalker().Walk(context.Background(), file); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for file root, got %v", err)
	}
}

func TestWalkSkipsUnreadableSubdirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok", "a.jpg"), []byte("a"))
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "b.jpg"), []byte("b"))
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer os.Chmod(locked, 0o755)

	paths, err := NewWalker().Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "a.jpg" {
		t.Fatalf("expected only readable file, got %v", paths)
	}
}

func TestHashMatchesSHA1AcrossChunkSizes(t *testing.T) {
	data := []byte(strings.Repeat("0123456789abcdef", 10000))
	path := filepath.Join(t.TempDir(), "a.jpg")
	writeFile(t, path, data)

	sum := sha1.Sum(data)
	want := hex.EncodeToString(sum[:])
	for _, chunk := range []int{0, 1, 7, 4096, 1 << 20} {
		got, err := NewHasher(chunk).Hash(path)
		if err != nil {
			t.Fatalf("Hash(chunk=%d) error = %v", chunk, err)
		}
		if got != want {
			t.Fatalf("Hash(chunk=%d) = %s, want %s", chunk, got, want)
		}
	}
}

func TestHashMissingFileIsIOError(t *testing.T) {
	_, err := NewHasher(0).Hash(filepath.Join(t.TempDir(), "missing.jpg"))
	if !domain.IsKind(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestCompanionFindsLowerThenUpperCaseByPriority(t *testing.T) {
	dir := t.TempDir()
	jpg := filepath.Join(dir, "DSC0001.JPG")
	writeFile(t, jpg, []byte("jpg"))
	writeFile(t, filepath.Join(dir, "DSC0001.NEF"), []byte("nef"))
	writeFile(t, filepath.Join(dir, "sub", "DSC0001.ARW"), []byte("nested"))

	got, ok := NewCompanionMatcher().Find(jpg)
	if !ok {
		t.Fatalf("expected companion")
	}
	if !strings.EqualFold(filepath.Base(got), "DSC0001.NEF") {
		t.Fatalf("unexpected companion %s", got)
	}
}

func TestCompanionMissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	jpg := filepath.Join(dir, "IMG_1.jpg")
	writeFile(t, jpg, []byte("jpg"))
	writeFile(t, filepath.Join(dir, "IMG_2.CR3"), []byte("raw"))

	if got, ok := NewCompanionMatcher().Find(jpg); ok {
		t.Fatalf("expected no companion, got %s", got)
	}
}
