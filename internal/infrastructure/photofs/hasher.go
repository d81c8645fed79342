package photofs

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

const DefaultChunkSize = 64 * 1024

// Hasher computes the SHA-1 content hash used as the photo dedup key.
type Hasher struct {
	pool sync.Pool
}

func NewHasher(chunkSize int) *Hasher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Hasher{
		pool: sync.Pool{New: func() any {
			buf := make([]byte, chunkSize)
			return &buf
		}},
	}
}

func (h *Hasher) Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", domain.WrapError(domain.ErrIO, "hash "+path, err)
	}
	defer f.Close()

	buf := h.pool.Get().(*[]byte)
	defer h.pool.Put(buf)

	digest := sha1.New()
	if _, err := io.CopyBuffer(digest, onlyReader{f}, *buf); err != nil {
		return "", domain.WrapError(domain.ErrIO, "hash "+path, fmt.Errorf("read: %w", err))
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// onlyReader hides WriterTo so CopyBuffer honours the chunk size.
type onlyReader struct {
	io.Reader
}
