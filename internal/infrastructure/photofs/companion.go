package photofs

import (
	"os"
	"path/filepath"
	"strings"
)

// CompanionExtensions lists RAW formats in lookup priority order.
var CompanionExtensions = []string{".arw", ".cr2", ".cr3", ".nef", ".dng", ".raf", ".rw2", ".orf", ".pef"}

type CompanionMatcher struct {
	extensions []string
}

func NewCompanionMatcher() *CompanionMatcher {
	return &CompanionMatcher{extensions: CompanionExtensions}
}

// Find looks for <stem><ext> then <stem><EXT> in the directory of path.
func (m *CompanionMatcher) Find(path string) (string, bool) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for _, ext := range m.extensions {
		for _, candidate := range []string{stem + ext, stem + strings.ToUpper(ext)} {
			full := filepath.Join(dir, candidate)
			info, err := os.Stat(full)
			if err == nil && info.Mode().IsRegular() {
				return full, true
			}
		}
	}
	return "", false
}
