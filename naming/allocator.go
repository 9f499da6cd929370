// mediadrop/naming/allocator.go
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lithammer/shortuuid/v4"
)

// ErrExhausted is returned when the randomize strategy runs out of retries.
// With token-length names this is effectively unreachable outside of tests.
var ErrExhausted = errors.New("filename allocation retries exhausted")

// Index is the allocator's read-only view of already-stored names.
type Index interface {
	Has(name string) bool
}

const (
	// maxStemLen bounds the sanitized name (without extension) so the full
	// name stays comfortably below common filesystem limits.
	maxStemLen = 120

	randomizeRetries = 5
)

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

type Allocator struct {
	index Index
}

func NewAllocator(index Index) *Allocator {
	return &Allocator{index: index}
}

// Sanitize produces a filesystem-safe name derived from the original,
// appending a numeric suffix until the name is not present in the index.
func (a *Allocator) Sanitize(original string) (string, error) {
	// Path separators count as illegal characters here, so the stem is cut
	// from the raw name rather than from filepath.Base.
	ext := filepath.Ext(original)
	stem := strings.TrimSuffix(original, ext)

	stem = illegalChars.ReplaceAllString(stem, "")
	stem = whitespace.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "._")
	if stem == "" {
		stem = "artifact"
	}
	if len(stem) > maxStemLen {
		stem = stem[:maxStemLen]
	}
	ext = illegalChars.ReplaceAllString(ext, "")

	name := stem + ext
	for n := 1; a.index.Has(name); n++ {
		name = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	return name, nil
}

// Randomize discards the original name, keeping only its extension, and
// generates a short token. The token space makes collisions negligible, but
// the index is still consulted and the token regenerated on a clash.
func (a *Allocator) Randomize(original string) (string, error) {
	ext := illegalChars.ReplaceAllString(filepath.Ext(original), "")

	for i := 0; i < randomizeRetries; i++ {
		name := shortuuid.New() + ext
		if !a.index.Has(name) {
			return name, nil
		}
	}
	return "", ErrExhausted
}
