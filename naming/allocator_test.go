// mediadrop/naming/allocator_test.go
package naming

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapIndex is a trivial Index backed by a set of names.
type mapIndex map[string]bool

func (m mapIndex) Has(name string) bool { return m[name] }

func TestSanitize(t *testing.T) {
	t.Run("strips illegal characters and whitespace", func(t *testing.T) {
		a := NewAllocator(mapIndex{})
		name, err := a.Sanitize(`my: cool/video <final>.mp4`)
		require.NoError(t, err)
		assert.Equal(t, "my_coolvideo_final.mp4", name)
	})

	t.Run("falls back when nothing survives", func(t *testing.T) {
		a := NewAllocator(mapIndex{})
		name, err := a.Sanitize(`???.mp3`)
		require.NoError(t, err)
		assert.Equal(t, "artifact.mp3", name)
	})

	t.Run("truncates long names but keeps the extension", func(t *testing.T) {
		a := NewAllocator(mapIndex{})
		name, err := a.Sanitize(strings.Repeat("x", 400) + ".webm")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(name, ".webm"))
		assert.LessOrEqual(t, len(name), maxStemLen+len(".webm"))
	})

	t.Run("appends numeric suffix on collision", func(t *testing.T) {
		idx := mapIndex{"song.mp3": true, "song_1.mp3": true}
		a := NewAllocator(idx)
		name, err := a.Sanitize("song.mp3")
		require.NoError(t, err)
		assert.Equal(t, "song_2.mp3", name)
	})

	t.Run("never returns a stored name", func(t *testing.T) {
		idx := mapIndex{}
		a := NewAllocator(idx)
		for i := 0; i < 50; i++ {
			name, err := a.Sanitize("clip.mp4")
			require.NoError(t, err)
			assert.False(t, idx[name], "allocated name %q already present", name)
			idx[name] = true
		}
		assert.Len(t, idx, 50)
	})
}

func TestRandomize(t *testing.T) {
	t.Run("keeps only the extension", func(t *testing.T) {
		a := NewAllocator(mapIndex{})
		name, err := a.Randomize("some original name.mkv")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(name, ".mkv"))
		assert.NotContains(t, name, "original")
	})

	t.Run("unique across repeated calls", func(t *testing.T) {
		idx := mapIndex{}
		a := NewAllocator(idx)
		for i := 0; i < 100; i++ {
			name, err := a.Randomize("input.mp4")
			require.NoError(t, err)
			assert.False(t, idx[name])
			idx[name] = true
		}
	})

	t.Run("exhausts retries when the index rejects everything", func(t *testing.T) {
		a := NewAllocator(fullIndex{})
		_, err := a.Randomize("input.mp4")
		assert.ErrorIs(t, err, ErrExhausted)
	})
}

// fullIndex claims to contain every name.
type fullIndex struct{}

func (fullIndex) Has(string) bool { return true }

func BenchmarkSanitizeCollisions(b *testing.B) {
	idx := mapIndex{}
	for i := 0; i < 100; i++ {
		idx[fmt.Sprintf("v_%d.mp4", i)] = true
	}
	idx["v.mp4"] = true
	a := NewAllocator(idx)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = a.Sanitize("v.mp4")
	}
}
