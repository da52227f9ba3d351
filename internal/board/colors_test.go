package board_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sameersharmadev/canverse/internal/board"
)

func TestColorForIsDeterministic(t *testing.T) {
	ids := []string{
		"a", "participant-1", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "", "日本語",
	}
	for _, id := range ids {
		first := board.ColorFor(id)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, board.ColorFor(id), "id %q", id)
		}
		assert.Regexp(t, `^#[0-9a-f]{6}$`, first)
	}
}

func TestColorForSpreadsAcrossPalette(t *testing.T) {
	seen := make(map[string]bool)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		seen[board.ColorFor(id)] = true
	}
	// not a distribution proof, just a guard against a constant function
	assert.Greater(t, len(seen), 1)
}
