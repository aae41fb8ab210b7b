package compare

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextIdentical(t *testing.T) {
	result := Text("same text", "same text")
	assert.False(t, result.Changed())
	assert.Equal(t, []Segment{{Op: OpEqual, Text: "same text"}}, result.Segments)
}

func TestTextInsertAndDelete(t *testing.T) {
	result := Text("The tenant pays rent monthly.", "The tenant pays rent weekly in advance.")
	assert.True(t, result.Changed())
	assert.Positive(t, result.Added)
	assert.Positive(t, result.Removed)

	var rebuiltFrom, rebuiltTo strings.Builder
	for _, s := range result.Segments {
		switch s.Op {
		case OpEqual:
			rebuiltFrom.WriteString(s.Text)
			rebuiltTo.WriteString(s.Text)
		case OpDelete:
			rebuiltFrom.WriteString(s.Text)
		case OpInsert:
			rebuiltTo.WriteString(s.Text)
		}
	}
	assert.Equal(t, "The tenant pays rent monthly.", rebuiltFrom.String())
	assert.Equal(t, "The tenant pays rent weekly in advance.", rebuiltTo.String())
}

func TestTextCountsRunes(t *testing.T) {
	result := Text("", "héllo")
	assert.Equal(t, 5, result.Added)
	assert.Equal(t, 0, result.Removed)
}

func TestTextEmptyBoth(t *testing.T) {
	result := Text("", "")
	assert.Empty(t, result.Segments)
	assert.False(t, result.Changed())
}
