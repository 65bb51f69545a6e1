package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeKeepsOriginalOrder(t *testing.T) {
	text := "Vectors live in the index. Cats are nice. The index stores vectors and metadata. Lunch was late."
	out, err := NewFrequency().Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Vectors live in the index. The index stores vectors and metadata.", out)
}

func TestSummarizeWithoutSentences(t *testing.T) {
	out, err := NewFrequency().Summarize("  just words  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "just words", out)
}

func TestSummarizeShortText(t *testing.T) {
	out, err := NewFrequency().Summarize("Only one.\n", 5)
	require.NoError(t, err)
	assert.Equal(t, "Only one.", out)
}
