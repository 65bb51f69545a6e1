package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := E(KindDimensionMismatch, "insert", "expected %d, got %d", 3, 4)
	assert.Equal(t, KindDimensionMismatch, KindOf(err))
	assert.Equal(t, "insert: expected 3, got 4", err.Error())

	wrapped := fmt.Errorf("index run: %w", err)
	assert.Equal(t, KindDimensionMismatch, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindDimensionMismatch))
	assert.False(t, IsKind(nil, KindDimensionMismatch))

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	assert.Nil(t, Wrap(KindUpstream, "embed", nil))

	err := Wrap(KindUpstream, "embed", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, IsUpstream(err))
	assert.True(t, IsUpstream(E(KindUnsupportedFormat, "parse", "unknown extension")))
	assert.False(t, IsUpstream(E(KindConfig, "chunk", "bad overlap")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "corrupt_index", KindCorruptIndex.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
