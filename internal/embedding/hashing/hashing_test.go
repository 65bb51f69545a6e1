package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dist(a, b []float32) float32 {
	var s float32
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func TestEmbedDeterministicAndNormalized(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()

	a, err := e.EmbedOne(ctx, "Vector stores keep embeddings")
	require.NoError(t, err)
	b, err := e.EmbedOne(ctx, "vector STORES keep embeddings!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestEmbedStopwordsOnlyIsZero(t *testing.T) {
	v, err := NewEmbedder(0).EmbedOne(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimension)
	assert.Zero(t, norm(v))
}

func TestEmbedSimilarTextsAreCloser(t *testing.T) {
	e := NewEmbedder(512)
	vecs, err := e.EmbedMany(context.Background(), []string{
		"golang channels and goroutines",
		"goroutines communicate over channels",
		"baking sourdough bread at home",
	})
	require.NoError(t, err)
	assert.Less(t, dist(vecs[0], vecs[1]), dist(vecs[0], vecs[2]))
}

func TestEmbedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).EmbedMany(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
