package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthEmbedder embeds a text as its length and records batch sizes.
type lengthEmbedder struct {
	mu      sync.Mutex
	batches []int
	failOn  string
}

func (e *lengthEmbedder) Name() string { return "length" }

func (e *lengthEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && t == e.failOn {
			return nil, errors.New("upstream down")
		}
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (e *lengthEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func TestBatchedKeepsOrder(t *testing.T) {
	texts := make([]string, 23)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	emb := &lengthEmbedder{}
	var done atomic.Int64

	vecs, err := Batched(context.Background(), emb, texts, 5, 3, 0, func(n int) { done.Add(int64(n)) })
	require.NoError(t, err)
	require.Len(t, vecs, 23)
	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i + 1)}, v)
	}
	assert.Len(t, emb.batches, 5)
	assert.EqualValues(t, 23, done.Load())
}

func TestBatchedPropagatesError(t *testing.T) {
	emb := &lengthEmbedder{failOn: "bad"}
	_, err := Batched(context.Background(), emb, []string{"ok", "bad", "ok"}, 1, 2, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestBatchedEmpty(t *testing.T) {
	vecs, err := Batched(context.Background(), &lengthEmbedder{}, nil, 10, 2, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

// slowEmbedder takes delay per call and fails if its context ends first.
type slowEmbedder struct {
	lengthEmbedder
	delay time.Duration
}

func (e *slowEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.lengthEmbedder.EmbedMany(ctx, texts)
}

func TestBatchedTimeoutAppliesPerCall(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = "chunk"
	}
	emb := &slowEmbedder{delay: 20 * time.Millisecond}

	// 12 serial calls take ~240ms, well past the 100ms per-call bound.
	vecs, err := Batched(context.Background(), emb, texts, 1, 1, 100*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Len(t, vecs, 12)
}

func TestBatchedTimeoutStopsSlowCall(t *testing.T) {
	emb := &slowEmbedder{delay: time.Second}
	_, err := Batched(context.Background(), emb, []string{"a"}, 1, 1, 20*time.Millisecond, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
