// Package embedding holds helpers shared by the embedder implementations.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docrag/internal/domain"
)

// Batched embeds texts in batches of batchSize with up to concurrency
// batches in flight. Vectors are returned in input order. timeout, when
// positive, bounds each EmbedMany call; ctx bounds the whole operation. The
// first failing batch cancels the rest. done, if set, is called serially
// with the size of every finished batch.
func Batched(ctx context.Context, emb domain.Embedder, texts []string, batchSize, concurrency int, timeout time.Duration, done func(n int)) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([][]float32, len(texts))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(texts); start += batchSize {
		start := start
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			callCtx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			vecs, err := emb.EmbedMany(callCtx, texts[start:end])
			cancel()
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return domain.E(domain.KindUpstream, "embedding.batched", "%s returned %d vectors for %d texts", emb.Name(), len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			if done != nil {
				mu.Lock()
				done(end - start)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	return out, nil
}
