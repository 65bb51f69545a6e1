package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/service"
)

type recordingIndexer struct {
	running atomic.Int32
	maxSeen atomic.Int32
	mu      sync.Mutex
	order   []string
	block   chan struct{}
	err     error
}

func (r *recordingIndexer) IndexFiles(ctx context.Context, files []service.FileInput) (*service.Report, error) {
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.order = append(r.order, files[0].Path)
	r.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return &service.Report{IndexedChunks: len(files)}, r.err
}

func files(paths ...string) []service.FileInput {
	out := make([]service.FileInput, len(paths))
	for i, p := range paths {
		out[i] = service.FileInput{Path: p}
	}
	return out
}

func TestQueueRunsJobsOneAtATimeInOrder(t *testing.T) {
	ix := &recordingIndexer{}
	q := NewQueue(ix, 8)
	q.Start()
	defer q.Stop()

	var ids []string
	for _, p := range []string{"a", "b", "c", "d"} {
		id, err := q.Submit(files(p))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	report, err := q.SubmitWait(context.Background(), files("e", "f"))
	require.NoError(t, err)
	assert.Equal(t, 2, report.IndexedChunks)

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ix.order)
	assert.EqualValues(t, 1, ix.maxSeen.Load())
	for _, id := range ids {
		st, ok := q.Status(id)
		require.True(t, ok)
		assert.Equal(t, StateDone, st.State)
	}
}

func TestQueueFullIsBusy(t *testing.T) {
	ix := &recordingIndexer{block: make(chan struct{})}
	q := NewQueue(ix, 1)
	q.Start()
	defer q.Stop()

	_, err := q.Submit(files("running"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ix.running.Load() == 1 }, time.Second, time.Millisecond)

	_, err = q.Submit(files("waiting"))
	require.NoError(t, err)
	_, err = q.Submit(files("rejected"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindBusy))

	close(ix.block)
}

func TestQueueRejectsEmptyJob(t *testing.T) {
	q := NewQueue(&recordingIndexer{}, 1)
	_, err := q.Submit(nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestQueueReportsFailure(t *testing.T) {
	ix := &recordingIndexer{err: errors.New("disk full")}
	q := NewQueue(ix, 2)
	q.Start()
	defer q.Stop()

	_, err := q.SubmitWait(context.Background(), files("a"))
	require.EqualError(t, err, "disk full")
}

func TestQueueStopFailsPendingJobs(t *testing.T) {
	ix := &recordingIndexer{block: make(chan struct{})}
	q := NewQueue(ix, 4)
	q.Start()

	first, err := q.Submit(files("running"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ix.running.Load() == 1 }, time.Second, time.Millisecond)
	pending, err := q.Submit(files("pending"))
	require.NoError(t, err)

	q.Stop()

	st, ok := q.Status(first)
	require.True(t, ok)
	assert.Equal(t, StateFailed, st.State)
	st, ok = q.Status(pending)
	require.True(t, ok)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, ErrStopped.Error(), st.Error)

	_, err = q.Submit(files("late"))
	assert.ErrorIs(t, err, ErrStopped)
}
