package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherBatchesSettledFiles(t *testing.T) {
	root := t.TempDir()
	var (
		mu      sync.Mutex
		batches [][]string
	)
	w, err := New(root, 50*time.Millisecond,
		func(p string) bool { return strings.HasSuffix(p, ".txt") },
		func(b []string) {
			mu.Lock()
			batches = append(batches, b)
			mu.Unlock()
		})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.bin"), []byte("x"), 0o644))

	var seen []string
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		seen = nil
		for _, b := range batches {
			seen = append(seen, b...)
		}
		return len(seen) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")}, seen)
}

func TestSettled(t *testing.T) {
	w := &Watcher{debounce: time.Second, pending: map[string]time.Time{}}
	now := time.Now()
	w.pending["/in/old.txt"] = now.Add(-2 * time.Second)
	w.pending["/in/fresh.txt"] = now

	assert.Equal(t, []string{"/in/old.txt"}, w.settled(now))
	assert.Len(t, w.pending, 1)
	assert.Equal(t, []string{"/in/fresh.txt"}, w.settled(now.Add(time.Second)))
}
