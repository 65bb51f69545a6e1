// Package watch turns files dropped into an inbox directory into batches.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports created or rewritten files under a directory once they
// have been quiet for the debounce interval.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	accept   func(path string) bool
	onBatch  func([]string)
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for root. accept filters paths; onBatch receives
// each settled batch, sorted.
func New(root string, debounce time.Duration, accept func(string) bool, onBatch func([]string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:     root,
		watcher:  fsw,
		accept:   accept,
		onBatch:  onBatch,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start adds root and its subdirectories to the watch list and begins
// processing events.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				log.Printf("watch: failed to watch %s: %v", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", w.root, err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	log.Printf("watch: watching %s", w.root)
	return nil
}

// Stop stops the watcher. Pending, unsettled files are dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Printf("watch: failed to watch new directory %s: %v", event.Name, err)
			}
		}
		return
	}
	if w.accept != nil && !w.accept(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case now := <-ticker.C:
			if batch := w.settled(now); len(batch) > 0 && w.onBatch != nil {
				w.onBatch(batch)
			}
		}
	}
}

// settled removes and returns the files untouched for the debounce interval.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}
