// Package ingest serializes indexing runs through a single background worker.
package ingest

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"docrag/internal/domain"
	"docrag/internal/service"
)

// Indexer runs one indexing job.
type Indexer interface {
	IndexFiles(ctx context.Context, files []service.FileInput) (*service.Report, error)
}

// State is the lifecycle stage of a job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("ingest: queue stopped")

// Status describes a submitted job.
type Status struct {
	ID         string          `json:"id"`
	State      State           `json:"state"`
	Files      int             `json:"files"`
	Report     *service.Report `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type job struct {
	id    string
	files []service.FileInput
	done  chan struct{}

	// set before done is closed
	report *service.Report
	err    error
}

// Queue runs jobs one at a time in submission order.
type Queue struct {
	indexer Indexer
	jobs    chan *job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	stopped  bool
	statuses map[string]*Status
	order    []string
	history  int
}

// NewQueue creates a queue holding up to capacity pending jobs.
func NewQueue(indexer Indexer, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		indexer:  indexer,
		jobs:     make(chan *job, capacity),
		ctx:      ctx,
		cancel:   cancel,
		statuses: make(map[string]*Status),
		history:  100,
	}
}

// Start launches the worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.loop()
}

// Stop cancels the running job, drops pending ones and waits for the worker.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// Submit enqueues files for indexing and returns the job id. A full queue
// fails with KindBusy.
func (q *Queue) Submit(files []service.FileInput) (string, error) {
	j, err := q.enqueue(files)
	if err != nil {
		return "", err
	}
	return j.id, nil
}

// SubmitWait enqueues files and blocks until the job finishes or ctx ends.
func (q *Queue) SubmitWait(ctx context.Context, files []service.FileInput) (*service.Report, error) {
	j, err := q.enqueue(files)
	if err != nil {
		return nil, err
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return j.report, j.err
}

func (q *Queue) enqueue(files []service.FileInput) (*job, error) {
	if len(files) == 0 {
		return nil, domain.E(domain.KindInvalidInput, "ingest.submit", "no files to index")
	}
	j := &job{id: uuid.NewString(), files: files, done: make(chan struct{})}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, ErrStopped
	}
	select {
	case q.jobs <- j:
	default:
		return nil, domain.E(domain.KindBusy, "ingest.submit", "%d jobs already waiting", cap(q.jobs))
	}
	q.record(&Status{ID: j.id, State: StateQueued, Files: len(files), EnqueuedAt: time.Now()})
	log.Printf("ingest: queued job %s (%d files)", j.id, len(files))
	return j, nil
}

// Status returns a copy of a job's status.
func (q *Queue) Status(id string) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Pending returns the number of jobs waiting to run.
func (q *Queue) Pending() int { return len(q.jobs) }

func (q *Queue) loop() {
	defer q.wg.Done()
	log.Printf("ingest: worker started")
	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			log.Printf("ingest: worker stopped")
			return
		case j := <-q.jobs:
			if q.ctx.Err() != nil {
				q.abandon(j)
				continue
			}
			q.run(j)
		}
	}
}

func (q *Queue) run(j *job) {
	defer close(j.done)
	q.update(j.id, func(st *Status) { st.State = StateRunning })

	report, err := q.indexer.IndexFiles(q.ctx, j.files)
	j.report, j.err = report, err
	q.update(j.id, func(st *Status) {
		st.Report = report
		if err != nil {
			st.State = StateFailed
			st.Error = err.Error()
			return
		}
		st.State = StateDone
	})
	if err != nil {
		log.Printf("ingest: job %s failed: %v", j.id, err)
	}
}

// drain fails every job still waiting after Stop.
func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			q.abandon(j)
		default:
			return
		}
	}
}

func (q *Queue) abandon(j *job) {
	j.err = ErrStopped
	q.update(j.id, func(st *Status) {
		st.State = StateFailed
		st.Error = ErrStopped.Error()
	})
	close(j.done)
}

func (q *Queue) update(id string, fn func(*Status)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if st, ok := q.statuses[id]; ok {
		fn(st)
	}
}

// record stores st and evicts the oldest entries beyond the history limit.
// Callers hold q.mu.
func (q *Queue) record(st *Status) {
	q.statuses[st.ID] = st
	q.order = append(q.order, st.ID)
	for len(q.order) > q.history {
		old := q.order[0]
		q.order = q.order[1:]
		delete(q.statuses, old)
	}
}
