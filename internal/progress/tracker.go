// Package progress tracks the state of an indexing run for observers.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Step names a pipeline stage.
type Step string

const (
	StepDocuments Step = "documents"
	StepParsing   Step = "parsing"
	StepChunking  Step = "chunking"
	StepEmbedding Step = "embedding"
	StepIndexing  Step = "indexing"
)

// Steps lists the stages in pipeline order.
var Steps = []Step{StepDocuments, StepParsing, StepChunking, StepEmbedding, StepIndexing}

// Status is the state of one step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// StepState is the status of one step with an optional human message.
type StepState struct {
	Step    Step   `json:"step"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Snapshot is a point-in-time copy of a run. It shares no memory with the
// tracker.
type Snapshot struct {
	RunID          string      `json:"run_id,omitempty"`
	Active         bool        `json:"active"`
	Steps          []StepState `json:"steps"`
	CurrentFile    string      `json:"current_file,omitempty"`
	TotalFiles     int         `json:"total_files"`
	ProcessedFiles int         `json:"processed_files"`
	TotalChunks    int         `json:"total_chunks"`
	IndexedChunks  int         `json:"indexed_chunks"`
	Error          string      `json:"error,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
	// Version increases on every mutation so observers can skip duplicates.
	Version uint64 `json:"version"`
}

// Step returns the state of s.
func (sn Snapshot) Step(s Step) StepState {
	for _, st := range sn.Steps {
		if st.Step == s {
			return st
		}
	}
	return StepState{Step: s, Status: StatusPending}
}

// Failed reports whether the run ended with an error.
func (sn Snapshot) Failed() bool { return sn.Error != "" }

// Tracker is the shared record of the current indexing run. A single writer
// drives it; any number of readers may call Snapshot concurrently.
type Tracker struct {
	mu  sync.Mutex
	run Snapshot
	now func() time.Time
}

// NewTracker returns an idle tracker with every step pending.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.run.Steps = pendingSteps()
	return t
}

func pendingSteps() []StepState {
	steps := make([]StepState, len(Steps))
	for i, s := range Steps {
		steps[i] = StepState{Step: s, Status: StatusPending}
	}
	return steps
}

// Start resets the record for a new run and returns its id.
func (t *Tracker) Start(totalFiles int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.run = Snapshot{
		RunID:      id,
		Active:     true,
		Steps:      pendingSteps(),
		TotalFiles: totalFiles,
		StartedAt:  t.now(),
		Version:    t.run.Version + 1,
	}
	return id
}

// SetStep updates one step. Updates after Fail are ignored until the next Start.
func (t *Tracker) SetStep(step Step, status Status, message string) {
	t.update(func(r *Snapshot) {
		for i := range r.Steps {
			if r.Steps[i].Step == step {
				r.Steps[i].Status = status
				r.Steps[i].Message = message
			}
		}
	})
}

// SetCurrentFile records the file being worked on.
func (t *Tracker) SetCurrentFile(name string) {
	t.update(func(r *Snapshot) { r.CurrentFile = name })
}

// FileDone counts one more processed file.
func (t *Tracker) FileDone() {
	t.update(func(r *Snapshot) { r.ProcessedFiles++ })
}

// SetChunks records how many chunks the run will embed.
func (t *Tracker) SetChunks(total int) {
	t.update(func(r *Snapshot) { r.TotalChunks = total })
}

// ChunksIndexed adds n to the number of chunks written to the store.
func (t *Tracker) ChunksIndexed(n int) {
	t.update(func(r *Snapshot) { r.IndexedChunks += n })
}

// Finish marks a successful run inactive.
func (t *Tracker) Finish() {
	t.update(func(r *Snapshot) {
		r.Active = false
		r.CurrentFile = ""
		r.FinishedAt = t.now()
	})
}

// Fail marks step as failed and ends the run. Only the first failure of a
// run is recorded.
func (t *Tracker) Fail(message string, step Step) {
	t.update(func(r *Snapshot) {
		for i := range r.Steps {
			if r.Steps[i].Step == step {
				r.Steps[i].Status = StatusError
				r.Steps[i].Message = message
			}
		}
		r.Error = message
		r.Active = false
		r.FinishedAt = t.now()
	})
}

// Snapshot returns a copy of the current record.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	sn := t.run
	sn.Steps = append([]StepState(nil), t.run.Steps...)
	return sn
}

func (t *Tracker) update(fn func(*Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run.Error != "" {
		return
	}
	fn(&t.run)
	t.run.Version++
}
