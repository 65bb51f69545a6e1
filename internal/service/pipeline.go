// Package service wires parsing, chunking, embedding and the vector store into
// the indexing and retrieval flows.
package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"docrag/internal/domain"
	"docrag/internal/embedding"
	"docrag/internal/progress"
	"docrag/internal/vectorstore"
)

// Options tunes the pipeline. Zero values select defaults.
type Options struct {
	BatchSize        int
	Concurrency      int
	EmbedTimeout     time.Duration
	CompleteTimeout  time.Duration
	TopK             int
	SystemPrompt     string
	SummarySentences int
}

// Pipeline is the retrieval pipeline. IndexFiles must not run concurrently
// with itself; Search, Ask, Stats and Progress are safe at any time.
type Pipeline struct {
	parser     domain.Parser
	chunker    domain.Chunker
	embedder   domain.Embedder
	completer  domain.Completer
	summarizer domain.Summarizer
	store      *vectorstore.Store
	tracker    *progress.Tracker
	opts       Options
}

// Deps are the collaborators of a Pipeline. Completer and Summarizer may be nil.
type Deps struct {
	Parser     domain.Parser
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Completer  domain.Completer
	Summarizer domain.Summarizer
	Store      *vectorstore.Store
	Tracker    *progress.Tracker
}

// New assembles a pipeline.
func New(d Deps, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 60 * time.Second
	}
	if opts.CompleteTimeout <= 0 {
		opts.CompleteTimeout = 300 * time.Second
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	tracker := d.Tracker
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	return &Pipeline{
		parser:     d.Parser,
		chunker:    d.Chunker,
		embedder:   d.Embedder,
		completer:  d.Completer,
		summarizer: d.Summarizer,
		store:      d.Store,
		tracker:    tracker,
		opts:       opts,
	}
}

// FileInput is a file to index. Filename is the display name recorded in
// metadata; it defaults to the base name of Path.
type FileInput struct {
	Path     string
	Filename string
}

// FileResult describes what happened to one input file.
type FileResult struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Kind     string `json:"type,omitempty"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes an indexing run.
type Report struct {
	RunID         string       `json:"run_id"`
	Files         []FileResult `json:"files"`
	IndexedChunks int          `json:"indexed_chunks"`
	TotalVectors  int          `json:"total_vectors"`
	Summary       string       `json:"summary,omitempty"`
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Error != "" {
			out = append(out, f)
		}
	}
	return out
}

type document struct {
	result   *FileResult
	text     string
	segments []domain.Segment
	vectors  [][]float32
}

// IndexFiles parses, chunks, embeds and stores files, driving the tracker
// through every step. Per-file parse and embedding failures are recorded in
// the report and do not stop the run. Chunking, storage failures and a run
// where every embedding call failed are fatal.
func (p *Pipeline) IndexFiles(ctx context.Context, files []FileInput) (*Report, error) {
	t := p.tracker
	report := &Report{RunID: t.Start(len(files))}
	report.Files = make([]FileResult, len(files))
	for i, f := range files {
		name := f.Filename
		if name == "" {
			name = filepath.Base(f.Path)
		}
		report.Files[i] = FileResult{Filename: name, Path: f.Path}
	}
	log.Printf("service: run %s indexing %d files", report.RunID, len(files))

	t.SetStep(progress.StepDocuments, progress.StatusCompleted, fmt.Sprintf("%d files received", len(files)))

	// parsing
	t.SetStep(progress.StepParsing, progress.StatusProcessing, "")
	var docs []*document
	for i := range report.Files {
		res := &report.Files[i]
		t.SetCurrentFile(res.Filename)
		text, kind, err := p.parser.Parse(res.Path)
		res.Kind = kind
		if err != nil {
			res.Error = err.Error()
			log.Printf("service: parse %s: %v", res.Path, err)
			t.FileDone()
			continue
		}
		docs = append(docs, &document{result: res, text: text})
		t.SetStep(progress.StepParsing, progress.StatusProcessing, fmt.Sprintf("parsed %d/%d", i+1, len(files)))
	}
	t.SetStep(progress.StepParsing, progress.StatusCompleted, fmt.Sprintf("%d of %d files parsed", len(docs), len(files)))

	// chunking
	t.SetStep(progress.StepChunking, progress.StatusProcessing, "")
	total := 0
	for _, d := range docs {
		segs, err := p.chunker.Chunk(d.text, d.result.Path)
		if err != nil {
			return report, p.fail(err, progress.StepChunking)
		}
		d.segments = segs
		d.result.Chunks = len(segs)
		total += len(segs)
	}
	t.SetChunks(total)
	t.SetStep(progress.StepChunking, progress.StatusCompleted, fmt.Sprintf("%d chunks", total))

	// embedding
	t.SetStep(progress.StepEmbedding, progress.StatusProcessing, "")
	embedded, attempted, succeeded := 0, 0, 0
	var lastErr error
	for _, d := range docs {
		if len(d.segments) == 0 {
			t.FileDone()
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, p.fail(err, progress.StepEmbedding)
		}
		attempted++
		t.SetCurrentFile(d.result.Filename)
		vecs, err := p.embedDocument(ctx, d, func(n int) {
			embedded += n
			t.SetStep(progress.StepEmbedding, progress.StatusProcessing, fmt.Sprintf("embedded %d/%d chunks", embedded, total))
		})
		if err != nil {
			lastErr = err
			d.result.Error = err.Error()
			d.result.Chunks = 0
			log.Printf("service: embed %s: %v", d.result.Path, err)
			t.FileDone()
			continue
		}
		d.vectors = vecs
		succeeded++
	}
	if attempted > 0 && succeeded == 0 {
		return report, p.fail(lastErr, progress.StepEmbedding)
	}
	t.SetStep(progress.StepEmbedding, progress.StatusCompleted, fmt.Sprintf("%d chunks embedded", embedded))

	// indexing
	t.SetStep(progress.StepIndexing, progress.StatusProcessing, "")
	var (
		vectors [][]float32
		entries []domain.Entry
	)
	for _, d := range docs {
		if d.vectors == nil {
			continue
		}
		for i, seg := range d.segments {
			vectors = append(vectors, d.vectors[i])
			entries = append(entries, domain.Entry{
				Text:       seg.Text,
				Source:     d.result.Path,
				Filename:   d.result.Filename,
				ChunkIndex: seg.Index,
			})
		}
	}
	if _, err := p.store.Insert(vectors, entries); err != nil {
		return report, p.fail(err, progress.StepIndexing)
	}
	for _, d := range docs {
		if d.vectors != nil {
			t.FileDone()
		}
	}
	report.IndexedChunks = len(entries)
	report.TotalVectors = p.store.Len()
	t.ChunksIndexed(len(entries))
	t.SetStep(progress.StepIndexing, progress.StatusCompleted, fmt.Sprintf("%d chunks indexed, %d total", len(entries), report.TotalVectors))

	report.Summary = p.summarize(docs)
	t.Finish()
	log.Printf("service: run %s indexed %d chunks from %d files (%d failed)", report.RunID, report.IndexedChunks, len(files), len(report.Failed()))
	return report, nil
}

func (p *Pipeline) embedDocument(ctx context.Context, d *document, done func(int)) ([][]float32, error) {
	texts := make([]string, len(d.segments))
	for i, s := range d.segments {
		texts[i] = s.Text
	}
	vecs, err := embedding.Batched(ctx, p.embedder, texts, p.opts.BatchSize, p.opts.Concurrency, p.opts.EmbedTimeout, done)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.Wrap(domain.KindUpstream, "service.embed", err)
		}
		return nil, err
	}
	return vecs, nil
}

func (p *Pipeline) fail(err error, step progress.Step) error {
	p.tracker.Fail(err.Error(), step)
	log.Printf("service: run failed at %s: %v", step, err)
	return err
}

func (p *Pipeline) summarize(docs []*document) string {
	if p.summarizer == nil {
		return ""
	}
	var b strings.Builder
	for _, d := range docs {
		if d.vectors == nil {
			continue
		}
		b.WriteString(d.text)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return ""
	}
	summary, err := p.summarizer.Summarize(b.String(), p.opts.SummarySentences)
	if err != nil {
		log.Printf("service: summarize: %v", err)
		return ""
	}
	return summary
}

// Search embeds query and returns the k nearest entries. k <= 0 selects the
// configured default. An empty index returns no results without calling the
// embedder.
func (p *Pipeline) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.E(domain.KindInvalidInput, "service.search", "query must not be empty")
	}
	if k <= 0 {
		k = p.opts.TopK
	}
	if p.store.Len() == 0 {
		return []domain.SearchResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.EmbedTimeout)
	defer cancel()
	vec, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.Wrap(domain.KindUpstream, "service.search", err)
		}
		return nil, err
	}
	return p.store.Search(vec, k)
}

// Stats reports the index contents.
func (p *Pipeline) Stats() domain.Stats { return p.store.Stats() }

// DocumentInfo describes one indexed file.
type DocumentInfo struct {
	Filename string `json:"filename"`
	Source   string `json:"source"`
	Chunks   int    `json:"chunks"`
}

// Documents lists indexed files in first-insertion order with their chunk
// counts.
func (p *Pipeline) Documents() []DocumentInfo {
	out := []DocumentInfo{}
	pos := make(map[string]int)
	for _, e := range p.store.Entries() {
		i, ok := pos[e.Source]
		if !ok {
			i = len(out)
			pos[e.Source] = i
			out = append(out, DocumentInfo{Filename: e.Filename, Source: e.Source})
		}
		out[i].Chunks++
	}
	return out
}

// Progress returns a snapshot of the current or last indexing run.
func (p *Pipeline) Progress() progress.Snapshot { return p.tracker.Snapshot() }

// Tracker exposes the run tracker for observers.
func (p *Pipeline) Tracker() *progress.Tracker { return p.tracker }

// Clear empties the index.
func (p *Pipeline) Clear() error { return p.store.Clear() }
