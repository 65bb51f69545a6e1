package domain

import "context"

// Chunker splits text into ordered segments.
type Chunker interface {
	Chunk(text, sourceID string) ([]Segment, error)
}

// Embedder converts text into vectors. EmbedMany returns one vector per input,
// in input order.
type Embedder interface {
	Name() string
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Completer produces a model answer for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Parser extracts plain text from a file on disk.
type Parser interface {
	Parse(path string) (text string, kind string, err error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
