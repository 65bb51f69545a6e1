package chunker

import (
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

// DefaultSeparators are tried from coarsest to finest.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Recursive splits text on a hierarchy of separators, packing pieces greedily
// up to a token budget and carrying an overlap tail between segments.
type Recursive struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursive validates the sizing parameters. A nil separator list selects
// DefaultSeparators.
func NewRecursive(size, overlap int, separators []string) (*Recursive, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	if separators == nil {
		separators = DefaultSeparators
	}
	seps := make([]string, 0, len(separators))
	for _, s := range separators {
		if s != "" {
			seps = append(seps, s)
		}
	}
	return &Recursive{size: size, overlap: overlap, separators: seps}, nil
}

// Chunk splits text and annotates each piece with its position.
func (r *Recursive) Chunk(text, sourceID string) ([]domain.Segment, error) {
	return segments(r.split(text, r.separators), sourceID), nil
}

// Split is the functional form of Recursive.Chunk returning raw segment texts.
func Split(text string, size, overlap int, separators []string) ([]string, error) {
	r, err := NewRecursive(size, overlap, separators)
	if err != nil {
		return nil, err
	}
	return r.split(text, r.separators), nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return domain.E(domain.KindConfig, "chunker", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return domain.E(domain.KindConfig, "chunker", "chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return domain.E(domain.KindConfig, "chunker", "chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return nil
}

func (r *Recursive) split(text string, separators []string) []string {
	if ApproxTokens(text) <= r.size {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}
	if len(separators) == 0 {
		return r.forceSplit(text)
	}

	sep, rest := separators[0], separators[1:]
	var (
		out []string
		buf strings.Builder
	)
	flush := func() {
		if t := strings.TrimSpace(buf.String()); t != "" {
			out = append(out, t)
		}
	}

	for _, piece := range splitKeep(text, sep) {
		if ApproxTokens(piece) > r.size {
			flush()
			buf.Reset()
			out = append(out, r.split(piece, rest)...)
			continue
		}
		current := buf.String()
		if ApproxTokens(current+piece) > r.size && strings.TrimSpace(current) != "" {
			flush()
			buf.Reset()
			buf.WriteString(r.carry(current, piece))
		}
		buf.WriteString(piece)
	}
	flush()
	return out
}

// carry returns the overlap tail of a flushed buffer, shortened when the
// full tail and the next piece would not fit in one segment.
func (r *Recursive) carry(flushed, next string) string {
	n := r.overlap * charsPerToken
	if room := (r.size+1)*charsPerToken - 1 - utf8.RuneCountInString(next); room < n {
		n = room
	}
	return tail(flushed, n)
}

// forceSplit cuts text into fixed character windows once no separator is left.
func (r *Recursive) forceSplit(text string) []string {
	runes := []rune(text)
	width := r.size * charsPerToken
	stride := (r.size - r.overlap) * charsPerToken

	var out []string
	for start := 0; start < len(runes); start += stride {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		if t := strings.TrimSpace(string(runes[start:end])); t != "" {
			out = append(out, t)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitKeep splits on sep and re-attaches sep to every piece but the last.
// Empty pieces are dropped.
func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func segments(texts []string, sourceID string) []domain.Segment {
	if len(texts) == 0 {
		return nil
	}
	total := uint32(len(texts))
	out := make([]domain.Segment, len(texts))
	for i, t := range texts {
		out[i] = domain.Segment{
			Text:         t,
			SourceID:     sourceID,
			Index:        uint32(i),
			Total:        total,
			ApproxTokens: uint32(ApproxTokens(t)),
		}
	}
	return out
}
