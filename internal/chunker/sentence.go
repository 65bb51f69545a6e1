package chunker

import (
	"regexp"
	"strings"

	"docrag/internal/domain"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Sentence groups whole sentences into segments with a sentence overlap.
type Sentence struct {
	perSegment int
	overlap    int
}

// NewSentence returns a sentence chunker. Overlap must be smaller than the
// number of sentences per segment.
func NewSentence(perSegment, overlap int) (*Sentence, error) {
	if err := validate(perSegment, overlap); err != nil {
		return nil, err
	}
	return &Sentence{perSegment: perSegment, overlap: overlap}, nil
}

func (c *Sentence) Chunk(text, sourceID string) ([]domain.Segment, error) {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var texts []string
	for i := 0; i < len(sentences); {
		end := i + c.perSegment
		if end > len(sentences) {
			end = len(sentences)
		}
		texts = append(texts, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlap
	}
	return segments(texts, sourceID), nil
}

// Sentences splits text into trimmed sentences. Text without terminal
// punctuation is returned as a single sentence; a trailing fragment is kept.
func Sentences(text string) []string {
	locs := sentencePattern.FindAllStringIndex(text, -1)
	var out []string
	last := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
