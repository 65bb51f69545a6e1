package service

import (
	"context"
	"fmt"
	"strings"

	"docrag/internal/domain"
)

// DefaultSystemPrompt instructs the model to stay within the retrieved context.
const DefaultSystemPrompt = `You are a helpful assistant that answers questions using the provided context.
Answer precisely and to the point. If the context does not contain enough information, say so.
Answer in the language of the question.`

// NoContextAnswer is returned when the index has nothing relevant.
const NoContextAnswer = "The index contains no relevant information. Upload some documents first."

const contextSeparator = "\n\n---\n\n"

// Source is a retrieved chunk cited by an answer.
type Source struct {
	Filename   string  `json:"filename"`
	ChunkIndex uint32  `json:"chunk_index"`
	Distance   float32 `json:"distance"`
}

// Answer is the result of Ask.
type Answer struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Ask retrieves context for query and asks the completion model to answer it.
func (p *Pipeline) Ask(ctx context.Context, query string, k int) (*Answer, error) {
	results, err := p.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	ans := &Answer{Query: strings.TrimSpace(query), Sources: []Source{}}
	if len(results) == 0 {
		ans.Answer = NoContextAnswer
		return ans, nil
	}
	if p.completer == nil {
		return nil, domain.E(domain.KindConfig, "service.ask", "no completion model configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.CompleteTimeout)
	defer cancel()
	text, err := p.completer.Complete(ctx, p.opts.SystemPrompt, BuildPrompt(ans.Query, results))
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.Wrap(domain.KindUpstream, "service.ask", err)
		}
		return nil, err
	}
	ans.Answer = text
	for _, r := range results {
		ans.Sources = append(ans.Sources, Source{Filename: r.Entry.Filename, ChunkIndex: r.Entry.ChunkIndex, Distance: r.Distance})
	}
	return ans, nil
}

// BuildPrompt renders retrieved chunks as "[filename]\ntext" blocks followed
// by the question.
func BuildPrompt(query string, results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[%s]\n%s", r.Entry.Filename, r.Entry.Text)
	}
	return "Context:\n" + strings.Join(parts, contextSeparator) + "\n\n---\n\nQuestion: " + query
}
