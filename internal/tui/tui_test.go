package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	runs "docrag/internal/progress"
	"docrag/internal/service"
)

type fakeRetriever struct {
	results []domain.SearchResult
	err     error
}

func (f fakeRetriever) Search(context.Context, string, int) ([]domain.SearchResult, error) {
	return f.results, f.err
}

func (f fakeRetriever) Ask(_ context.Context, q string, _ int) (*service.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.Answer{Query: q, Answer: "forty-two", Sources: []service.Source{{Filename: "a.txt"}}}, nil
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Cats sleep a lot. Goroutines are cheap threads. Bread needs salt."
	out := highlightBestSentence(text, "cheap goroutines")
	assert.Contains(t, out, "Cats sleep a lot.")
	assert.Contains(t, out, "Goroutines are cheap threads.")
	assert.Equal(t, 2, tokenOverlapScore(toTokenSet("cheap goroutines"), "Goroutines are cheap threads."))
	assert.Equal(t, "", highlightBestSentence("", "x"))
}

func TestModelSearchFlow(t *testing.T) {
	r := fakeRetriever{results: []domain.SearchResult{
		{Entry: domain.Entry{Text: "first chunk.", Filename: "a.txt"}, Distance: 0.1},
		{Entry: domain.Entry{Text: "second chunk.", Filename: "b.txt", ChunkIndex: 1}, Distance: 0.2},
	}}
	var m tea.Model = New(r, 3, "summary")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("chunk")})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())

	sm := m.(Model)
	assert.Len(t, sm.results, 2)
	assert.Contains(t, sm.render(), "a.txt")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Contains(t, m.(Model).render(), "b.txt #1")
	assert.Contains(t, m.View(), "docrag")
}

func TestModelAskMode(t *testing.T) {
	var m tea.Model = New(fakeRetriever{}, 3, "")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, modeAsk, m.(Model).mode)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("why?")})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())
	out := m.(Model).render()
	assert.Contains(t, out, "forty-two")
	assert.Contains(t, out, "a.txt")
}

func TestModelSearchError(t *testing.T) {
	var m tea.Model = New(fakeRetriever{err: errors.New("embedder down")}, 3, "")
	m, _ = m.Update(searchDoneMsg{query: "q", err: errors.New("embedder down")})
	assert.Equal(t, "Error: embedder down", m.(Model).status)
}

func TestProgressView(t *testing.T) {
	tr := runs.NewTracker()
	tr.Start(2)
	tr.SetStep(runs.StepDocuments, runs.StatusCompleted, "2 files")
	tr.SetStep(runs.StepParsing, runs.StatusProcessing, "")
	tr.SetChunks(10)
	tr.ChunksIndexed(5)

	var m tea.Model = NewProgress(tr, 10*time.Millisecond)
	m, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "documents")
	assert.Contains(t, view, "5/10 chunks")
	assert.Equal(t, 0.5, chunkRatio(tr.Snapshot()))

	m, cmd = m.Update(RunDoneMsg{})
	require.NotNil(t, cmd)
	assert.True(t, m.(ProgressModel).done)
	assert.True(t, strings.Contains(m.View(), "chunks"))
}
