package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docrag/internal/domain"
	"docrag/internal/service"
)

// Retriever is the subset of the pipeline the search view needs.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	Ask(ctx context.Context, query string, k int) (*service.Answer, error)
}

type mode int

const (
	modeSearch mode = iota
	modeAsk
)

func (m mode) String() string {
	if m == modeAsk {
		return "ask"
	}
	return "search"
}

type searchDoneMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

type askDoneMsg struct {
	query  string
	answer *service.Answer
	err    error
}

// Model is the Bubble Tea model for interactive search and question answering.
type Model struct {
	retriever Retriever
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	mode      mode
	results   []domain.SearchResult
	answer    *service.Answer
	summary   string
	status    string
	cursor    int
	busy      bool
	ready     bool
	lastQuery string
}

// New creates a search model. summary is shown under the header.
func New(r Retriever, topK int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter (Tab switches search/ask)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		retriever: r,
		topK:      topK,
		input:     ti,
		viewport:  vp,
		summary:   summary,
		status:    "Loaded. Type to search.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case searchDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.query)
			m.results = msg.results
			m.answer = nil
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.render())
		return m, nil
	case askDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		} else {
			m.status = fmt.Sprintf("Answer for %q", msg.query)
			m.answer = msg.answer
			m.results = nil
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.render())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			if m.mode == modeSearch {
				m.mode = modeAsk
			} else {
				m.mode = modeSearch
			}
			m.status = "Mode: " + m.mode.String()
			return m, nil
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Working..."
			if m.mode == modeAsk {
				return m, m.ask(q)
			}
			return m, m.search(q)
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) search(q string) tea.Cmd {
	r, k := m.retriever, m.topK
	return func() tea.Msg {
		res, err := r.Search(context.Background(), q, k)
		return searchDoneMsg{query: q, results: res, err: err}
	}
}

func (m Model) ask(q string) tea.Cmd {
	r, k := m.retriever, m.topK
	return func() tea.Msg {
		ans, err := r.Ask(context.Background(), q, k)
		return askDoneMsg{query: q, answer: ans, err: err}
	}
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docrag · " + m.mode.String())
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if m.answer != nil {
		return renderAnswer(m.answer)
	}
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s #%d  distance=%.3f",
		m.cursor+1, len(m.results), r.Entry.Filename, r.Entry.ChunkIndex, r.Distance)
	return title + "\n\n" + highlightBestSentence(r.Entry.Text, m.lastQuery)
}

func renderAnswer(a *service.Answer) string {
	var b strings.Builder
	b.WriteString(a.Answer)
	if len(a.Sources) > 0 {
		b.WriteString("\n\n")
		b.WriteString(sourceStyle.Render("Sources:"))
		for _, s := range a.Sources {
			fmt.Fprintf(&b, "\n  %s #%d (%.3f)", s.Filename, s.ChunkIndex, s.Distance)
		}
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence renders the sentence sharing the most words with
// query in the highlight style.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
