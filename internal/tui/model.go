package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/domain"
	"docchat/internal/service"
	"docchat/internal/textutil"
)

// ChatPort is the TUI-facing subset of the conversation.
type ChatPort interface {
	Ask(ctx context.Context, question string) (*service.Reply, error)
	Reset(ctx context.Context) error
	IngestPaths(ctx context.Context, paths []string) (*service.IngestReport, error)
}

type replyMsg struct {
	question string
	reply    *service.Reply
	err      error
}

type resetMsg struct{ err error }

type ingestMsg struct {
	report *service.IngestReport
	err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	port     ChatPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	turns    []domain.Turn
	sources  []domain.SearchResult
	pending  string
	summary  string
	status   string
	busy     bool
	ready    bool
}

// New creates a new TUI model instance. summary is shown under the header.
func New(ctx context.Context, port ChatPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /ingest <files>, /reset, /quit"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		port:     port,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		summary:  summary,
		status:   "Ready. Type a question and press Enter.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and backend events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + th // header, summary, status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil
	case replyMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.turns = msg.reply.History
			m.sources = msg.reply.Sources
			m.status = fmt.Sprintf("Answered from %d passage(s).", len(msg.reply.Sources))
		}
		m.refresh()
		return m, nil
	case resetMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.turns, m.sources, m.summary = nil, nil, ""
			m.status = "Conversation reset. Use /ingest to load documents."
		}
		m.refresh()
		return m, nil
	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.turns, m.sources = nil, nil
			m.summary = msg.report.Summary
			m.status = fmt.Sprintf("Ingested %d document(s) into %d passage(s); index holds %d.",
				msg.report.Documents, msg.report.Passages, msg.report.IndexSize)
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			return m.submit(line)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/reset":
		m.busy = true
		m.status = "Resetting..."
		return m, tea.Batch(m.spinner.Tick, m.resetCmd())
	case "/ingest":
		if len(fields) < 2 {
			m.status = "Usage: /ingest <file or glob> ..."
			return m, nil
		}
		m.busy = true
		m.status = "Ingesting..."
		return m, tea.Batch(m.spinner.Tick, m.ingestCmd(fields[1:]))
	}
	if strings.HasPrefix(line, "/") {
		m.status = fmt.Sprintf("Unknown command %s", fields[0])
		return m, nil
	}
	m.busy = true
	m.pending = line
	m.status = "Thinking..."
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.askCmd(line))
}

func (m Model) askCmd(q string) tea.Cmd {
	ctx, port := m.ctx, m.port
	return func() tea.Msg {
		reply, err := port.Ask(ctx, q)
		return replyMsg{question: q, reply: reply, err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	ctx, port := m.ctx, m.port
	return func() tea.Msg { return resetMsg{err: port.Reset(ctx)} }
}

func (m Model) ingestCmd(paths []string) tea.Cmd {
	ctx, port := m.ctx, m.port
	return func() tea.Msg {
		report, err := port.IngestPaths(ctx, paths)
		return ingestMsg{report: report, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docchat")
	summary := summaryStyle.Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + statusStyle.Render(status)
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 && m.pending == "" {
		return "No questions yet."
	}
	var b strings.Builder
	for _, t := range m.turns {
		b.WriteString(userStyle.Render("You: ") + t.Question + "\n")
		b.WriteString(botStyle.Render("Bot: ") + t.Answer + "\n\n")
	}
	if m.pending != "" {
		b.WriteString(userStyle.Render("You: ") + m.pending + "\n")
		return b.String()
	}
	if len(m.sources) > 0 && len(m.turns) > 0 {
		last := m.turns[len(m.turns)-1]
		top := m.sources[0]
		b.WriteString(summaryStyle.Render(fmt.Sprintf("Top source (score %.3f):", top.Score)) + "\n")
		b.WriteString(highlightBestSentence(top.Passage.Text, last.Question) + "\n")
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	summaryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// highlightBestSentence emphasizes the sentence of text sharing the most
// tokens with query.
func highlightBestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if i == bestIdx {
			out[i] = highlightStyle.Render(s)
		} else {
			out[i] = s
		}
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := textutil.Tokens(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range textutil.Tokens(sentence) {
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
