package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"librarian/internal/domain"
)

// Recommender is the TUI-facing subset of the orchestrator.
type Recommender interface {
	Answer(ctx context.Context, userQuery string, topK int) (*domain.Answer, error)
}

// requestTimeout bounds one full pipeline run (two completions plus
// retrieval) from the UI's point of view.
const requestTimeout = 2 * time.Minute

type answerMsg struct {
	query  string
	answer *domain.Answer
	err    error
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	service  Recommender
	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model
	topK     int
	history  []string
	status   string
	waiting  bool
	ready    bool
}

// New creates a new chat model.
func New(service Recommender, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What would you like to read?"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		input:    ti,
		viewport: vp,
		spin:     sp,
		topK:     topK,
		status:   "Ask for a recommendation and press Enter.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(strings.Join(m.history, "\n\n"))
		return m, nil

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		}
		if msg.answer != nil {
			m.history = append(m.history, assistantStyle.Render("Librarian: ")+msg.answer.Assistant)
			if msg.answer.UsedTool != "" {
				m.status = fmt.Sprintf("Answered using %s.", msg.answer.UsedTool)
			} else if msg.err == nil {
				m.status = "Answered."
			}
		}
		m.viewport.SetContent(strings.Join(m.history, "\n\n"))
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.waiting {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.history = append(m.history, userStyle.Render("You: ")+q)
			m.viewport.SetContent(strings.Join(m.history, "\n\n"))
			m.viewport.GotoBottom()
			m.input.Reset()
			m.waiting = true
			m.status = "Searching the collection..."
			return m, tea.Batch(m.spin.Tick, m.ask(q))
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the pipeline off the UI loop.
func (m Model) ask(query string) tea.Cmd {
	svc, topK := m.service, m.topK
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ans, err := svc.Answer(ctx, query, topK)
		return answerMsg{query: query, answer: ans, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Smart Librarian")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.waiting {
		status = m.spin.View() + status
	}
	statusLine := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	return header + "\n" + transcript + "\n" + input + "\n" + statusLine
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)
