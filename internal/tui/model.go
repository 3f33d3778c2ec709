package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"transcript-parser/internal/chunker"
	"transcript-parser/internal/domain"
	"transcript-parser/internal/session"
)

// SessionPort is the TUI-facing subset of the session service.
type SessionPort interface {
	ProcessTranscript(ctx context.Context, text string, source domain.TranscriptSource) (*session.Session, error)
	Ask(ctx context.Context, question string) (string, error)
	History() []domain.Turn
}

type phase int

const (
	phaseChooseMode phase = iota
	phaseEnterPath
	phasePasteText
	phaseProcessing
	phaseChat
	phaseAnswering
)

type processedMsg struct {
	sess *session.Session
	err  error
}

type answeredMsg struct {
	err error
}

// Model is the Bubble Tea model for the transcript parser UI.
type Model struct {
	service SessionPort

	phase    phase
	modeIdx  int
	pathIn   textinput.Model
	pasteIn  textarea.Model
	chatIn   textinput.Model
	viewport viewport.Model
	status   string
	sess     *session.Session
	ready    bool
}

// New creates a new TUI model instance.
func New(service SessionPort) Model {
	pathIn := textinput.New()
	pathIn.Prompt = "> "
	pathIn.Placeholder = "path/to/transcript.txt"
	pathIn.CharLimit = 0

	pasteIn := textarea.New()
	pasteIn.Placeholder = "Paste the transcript text here..."
	pasteIn.SetHeight(10)
	pasteIn.CharLimit = 0

	chatIn := textinput.New()
	chatIn.Prompt = "> "
	chatIn.Placeholder = "Ask something about the transcript"
	chatIn.CharLimit = 0

	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		pathIn:   pathIn,
		pasteIn:  pasteIn,
		chatIn:   chatIn,
		viewport: vp,
		status:   "Choose how to provide the transcript.",
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and drives the session service.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := boxStyle.GetFrameSize()
		reserved := 6 + fh // header, mode line, status, input box
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = vh
		m.pasteIn.SetWidth(max(20, msg.Width-4))
		m.refreshViewport()
		return m, nil

	case processedMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.phase = phaseChooseMode
			return m, nil
		}
		m.sess = msg.sess
		m.phase = phaseChat
		m.status = "Transcript processed successfully. Ask questions below."
		m.chatIn.Focus()
		m.refreshViewport()
		return m, nil

	case answeredMsg:
		m.phase = phaseChat
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = "Answered. Ask another question or press ctrl+n for a new transcript."
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.phase {
		case phaseChooseMode:
			return m.updateChooseMode(msg)
		case phaseEnterPath:
			return m.updateEnterPath(msg)
		case phasePasteText:
			return m.updatePasteText(msg)
		case phaseChat:
			return m.updateChat(msg)
		}
	}
	return m, nil
}

func (m Model) updateChooseMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "down", "tab":
		m.modeIdx = 1 - m.modeIdx
	case "enter":
		if m.modeIdx == 0 {
			m.phase = phaseEnterPath
			m.status = "Enter the path to a .txt transcript and press Enter."
			m.pathIn.Focus()
			return m, textinput.Blink
		}
		m.phase = phasePasteText
		m.status = "Paste the transcript, then press ctrl+s to process."
		m.pasteIn.Focus()
		return m, textarea.Blink
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateEnterPath(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.phase = phaseChooseMode
		m.status = "Choose how to provide the transcript."
		return m, nil
	case "enter":
		path := strings.TrimSpace(m.pathIn.Value())
		if path == "" {
			return m, nil
		}
		text, err := chunker.Load(path)
		if err != nil {
			m.status = "Error: " + err.Error()
			return m, nil
		}
		return m.startProcessing(text, domain.SourceFile)
	}
	var cmd tea.Cmd
	m.pathIn, cmd = m.pathIn.Update(msg)
	return m, cmd
}

func (m Model) updatePasteText(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.phase = phaseChooseMode
		m.status = "Choose how to provide the transcript."
		return m, nil
	case "ctrl+s":
		return m.startProcessing(m.pasteIn.Value(), domain.SourcePasted)
	}
	var cmd tea.Cmd
	m.pasteIn, cmd = m.pasteIn.Update(msg)
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+n":
		m.phase = phaseChooseMode
		m.status = "Choose how to provide the transcript."
		m.pasteIn.Reset()
		m.pathIn.Reset()
		return m, nil
	case "enter":
		question := strings.TrimSpace(m.chatIn.Value())
		if question == "" {
			return m, nil
		}
		m.chatIn.Reset()
		m.phase = phaseAnswering
		m.status = "Thinking..."
		service := m.service
		return m, func() tea.Msg {
			_, err := service.Ask(context.Background(), question)
			return answeredMsg{err: err}
		}
	}
	var cmd tea.Cmd
	m.chatIn, cmd = m.chatIn.Update(msg)
	return m, cmd
}

func (m Model) startProcessing(text string, source domain.TranscriptSource) (tea.Model, tea.Cmd) {
	if strings.TrimSpace(text) == "" {
		m.status = "Error: transcript is empty"
		return m, nil
	}
	m.phase = phaseProcessing
	m.status = "Processing transcript: indexing, extracting fields, writing outputs..."
	service := m.service
	return m, func() tea.Msg {
		sess, err := service.ProcessTranscript(context.Background(), text, source)
		return processedMsg{sess: sess, err: err}
	}
}

// View renders the current phase.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Customer Support Transcript Parser")
	status := statusStyle.Render(m.status)

	switch m.phase {
	case phaseChooseMode:
		return header + "\n\n" + m.renderModeMenu() + "\n" + status
	case phaseEnterPath:
		return header + "\n\n" + boxStyle.Render(m.pathIn.View()) + "\n" + status
	case phasePasteText:
		return header + "\n\n" + boxStyle.Render(m.pasteIn.View()) + "\n" + status
	case phaseProcessing:
		return header + "\n\n" + m.viewport.View() + "\n" + status
	default:
		return header + "\n" + m.viewport.View() + "\n" + boxStyle.Render(m.chatIn.View()) + "\n" + status
	}
}

func (m Model) renderModeMenu() string {
	options := []string{"Load a .txt transcript file", "Paste transcript text"}
	var sb strings.Builder
	sb.WriteString("Choose how you want to provide the transcript:\n\n")
	for i, opt := range options {
		cursor := "  "
		line := opt
		if i == m.modeIdx {
			cursor = "» "
			line = selectedStyle.Render(opt)
		}
		sb.WriteString(cursor + line + "\n")
	}
	sb.WriteString("\nenter: select  q: quit")
	return sb.String()
}

func (m *Model) refreshViewport() {
	if m.sess == nil {
		m.viewport.SetContent("")
		return
	}
	var sb strings.Builder
	sb.WriteString(sectionStyle.Render("Extracted Fields") + "\n")
	if data, err := json.MarshalIndent(m.sess.Payload, "", "  "); err == nil {
		sb.WriteString(string(data) + "\n")
	}
	sb.WriteString("\n" + sectionStyle.Render("Downloads") + "\n")
	sb.WriteString(fmt.Sprintf("JSON: %s\nPDF:  %s\n", m.sess.JSONPath, m.sess.PDFPath))

	history := m.service.History()
	if len(history) > 1 {
		sb.WriteString("\n" + sectionStyle.Render("Conversation") + "\n")
		for _, turn := range history {
			switch turn.Role {
			case domain.RoleUser:
				sb.WriteString(userStyle.Render("You: ") + turn.Content + "\n")
			case domain.RoleAssistant:
				sb.WriteString(assistantStyle.Render("Assistant: ") + turn.Content + "\n\n")
			}
		}
	}
	m.viewport.SetContent(sb.String())
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
