package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"marketrag/internal/catalog"
	"marketrag/internal/domain"
	"marketrag/internal/service"
	"marketrag/internal/session"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Handle(ctx context.Context, sess *session.Session, text string) (service.Reply, error)
	SubmitVendor(ctx context.Context, sess *session.Session, in catalog.VendorInput) catalog.Result
	SubmitProduct(ctx context.Context, sess *session.Session, in catalog.ProductInput) catalog.Result
}

type replyMsg struct {
	reply service.Reply
	err   error
}

type submitMsg struct {
	result catalog.Result
}

const sourcesHeight = 8

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx        context.Context
	chat       ChatPort
	sess       *session.Session
	input      textinput.Model
	transcript viewport.Model
	form       *form
	contexts   []domain.Context
	cursor     int
	lastQuery  string
	overview   string
	status     string
	busy       bool
	ready      bool
}

// New creates the chat model for one session. overview is shown under the
// header.
func New(ctx context.Context, chat ChatPort, sess *session.Session, overview string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the marketplace, or type \"add vendor\" / \"add product\""
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:        ctx,
		chat:       chat,
		sess:       sess,
		input:      ti,
		transcript: viewport.New(0, 0),
		overview:   overview,
		status:     "Ready.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.chat.Handle(m.ctx, m.sess, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m Model) submit(f *form) (tea.Cmd, error) {
	if f.kind == session.FormProduct {
		in, err := f.product()
		if err != nil {
			return nil, err
		}
		return func() tea.Msg { return submitMsg{m.chat.SubmitProduct(m.ctx, m.sess, in)} }, nil
	}
	in, err := f.vendor()
	if err != nil {
		return nil, err
	}
	return func() tea.Msg { return submitMsg{m.chat.SubmitVendor(m.ctx, m.sess, in)} }, nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := boxStyle.GetFrameSize()
		// header, overview, status and the input box
		reserved := 3 + 3 + sourcesHeight + th
		m.transcript.Width = max(20, msg.Width-4)
		m.transcript.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = string(msg.reply.Verdict.Intent) + " (" + string(msg.reply.Verdict.Strategy) + ")"
		}
		if msg.reply.Answer != nil {
			m.contexts = msg.reply.Answer.Contexts
			m.cursor = 0
		}
		if msg.reply.Form != session.FormNone {
			m.form = newForm(msg.reply.Form)
		}
		m.refresh()
		return m, nil

	case submitMsg:
		m.busy = false
		m.status = strings.SplitN(msg.result.Message, "\n", 2)[0]
		if msg.result.Success {
			m.form = nil
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		if m.form != nil {
			return m.updateForm(msg)
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.input.Reset()
			m.lastQuery = q
			m.busy = true
			m.status = "Thinking..."
			return m, m.ask(q)
		case "down":
			if len(m.contexts) > 0 {
				m.cursor = (m.cursor + 1) % len(m.contexts)
				return m, nil
			}
		case "up":
			if len(m.contexts) > 0 {
				m.cursor = (m.cursor - 1 + len(m.contexts)) % len(m.contexts)
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.sess.CloseForm()
		m.form = nil
		m.status = "Form cancelled."
		return m, nil
	case "tab", "down":
		m.form.move(1)
		return m, nil
	case "shift+tab", "up":
		m.form.move(-1)
		return m, nil
	case "enter":
		if !m.form.last() {
			m.form.move(1)
			return m, nil
		}
		cmd, err := m.submit(m.form)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.busy = true
		m.status = "Saving..."
		return m, cmd
	}
	return m, m.form.update(msg)
}

func (m *Model) refresh() {
	m.transcript.SetContent(renderTranscript(m.sess.Messages(), m.transcript.Width))
	m.transcript.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Marketplace BI Assistant")
	overview := mutedStyle.Render(m.overview)
	bottom := boxStyle.Render(m.input.View())
	if m.form != nil {
		bottom = boxStyle.Render(m.form.view())
	}
	sources := boxStyle.Width(m.transcript.Width).Height(sourcesHeight).Render(m.renderSource())
	status := statusStyle.Render(m.status)
	return header + "\n" + overview + "\n" + boxStyle.Render(m.transcript.View()) + "\n" + sources + "\n" + bottom + "\n" + status
}

func (m Model) renderSource() string {
	if len(m.contexts) == 0 {
		return mutedStyle.Render("Sources appear here after an answer.")
	}
	c := m.contexts[m.cursor]
	title := fmt.Sprintf("[%d/%d] %s  score=%.3f", m.cursor+1, len(m.contexts), c.Source, c.Score)
	return title + "\n" + highlightBestSentence(c.Text, m.lastQuery)
}

func renderTranscript(msgs []domain.ChatMessage, width int) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		who := assistantStyle.Render("Assistant")
		if msg.Role == domain.RoleUser {
			who = userStyle.Render("You")
		}
		b.WriteString(who + "\n" + lipgloss.NewStyle().Width(max(10, width)).Render(msg.Content))
	}
	return b.String()
}

var (
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	focusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)
