// Package tui is the terminal chat client. It drives a session.State with
// key presses and performs the resulting effects through a session.Client.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/session"
)

const defaultRequestTimeout = 90 * time.Second

// copyToClipboard is replaced in tests.
var copyToClipboard = clipboard.WriteAll

// eventMsg carries the result of an effect back into Update.
type eventMsg struct {
	ev session.Event
}

// Model is the bubbletea model of the chat client.
type Model struct {
	state   session.State
	client  session.Client
	timeout time.Duration

	// pending is performed by Init.
	pending session.Effect

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	width  int
	height int
	notice string
}

// New returns a model for mode that talks to client.
func New(client session.Client, mode chat.Mode) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Placeholder = session.Placeholder(mode)
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = assistantStyle

	state, eff := session.Apply(session.New(mode), session.Refresh{})

	m := Model{
		state:    state,
		client:   client,
		timeout:  defaultRequestTimeout,
		pending:  eff,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
	m.refreshViewport()
	return m
}

// State returns the current session state.
func (m Model) State() session.State { return m.state }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.perform(m.pending))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		return m.apply(msg.ev)

	case spinner.TickMsg:
		if !m.state.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "tab":
		m.notice = ""
		return m.apply(session.ModeChanged{Mode: m.state.Mode.Next()})

	case "enter":
		m.notice = ""
		if !m.state.Loaded && strings.TrimSpace(m.state.Input) != "" {
			m.notice = "Loading history, try again in a moment"
		}
		return m.apply(session.SubmitRequested{})

	case "ctrl+y":
		reply, ok := lastReply(m.state.History)
		switch {
		case !ok:
			m.notice = "Nothing to copy yet"
		case copyToClipboard(reply) != nil:
			m.notice = "Clipboard unavailable"
		default:
			m.notice = "Copied last reply"
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != m.state.Input {
		m.state, _ = session.Apply(m.state, session.InputChanged{Text: m.input.Value()})
	}
	return m, cmd
}

// apply folds ev into the state and turns the resulting effect into a command.
func (m Model) apply(ev session.Event) (tea.Model, tea.Cmd) {
	wasLoading := m.state.Loading

	var eff session.Effect
	m.state, eff = session.Apply(m.state, ev)

	if m.input.Value() != m.state.Input {
		m.input.SetValue(m.state.Input)
	}
	m.input.Placeholder = session.Placeholder(m.state.Mode)
	m.refreshViewport()

	cmds := []tea.Cmd{m.perform(eff)}
	if m.state.Loading && !wasLoading {
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

// perform runs eff asynchronously and reports back as an eventMsg.
func (m Model) perform(eff session.Effect) tea.Cmd {
	client, timeout := m.client, m.timeout

	switch e := eff.(type) {
	case session.LoadHistory:
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			entries, err := client.History(ctx, e.Mode)
			return eventMsg{session.HistoryLoaded{
				Mode:     e.Mode,
				Seq:      e.Seq,
				Messages: chat.Messages(entries),
				Err:      err,
			}}
		}

	case session.SendTurn:
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			reply, err := client.Send(ctx, e.Mode, e.Messages)
			if err != nil {
				return eventMsg{session.SubmitFailed{Mode: e.Mode, Err: err}}
			}
			return eventMsg{session.SubmitSucceeded{Mode: e.Mode, Reply: reply}}
		}
	}
	return nil
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(renderTranscript(m.state, max(m.width-2, 20)))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		modeStyle.Render(strings.ToUpper(m.state.Mode.String())),
		" ",
		dimStyle.Render("tab switch · enter send · ctrl+y copy · esc quit"),
	)

	status := ""
	if m.state.Loading {
		status = fmt.Sprintf("%s %s", m.spinner.View(), dimStyle.Render("Waiting for response..."))
	} else if m.notice != "" {
		status = dimStyle.Render(m.notice)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.input.View(),
	)
}
