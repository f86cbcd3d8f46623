// This file contains the message handling logic for the chat interface,
// routing keyboard input, window sizing, spinner ticks, and the messages
// forwarded from the gateway and session hooks.
package chatui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles all incoming messages and updates the model state
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshViewport(true)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if err := m.client.Close(); err != nil {
				m.logger.Debug("Close on quit", "error", err.Error())
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.session.Busy() {
				return m, m.abortRun()
			}
		case tea.KeyEnter:
			if msg.Alt {
				break // alt+enter inserts a newline via the composer
			}
			text := strings.TrimSpace(m.composer.Value())
			if text == "" {
				return m, nil
			}
			m.composer.Reset()
			if cmd := m.handleCommand(text); cmd != nil {
				return m, cmd
			}
			return m, m.sendMessage(text)
		}

	case SessionChangedMsg:
		m.refreshViewport(true)

	case ConnStateMsg:
		m.connState = msg.State

	case NoticeMsg:
		m.session.Notify(msg.Text)
		m.refreshViewport(true)

	case sendDoneMsg:
		// Failures already surfaced through the session's notice log
		m.refreshViewport(true)

	case statusResultMsg:
		if msg.err != nil {
			m.session.Notify("status failed: " + msg.err.Error())
		} else {
			m.session.Notify(msg.text)
		}
		m.refreshViewport(true)

	case sessionsResultMsg:
		if msg.err != nil {
			m.session.Notify("sessions failed: " + msg.err.Error())
		} else {
			m.session.Notify(msg.text)
		}
		m.refreshViewport(true)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleCommand interprets slash commands handled locally by the interface.
// A nil return means the input is a regular chat message.
func (m *Model) handleCommand(text string) tea.Cmd {
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	fields := strings.Fields(text)
	switch fields[0] {
	case "/status":
		return m.fetchStatus()
	case "/sessions":
		return m.fetchSessions()
	case "/session":
		if len(fields) < 2 {
			m.session.Notify("usage: /session <key>")
			m.refreshViewport(true)
			return func() tea.Msg { return SessionChangedMsg{} }
		}
		return m.switchSession(fields[1])
	case "/stop":
		return m.abortRun()
	case "/quit", "/exit":
		if err := m.client.Close(); err != nil {
			m.logger.Debug("Close on quit", "error", err.Error())
		}
		return tea.Quit
	case "/help":
		m.session.Notify("commands: /status /sessions /session <key> /stop /quit")
		m.refreshViewport(true)
		return func() tea.Msg { return SessionChangedMsg{} }
	default:
		m.session.Notify("unknown command: " + fields[0])
		m.refreshViewport(true)
		return func() tea.Msg { return SessionChangedMsg{} }
	}
}

// layout recomputes component dimensions after a terminal resize
func (m *Model) layout() {
	headerHeight := 1
	composerHeight := m.composer.Height() + 1
	viewportHeight := m.height - headerHeight - composerHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = viewportHeight
	}
	m.composer.SetWidth(m.width)
}

// refreshViewport re-renders the transcript into the viewport, optionally
// pinning scroll to the bottom.
func (m *Model) refreshViewport(follow bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}

var _ tea.Model = (*Model)(nil)
