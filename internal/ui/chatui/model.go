// Package chatui implements the console's chat interface: a scrollback
// viewport over the session transcript, a composer for user input, and a
// header reflecting gateway connection state. It is a thin consumer of the
// gateway and chat layers; all protocol and run-state decisions live there.
package chatui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/openclaw/console/internal/chat"
	"github.com/openclaw/console/internal/gateway"
	"github.com/openclaw/console/internal/interfaces"
	"github.com/openclaw/console/internal/logging"
)

// commandTimeout bounds the slash-command round-trips issued from the UI
const commandTimeout = 15 * time.Second

// Model represents the chat interface state
type Model struct {
	// Injected dependencies
	client  *gateway.Client
	session *chat.Session
	profile *interfaces.Profile
	theme   *interfaces.Theme
	logger  *logging.Logger

	// UI state
	viewport  viewport.Model
	composer  textarea.Model
	spin      spinner.Model
	renderer  *glamour.TermRenderer
	connState interfaces.ConnectionState
	ready     bool
	width     int
	height    int
}

// Messages delivered from outside the Bubble Tea loop. The gateway and
// session hooks run on their own goroutines; main forwards them into the
// program as these messages.
type (
	// SessionChangedMsg signals that the session's observable state moved
	SessionChangedMsg struct{}

	// ConnStateMsg carries a gateway connection state transition
	ConnStateMsg struct {
		State interfaces.ConnectionState
	}

	// NoticeMsg carries a connection-level system notice
	NoticeMsg struct {
		Text string
	}
)

// Internal command results
type (
	sendDoneMsg struct {
		err error
	}

	statusResultMsg struct {
		text string
		err  error
	}

	sessionsResultMsg struct {
		text string
		err  error
	}
)

// NewModel creates the chat interface bound to a gateway client and session
func NewModel(client *gateway.Client, session *chat.Session, profile *interfaces.Profile, theme *interfaces.Theme) *Model {
	composer := textarea.New()
	composer.Placeholder = "Message OpenClaw (/help for commands)"
	composer.CharLimit = 0
	composer.SetHeight(3)
	composer.ShowLineNumbers = false
	composer.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text rendering
		renderer = nil
	}

	return &Model{
		client:    client,
		session:   session,
		profile:   profile,
		theme:     theme,
		logger:    logging.GetUILogger(),
		composer:  composer,
		spin:      spin,
		renderer:  renderer,
		connState: client.State(),
	}
}

// Init is the first command that will be executed
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick)
}

// sendMessage submits user input through the chat session. The session call
// blocks until the gateway acknowledges the send, so it runs as a command.
func (m *Model) sendMessage(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), gateway.DefaultRequestTimeout)
		defer cancel()
		return sendDoneMsg{err: m.session.Send(ctx, text)}
	}
}

// fetchStatus runs the /status command round-trip
func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		status, err := m.client.Status(ctx)
		if err != nil {
			return statusResultMsg{err: err}
		}
		var b strings.Builder
		fmt.Fprintf(&b, "gateway %s", status.Hostname)
		if status.Model != "" {
			fmt.Fprintf(&b, " · model %s", status.Model)
		}
		if status.Uptime > 0 {
			fmt.Fprintf(&b, " · up %s", (time.Duration(status.Uptime) * time.Second).String())
		}
		if status.Sessions > 0 {
			fmt.Fprintf(&b, " · %d sessions", status.Sessions)
		}
		return statusResultMsg{text: b.String()}
	}
}

// fetchSessions runs the /sessions command round-trip
func (m *Model) fetchSessions() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		sessions, err := m.client.Sessions(ctx)
		if err != nil {
			return sessionsResultMsg{err: err}
		}
		if len(sessions) == 0 {
			return sessionsResultMsg{text: "no sessions"}
		}
		names := make([]string, 0, len(sessions))
		current := m.session.SessionKey()
		for _, s := range sessions {
			name := s.Name()
			if name == current {
				name = name + " (current)"
			}
			names = append(names, name)
		}
		return sessionsResultMsg{text: "sessions: " + strings.Join(names, ", ")}
	}
}

// switchSession rebinds the chat to another gateway session and reloads
// that session's history.
func (m *Model) switchSession(key string) tea.Cmd {
	m.session.SetSessionKey(key)
	m.session.Notify("switched to session " + key)
	m.refreshViewport(true)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		m.session.RefreshHistory(ctx)
		return SessionChangedMsg{}
	}
}

// abortRun requests cancellation of the active run
func (m *Model) abortRun() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return sendDoneMsg{err: m.session.Abort(ctx)}
	}
}
