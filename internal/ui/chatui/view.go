// This file contains the rendering logic for the chat interface: the
// connection header, the transcript with markdown-rendered assistant
// messages, streamed partial output, and the notice log.
package chatui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/openclaw/console/internal/chat"
	"github.com/openclaw/console/internal/interfaces"
)

// View renders the complete chat interface
func (m *Model) View() string {
	if !m.ready {
		return "starting..."
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.composer.View())
	return b.String()
}

// renderHeader shows the profile, session, and connection state
func (m *Model) renderHeader() string {
	stateStyle := lipgloss.NewStyle().Bold(true).Foreground(m.stateColor())
	header := stateStyle.Render("● "+m.connState.String()) +
		"  " + m.profile.Name + " @ " + m.profile.GatewayURL +
		"  [" + m.session.SessionKey() + "]"
	if m.session.Loading() {
		header += "  " + m.spin.View() + "loading history"
	}
	return lipgloss.NewStyle().Width(m.width).Render(header)
}

// stateColor maps the connection state onto the active theme
func (m *Model) stateColor() lipgloss.Color {
	switch m.connState {
	case interfaces.StateConnected:
		return lipgloss.Color(m.theme.Success)
	case interfaces.StateConnecting, interfaces.StateReconnecting:
		return lipgloss.Color(m.theme.Warning)
	default:
		return lipgloss.Color(m.theme.Error)
	}
}

// renderTranscript renders the conversation, streamed output, and notices
func (m *Model) renderTranscript() string {
	userStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Info))
	noticeStyle := lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color(m.theme.Warning))

	var b strings.Builder
	for _, msg := range m.session.Transcript() {
		switch msg.Role {
		case "user":
			b.WriteString(userStyle.Render("you") + "\n")
			b.WriteString(msg.Text)
		default:
			b.WriteString(m.renderAssistant(msg.Text))
		}
		b.WriteString("\n\n")
	}

	if stream := m.session.StreamText(); stream != "" {
		b.WriteString(m.renderAssistant(stream))
		b.WriteString("\n")
		b.WriteString(m.spin.View())
		b.WriteString("\n")
	} else if m.session.State() == chat.RunSending {
		b.WriteString(m.spin.View() + " thinking\n")
	}

	for _, notice := range m.session.Notices() {
		b.WriteString(noticeStyle.Render("· "+notice) + "\n")
	}

	return b.String()
}

// renderAssistant renders assistant text as markdown, falling back to plain
// text when the renderer is unavailable or rejects the input.
func (m *Model) renderAssistant(text string) string {
	if m.renderer == nil {
		return text
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}
