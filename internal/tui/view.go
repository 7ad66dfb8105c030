package tui

import (
	"fmt"
	"strings"
	"time"

	"chatapp/backend/pkg/chatclient"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	authorStyle = lipgloss.NewStyle().Bold(true)
	ownStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	timeStyle   = lipgloss.NewStyle().Faint(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

func (a App) View() string {
	var b strings.Builder
	if a.screen == homeScreen {
		b.WriteString(titleStyle.Render("Make new friends with ChatApp"))
		b.WriteString("\n")
		b.WriteString(a.name.View())
		b.WriteString("\n\n")
		b.WriteString(statusStyle.Render(a.status))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter: join • ctrl+c: quit"))
		return b.String()
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("Welcome %s 👋", a.chat.Username())))
	b.WriteString("\n")
	b.WriteString(a.viewport.View())
	b.WriteString("\n")
	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(a.status))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send • esc: back • ctrl+c: quit"))
	return b.String()
}

// renderLog lays out messages in log order: own messages right-aligned,
// everyone else's left-aligned.
func renderLog(messages []chatclient.Message, self string, width int) string {
	if width <= 0 {
		width = 80
	}
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		block := lipgloss.JoinVertical(lipgloss.Left,
			authorStyle.Render(msg.Username),
			msg.Text,
			timeStyle.Render(clock(msg.CreatedAt)),
		)
		align := lipgloss.Left
		if msg.Username == self {
			block = ownStyle.Render(block)
			align = lipgloss.Right
		}
		blocks = append(blocks, lipgloss.PlaceHorizontal(width, align, block))
	}
	return strings.Join(blocks, "\n\n")
}

// clock formats t as H:MM in local time.
func clock(t time.Time) string {
	local := t.Local()
	return fmt.Sprintf("%d:%02d", local.Hour(), local.Minute())
}
