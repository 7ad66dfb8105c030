// Package tui is the terminal front end: a home screen asking for a display
// name and a chat screen showing the session's message log.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatapp/backend/pkg/chatclient"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Chat is what the screens need from a chatclient.Session.
type Chat interface {
	Start(ctx context.Context, username string) error
	End()
	Send(ctx context.Context, text string) error
	Log() []chatclient.Message
	Username() string
}

// ReceivedMsg tells the app the session log grew.
type ReceivedMsg struct{}

// SettledMsg tells the app the log stopped changing; the chat scrolls to the end.
type SettledMsg struct{}

// ErrorMsg reports a failed background call of the session.
type ErrorMsg struct {
	Op  string
	Err error
}

type startedMsg struct {
	username string
	err      error
}

type sentMsg struct {
	err error
}

type screen int

const (
	homeScreen screen = iota
	chatScreen
)

const (
	headerHeight = 3
	footerHeight = 4
)

type App struct {
	chat    Chat
	timeout time.Duration

	screen   screen
	name     textinput.Model
	input    textinput.Model
	viewport viewport.Model
	width    int
	status   string
	// joining is set while a Start is in flight.
	joining bool
}

// New returns the app on its home screen. timeout bounds each start and send
// call; zero means no bound.
func New(chat Chat, timeout time.Duration) App {
	name := textinput.New()
	name.Placeholder = "Enter your name"
	name.CharLimit = 64
	name.Focus()

	input := textinput.New()
	input.Placeholder = "Type a message..."

	return App{
		chat:     chat,
		timeout:  timeout,
		screen:   homeScreen,
		name:     name,
		input:    input,
		viewport: viewport.New(80, 20),
		width:    80,
	}
}

func (a App) Init() tea.Cmd {
	return textinput.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		a.name.Width = msg.Width - 4
		a.input.Width = msg.Width - 4
		a.refresh()
		return a, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if a.screen == chatScreen || a.joining {
				a.chat.End()
			}
			return a, tea.Quit
		case tea.KeyEsc:
			if a.screen == chatScreen {
				return a.leave()
			}
			return a, nil
		case tea.KeyEnter:
			if a.screen == homeScreen {
				return a.enter()
			}
			return a.send()
		}
		var cmd tea.Cmd
		if a.screen == homeScreen {
			a.name, cmd = a.name.Update(msg)
		} else {
			a.input, cmd = a.input.Update(msg)
		}
		return a, cmd

	case startedMsg:
		a.joining = false
		if msg.err != nil {
			a.status = fmt.Sprintf("Could not join the chat: %v", msg.err)
			return a, nil
		}
		a.screen = chatScreen
		a.status = ""
		a.name.Blur()
		a.input.Reset()
		a.refresh()
		cmd := a.input.Focus()
		return a, cmd

	case sentMsg:
		if msg.err != nil {
			a.status = fmt.Sprintf("Message not sent: %v", msg.err)
		}
		return a, nil

	case ReceivedMsg:
		a.refresh()
		return a, nil

	case SettledMsg:
		a.refresh()
		a.viewport.GotoBottom()
		return a, nil

	case ErrorMsg:
		a.status = fmt.Sprintf("%s failed: %v", msg.Op, msg.Err)
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

// enter starts a session for the typed name. A blank name keeps the home screen,
// and so does a second Enter while the first join is still running.
func (a App) enter() (tea.Model, tea.Cmd) {
	if a.joining {
		return a, nil
	}
	username, err := chatclient.Enter(a.name.Value())
	if err != nil {
		a.status = "Please enter a name"
		return a, nil
	}
	a.status = "Joining..."
	a.joining = true
	chat, timeout := a.chat, a.timeout
	return a, func() tea.Msg {
		ctx, cancel := requestContext(timeout)
		defer cancel()
		return startedMsg{username: username, err: chat.Start(ctx, username)}
	}
}

// send submits the typed text. Blank text is kept in the input and nothing is sent;
// otherwise the input clears before the outcome is known.
func (a App) send() (tea.Model, tea.Cmd) {
	text := a.input.Value()
	if strings.TrimSpace(text) == "" {
		return a, nil
	}
	a.input.Reset()
	a.status = ""
	chat, timeout := a.chat, a.timeout
	return a, func() tea.Msg {
		ctx, cancel := requestContext(timeout)
		defer cancel()
		return sentMsg{err: chat.Send(ctx, text)}
	}
}

func (a App) leave() (tea.Model, tea.Cmd) {
	a.chat.End()
	a.screen = homeScreen
	a.status = ""
	a.input.Blur()
	a.input.Reset()
	a.viewport.SetContent("")
	cmd := a.name.Focus()
	return a, cmd
}

func (a *App) refresh() {
	if a.screen != chatScreen {
		return
	}
	a.viewport.SetContent(renderLog(a.chat.Log(), a.chat.Username(), a.viewport.Width))
}

func requestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
