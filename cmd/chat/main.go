package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chatapp/backend/internal/config"
	"chatapp/backend/internal/tui"
	"chatapp/backend/pkg/chatclient"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// shutdownWait bounds how long exit waits for the last presence calls.
const shutdownWait = 3 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.LoadClient(".")
	if err != nil {
		return exitConfig, err
	}

	// The terminal belongs to the UI, so logs go to a file.
	logFile, err := tea.LogToFile(cfg.LogFile, "chat")
	if err != nil {
		return exitConfig, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return exitConfig, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

	// Hooks run on the subscription goroutine; they hand off to the program
	// without blocking so End never waits on a busy UI.
	var program *tea.Program
	notify := func(msg tea.Msg) {
		if program != nil {
			go program.Send(msg)
		}
	}
	session := chatclient.NewSession(
		chatclient.NewRelayClient(cfg.BackendURL, &http.Client{Timeout: cfg.RequestTimeout}),
		chatclient.NewPubSub(cfg.PubSubBaseURL(), logger),
		chatclient.WithChannel(cfg.Channel),
		chatclient.WithSettleDelay(cfg.SettleDelay),
		chatclient.WithLogger(logger),
		chatclient.WithOnMessage(func(chatclient.Message) { notify(tui.ReceivedMsg{}) }),
		chatclient.WithOnSettle(func() { notify(tui.SettledMsg{}) }),
		chatclient.WithOnError(func(op string, err error) {
			logger.Warn("Chat call failed", "op", op, "error", err)
			notify(tui.ErrorMsg{Op: op, Err: err})
		}),
	)

	program = tea.NewProgram(tui.New(session, cfg.RequestTimeout), tea.WithAltScreen())
	_, runErr := program.Run()

	// Covers a program killed without Ctrl+C and a join still in flight at quit.
	session.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := session.WaitContext(ctx); err != nil {
		logger.Warn("Presence calls still running at exit", "error", err)
	}
	if runErr != nil {
		return exitRuntime, fmt.Errorf("ui failed: %w", runErr)
	}
	return exitOK, nil
}
