package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// sendCmd runs Send in a background goroutine. Progress arrives through
// the Bridge while it runs.
func sendCmd(ctx context.Context, s Session, content string) tea.Cmd {
	return func() tea.Msg {
		return SendDoneMsg{Err: s.Send(ctx, content)}
	}
}

// loadCmd fetches the conversation in a background goroutine.
func loadCmd(ctx context.Context, s Session) tea.Cmd {
	return func() tea.Msg {
		return LoadedMsg{Err: s.Load(ctx)}
	}
}

// dismissCmd clears the session error off the update loop: the session
// renders synchronously through the Bridge, which would block inside Update.
func dismissCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		s.DismissError()
		return nil
	}
}
