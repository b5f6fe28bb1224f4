package components

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"chatstream/internal/adapter/tui/theme"
)

// ChatViewModel scrolls the message list. While the view is at the bottom
// it follows new content; once the user scrolls up it stays put and marks
// that content arrived below until the user returns.
type ChatViewModel struct {
	Viewport viewport.Model
	Messages MessageListModel

	ready  bool
	follow bool
	behind bool // content changed while not following
}

// NewChatView creates a chat view. The viewport is sized on the first SetSize.
func NewChatView() ChatViewModel {
	return ChatViewModel{Messages: NewMessageList(), follow: true}
}

// SetMaxMessages caps how many messages are kept for display.
func (m *ChatViewModel) SetMaxMessages(n int) {
	m.Messages.SetMaxMessages(n)
}

// SetSize resizes the viewport and re-renders at the new width. One line
// is kept back for the new-content marker.
func (m *ChatViewModel) SetSize(w, h int) {
	m.Messages.SetWidth(w)
	if !m.ready {
		m.Viewport = viewport.New(w, h-1)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h - 1
	}
	m.refresh()
}

// SetMessages replaces the displayed messages.
func (m *ChatViewModel) SetMessages(msgs []ChatMessage) {
	m.Messages.Replace(msgs)
	m.refresh()
	if !m.follow {
		m.behind = true
	}
}

// Clear removes all messages and starts following again.
func (m *ChatViewModel) Clear() {
	m.Messages.Clear()
	m.follow = true
	m.behind = false
	m.refresh()
}

// Follow jumps to the newest message and resumes following.
func (m *ChatViewModel) Follow() {
	m.follow = true
	m.behind = false
	if m.ready {
		m.Viewport.GotoBottom()
	}
}

// Following reports whether new content scrolls into view.
func (m ChatViewModel) Following() bool { return m.follow }

// Update handles scrolling.
func (m ChatViewModel) Update(msg tea.Msg) (ChatViewModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.follow = m.Viewport.AtBottom()
	if m.follow {
		m.behind = false
	}
	return m, cmd
}

// View renders the viewport and, when updates are waiting below, a marker.
func (m ChatViewModel) View() string {
	if !m.ready {
		return "  Initializing..."
	}
	marker := ""
	if m.behind {
		marker = theme.NewContent.Render(theme.SymbolArrowDown + " new messages below (End to jump)")
	}
	return m.Viewport.View() + "\n" + marker
}

func (m *ChatViewModel) refresh() {
	if !m.ready {
		return
	}
	m.Viewport.SetContent(m.Messages.View())
	if m.follow {
		m.Viewport.GotoBottom()
	}
}
