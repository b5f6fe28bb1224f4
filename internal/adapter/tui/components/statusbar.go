package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chatstream/internal/adapter/tui/theme"
	"chatstream/internal/domain"
)

// KeyHint is one key binding shown in the status bar.
type KeyHint struct {
	Key  string
	Desc string
}

// StatusBarModel is the bottom line: key hints on the left; the chat, the
// request phase and the current activity on the right.
type StatusBarModel struct {
	Hints    []KeyHint
	Chat     string // title, or id when the chat has no title
	Phase    domain.Phase
	Activity string // e.g. "Thinking…"
	width    int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the bar. Hints are dropped from the end when space runs out.
func (m StatusBarModel) View() string {
	right := []string{theme.PhaseBadge(m.Phase)}
	if m.Activity != "" {
		right = append(right, theme.TextInfo.Render(m.Activity))
	}
	if m.Chat != "" {
		right = append(right, theme.TextMuted.Render(m.Chat))
	}
	rightView := strings.Join(right, " ")

	sep := "  " + theme.Dim.Render("|") + "  "
	hints := make([]string, 0, len(m.Hints))
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, sep)
	for len(hints) > 0 && m.width > 0 && lipgloss.Width(left)+lipgloss.Width(rightView)+3 > m.width {
		hints = hints[:len(hints)-1]
		left = strings.Join(hints, sep)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(rightView)-2, 1)
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + rightView)
}
