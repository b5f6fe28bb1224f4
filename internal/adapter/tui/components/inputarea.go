package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatstream/internal/adapter/tui/theme"
)

const (
	inputPlaceholder = "Ask a question..."
	historyLimit     = 50
)

// InputSubmitMsg is sent when the user presses Enter on non-empty input.
type InputSubmitMsg struct {
	Value string
}

// InputAreaModel is the message editor. Enter submits, Alt+Enter inserts a
// newline, Up and Down at the edges recall earlier submissions, and a
// popup completes slash commands.
type InputAreaModel struct {
	Textarea textarea.Model
	Popup    CommandPopup

	locked  bool
	history []string
	recall  int    // index into history while browsing; len(history) otherwise
	draft   string // text typed before browsing started
}

// NewInputArea creates a focused editor completing commands from table.
func NewInputArea(table CommandTable) InputAreaModel {
	ta := textarea.New()
	ta.Placeholder = inputPlaceholder
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	// Plain Enter submits; the editor only breaks lines on these.
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = theme.InputPrompt
	ta.FocusedStyle.Placeholder = theme.InputPlaceholder
	ta.BlurredStyle.Placeholder = theme.InputPlaceholder
	ta.Focus()

	return InputAreaModel{Textarea: ta, Popup: NewCommandPopup(table)}
}

// SetWidth updates the editor width.
func (m *InputAreaModel) SetWidth(w int) {
	m.Textarea.SetWidth(w - 2)
	m.Popup.SetWidth(w)
}

// Lock stops editing and shows reason in place of the placeholder. Text
// already typed is kept.
func (m *InputAreaModel) Lock(reason string) {
	m.locked = true
	m.Popup.Close()
	m.Textarea.Placeholder = reason
	m.Textarea.Blur()
}

// Unlock resumes editing.
func (m *InputAreaModel) Unlock() {
	m.locked = false
	m.Textarea.Placeholder = inputPlaceholder
	m.Textarea.Focus()
}

// Locked reports whether editing is stopped.
func (m InputAreaModel) Locked() bool { return m.locked }

// Value returns the current text.
func (m InputAreaModel) Value() string { return m.Textarea.Value() }

// History returns past submissions, oldest first.
func (m InputAreaModel) History() []string { return m.history }

func (m *InputAreaModel) remember(value string) {
	if n := len(m.history); n == 0 || m.history[n-1] != value {
		m.history = append(m.history, value)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
	}
	m.recall = len(m.history)
	m.draft = ""
}

// browse moves through history by delta. It reports false when there is
// nowhere to go so the key can fall through to the editor.
func (m *InputAreaModel) browse(delta int) bool {
	next := m.recall + delta
	if next < 0 || next > len(m.history) || len(m.history) == 0 {
		return false
	}
	if m.recall == len(m.history) {
		m.draft = m.Textarea.Value()
	}
	m.recall = next
	if next == len(m.history) {
		m.Textarea.SetValue(m.draft)
	} else {
		m.Textarea.SetValue(m.history[next])
	}
	m.Textarea.CursorEnd()
	return true
}

// Update handles key input. Mouse events never reach the editor.
func (m InputAreaModel) Update(msg tea.Msg) (InputAreaModel, tea.Cmd) {
	if m.locked {
		return m, nil
	}
	if _, ok := msg.(tea.MouseMsg); ok {
		return m, nil
	}

	if k, ok := msg.(tea.KeyMsg); ok {
		if m.Popup.Visible() {
			switch k.Type {
			case tea.KeyTab, tea.KeyDown:
				m.Popup.Move(1)
				return m, nil
			case tea.KeyShiftTab, tea.KeyUp:
				m.Popup.Move(-1)
				return m, nil
			case tea.KeyEnter:
				if text := m.Popup.Accept(); text != "" {
					m.Textarea.SetValue(text + " ")
					m.Textarea.CursorEnd()
				}
				return m, nil
			case tea.KeyEsc:
				m.Popup.Close()
				return m, nil
			}
		}

		switch k.Type {
		case tea.KeyEnter:
			if k.Alt {
				break
			}
			value := strings.TrimSpace(m.Textarea.Value())
			if value == "" {
				return m, nil
			}
			m.remember(value)
			m.Textarea.Reset()
			m.Popup.Close()
			return m, func() tea.Msg { return InputSubmitMsg{Value: value} }
		case tea.KeyUp:
			if m.Textarea.Line() == 0 && m.browse(-1) {
				return m, nil
			}
		case tea.KeyDown:
			if m.Textarea.Line() == m.Textarea.LineCount()-1 && m.browse(1) {
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.Textarea, cmd = m.Textarea.Update(msg)
	m.Popup.Filter(m.Textarea.Value())
	return m, cmd
}

// View renders the popup, when open, above the editor.
func (m InputAreaModel) View() string {
	if popup := m.Popup.View(); popup != "" {
		return popup + "\n" + m.Textarea.View()
	}
	return m.Textarea.View()
}
