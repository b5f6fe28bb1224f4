package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"chatstream/internal/adapter/tui/theme"
	"chatstream/internal/domain"
)

// MessageRole identifies the sender of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleError     MessageRole = "error"
)

// ChatMessage represents a single message in the chat history.
type ChatMessage struct {
	ID        string
	Role      MessageRole
	Content   string
	Rendered  string // cached glamour output; empty means not yet rendered
	Timestamp time.Time
	Citations []domain.Citation
	Pending   bool // optimistic user message not yet confirmed
	Streaming bool // assistant reply still arriving
}

// MessageListModel manages an ordered list of chat messages with optional ring buffer.
type MessageListModel struct {
	Messages    []ChatMessage
	MaxMessages int // 0 = unlimited; positive = ring buffer cap
	trimCount   int
	width       int
	mdRenderer  *glamour.TermRenderer
}

// NewMessageList creates an empty message list.
func NewMessageList() MessageListModel {
	return MessageListModel{}
}

// SetWidth updates the rendering width and clears cached renders.
func (m *MessageListModel) SetWidth(w int) {
	if w == m.width {
		return
	}
	m.width = w
	m.mdRenderer = nil
	for i := range m.Messages {
		m.Messages[i].Rendered = ""
	}
}

// SetMaxMessages sets the ring buffer capacity. 0 means unlimited.
func (m *MessageListModel) SetMaxMessages(max int) {
	m.MaxMessages = max
}

// TrimmedIndicator returns a message if older messages were trimmed, empty otherwise.
func (m *MessageListModel) TrimmedIndicator() string {
	if m.trimCount == 0 {
		return ""
	}
	return fmt.Sprintf("(%d older messages trimmed)", m.trimCount)
}

// Replace swaps in a new message list. Cached renders of messages whose id
// and content are unchanged are kept, so a streaming update only re-renders
// the reply in progress.
func (m *MessageListModel) Replace(msgs []ChatMessage) {
	cache := make(map[string]ChatMessage, len(m.Messages))
	for _, old := range m.Messages {
		if old.ID != "" && old.Rendered != "" {
			cache[old.ID] = old
		}
	}
	for i := range msgs {
		if old, ok := cache[msgs[i].ID]; ok && old.Content == msgs[i].Content && !msgs[i].Streaming {
			msgs[i].Rendered = old.Rendered
		}
	}
	m.trimCount = 0
	if m.MaxMessages > 0 && len(msgs) > m.MaxMessages {
		m.trimCount = len(msgs) - m.MaxMessages
		msgs = msgs[m.trimCount:]
	}
	m.Messages = msgs
}

// Clear removes all messages.
func (m *MessageListModel) Clear() {
	m.Messages = nil
	m.trimCount = 0
}

// View renders all messages as a single string.
func (m *MessageListModel) View() string {
	if len(m.Messages) == 0 {
		return theme.TextMuted.Render("  No messages yet. Start a conversation!")
	}

	contentWidth := ContentWidth(m.width)

	var sb strings.Builder
	if indicator := m.TrimmedIndicator(); indicator != "" {
		sb.WriteString(theme.TextMuted.Render("  "+indicator) + "\n\n")
	}
	for i := range m.Messages {
		msg := &m.Messages[i]
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.renderMessage(msg, contentWidth))
	}
	return sb.String()
}

func (m *MessageListModel) renderMessage(msg *ChatMessage, width int) string {
	label := roleLabel(msg.Role)
	if msg.Pending {
		label += " " + theme.TextMuted.Render(theme.SymbolPending)
	}
	header := label
	if ts := RelativeTime(msg.Timestamp); ts != "" {
		header += " " + theme.Timestamp.Render(ts)
	}
	headerWidth := lipgloss.Width(header)

	var body string
	switch msg.Role {
	case RoleAssistant:
		if msg.Streaming {
			// Markdown of a half-written reply flickers; wrap it plain.
			body = "  " + wrapText(msg.Content+theme.SymbolEllipsis, width-2)
		} else {
			if msg.Rendered == "" {
				msg.Rendered = m.renderMarkdown(msg.Content, width)
			}
			body = strings.TrimSpace(msg.Rendered)
		}
	case RoleError:
		body = theme.TextError.Render(wrapText(msg.Content, width-2))
	default:
		inlineW := width - headerWidth - 2
		if inlineW < 20 {
			inlineW = width - 2
		}
		body = wrapText(msg.Content, inlineW)
	}

	citations := renderCitations(msg.Citations, width)

	if body == "" {
		return header + "\n" + citations
	}
	if msg.Role == RoleAssistant || width-headerWidth-2 < 20 {
		return header + "\n  " + strings.TrimLeft(body, " ") + "\n" + citations
	}

	lines := strings.SplitN(body, "\n", 2)
	result := header + "  " + strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		result += "\n" + lines[1]
	}
	return result + "\n" + citations
}

// renderCitations renders the sources referenced by an assistant reply.
func renderCitations(cites []domain.Citation, width int) string {
	if len(cites) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range cites {
		label := c.Title
		if label == "" {
			label = c.DocumentID
		}
		if c.Page > 0 {
			label += fmt.Sprintf(", p. %d", c.Page)
		}
		line := fmt.Sprintf("[%d] %s", i+1, label)
		if limit := width - 4; limit > 10 && len([]rune(line)) > limit {
			line = string([]rune(line)[:limit-1]) + theme.SymbolEllipsis
		}
		sb.WriteString("  " + theme.Citation.Render(line) + "\n")
	}
	return sb.String()
}

func roleLabel(role MessageRole) string {
	switch role {
	case RoleUser:
		return theme.UserLabel.Render(theme.SymbolUser)
	case RoleAssistant:
		return theme.BotLabel.Render(theme.SymbolBot)
	case RoleSystem:
		return theme.SystemLabel.Render("System")
	case RoleError:
		return theme.ErrorLabel.Render(theme.SymbolError + " Error")
	default:
		return theme.TextMuted.Render(string(role))
	}
}

func (m *MessageListModel) renderMarkdown(content string, width int) string {
	if m.mdRenderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "  " + content
		}
		m.mdRenderer = r
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		return "  " + content
	}
	return rendered
}

// RelativeTime returns a human-readable relative time string.
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2 15:04")
	}
}

// wrapText wraps text to the given width with a 2-space indent on continuation lines.
// Uses rune-based indexing to safely handle multibyte UTF-8.
func wrapText(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	var lines []string
	for len(runes) > width {
		idx := -1
		for i := width - 1; i > 0; i-- {
			if runes[i] == ' ' {
				idx = i
				break
			}
		}
		if idx <= 0 {
			idx = width
		}
		lines = append(lines, string(runes[:idx]))
		runes = runes[idx:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return strings.Join(lines, "\n  ")
}

// ContentWidth calculates the content width respecting MaxContentWidth.
func ContentWidth(termWidth int) int {
	return theme.Clamp(termWidth-4, 40, theme.MaxContentWidth)
}

// Divider renders a horizontal line at the given width.
func Divider(width int) string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorBorder).
		Render(strings.Repeat("─", width))
}
