package components

import (
	"fmt"
	"strings"

	"chatstream/internal/adapter/tui/theme"
)

// Command is a slash command understood by the chat UI.
type Command struct {
	Name    string // without the leading slash
	Aliases []string
	Summary string
}

// CommandTable is the ordered set of slash commands. The same table drives
// completion, lookup and /help.
type CommandTable []Command

// Lookup resolves name or one of its aliases. The leading slash is optional.
func (t CommandTable) Lookup(name string) (Command, bool) {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	for _, c := range t {
		if c.Name == name {
			return c, true
		}
		for _, a := range c.Aliases {
			if a == name {
				return c, true
			}
		}
	}
	return Command{}, false
}

// Complete returns the commands whose name starts with prefix.
func (t CommandTable) Complete(prefix string) []Command {
	prefix = strings.ToLower(strings.TrimPrefix(prefix, "/"))
	var out []Command
	for _, c := range t {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Help lists every command with its summary.
func (t CommandTable) Help() string {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, c := range t {
		fmt.Fprintf(&sb, "\n  /%-10s %s", c.Name, c.Summary)
	}
	return sb.String()
}

// ParseCommand splits slash input into a lowercased command name without
// the slash and its arguments.
func ParseCommand(input string) (name string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	parts := strings.Fields(input)
	return strings.ToLower(strings.TrimPrefix(parts[0], "/")), parts[1:], true
}

const popupRows = 6

// CommandPopup offers completions while a command name is being typed.
type CommandPopup struct {
	table    CommandTable
	matches  []Command
	selected int
	width    int
}

// NewCommandPopup creates a hidden popup over table.
func NewCommandPopup(table CommandTable) CommandPopup {
	return CommandPopup{table: table}
}

// Filter updates the matches for the current input. The popup only shows
// while the input is a bare command name.
func (p *CommandPopup) Filter(input string) {
	if !strings.HasPrefix(input, "/") || strings.ContainsAny(input, " \n") {
		p.Close()
		return
	}
	p.matches = p.table.Complete(input)
	if p.selected >= len(p.matches) {
		p.selected = 0
	}
}

// Visible reports whether there is anything to offer.
func (p CommandPopup) Visible() bool { return len(p.matches) > 0 }

// Move shifts the selection by delta, wrapping around.
func (p *CommandPopup) Move(delta int) {
	n := len(p.matches)
	if n == 0 {
		return
	}
	p.selected = ((p.selected+delta)%n + n) % n
}

// Accept returns the selected command as input text and closes the popup.
func (p *CommandPopup) Accept() string {
	if len(p.matches) == 0 {
		return ""
	}
	text := "/" + p.matches[p.selected].Name
	p.Close()
	return text
}

// Close hides the popup.
func (p *CommandPopup) Close() {
	p.matches = nil
	p.selected = 0
}

// SetWidth sets the available width.
func (p *CommandPopup) SetWidth(w int) { p.width = w }

// Height is the number of lines View occupies.
func (p CommandPopup) Height() int {
	if !p.Visible() {
		return 0
	}
	return min(len(p.matches), popupRows) + 2
}

// View renders the matches in a bordered box.
func (p CommandPopup) View() string {
	if !p.Visible() {
		return ""
	}
	// Scroll so the selection stays inside the window.
	start := 0
	if p.selected >= popupRows {
		start = p.selected - popupRows + 1
	}
	end := min(start+popupRows, len(p.matches))

	descW := max(p.width-22, 10)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		c := p.matches[i]
		desc := c.Summary
		if r := []rune(desc); len(r) > descW {
			desc = string(r[:descW-1]) + theme.SymbolEllipsis
		}
		marker := "  "
		if i == p.selected {
			marker = theme.TextInfo.Render(theme.SymbolArrowR + " ")
		}
		lines = append(lines, fmt.Sprintf("%s%-11s %s", marker, "/"+c.Name, theme.TextMuted.Render(desc)))
	}
	return theme.Popup.Render(strings.Join(lines, "\n"))
}
