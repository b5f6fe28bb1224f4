// Package theme holds the colors, symbols and styles of the chat UI.
// Colors are adaptive so the same palette reads on light and dark
// terminals; lipgloss drops them entirely when NO_COLOR is set.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"chatstream/internal/domain"
)

// Palette.
var (
	ColorUser      = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAssistant = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorError     = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorBusy      = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorIdle      = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorMuted     = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	ColorFaint     = lipgloss.AdaptiveColor{Light: "#9e9e9e", Dark: "#757575"}
	ColorBorder    = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
	ColorFocus     = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#42a5f5"}
	ColorBar       = lipgloss.AdaptiveColor{Light: "#f5f5f5", Dark: "#2d2d2d"}
)

// Symbols, replaced with ASCII fallbacks by InitSymbols.
var (
	SymbolError     = "✗"
	SymbolPending   = "◌"
	SymbolArrowR    = "→"
	SymbolArrowDown = "↓"
	SymbolBullet    = "•"
	SymbolEllipsis  = "…"
	SymbolUser      = "You"
	SymbolBot       = "Assistant"
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextError = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextInfo  = lipgloss.NewStyle().Foreground(ColorFocus)
	TextMuted = lipgloss.NewStyle().Foreground(ColorMuted)
)

// Message headers and decorations.
var (
	UserLabel   = lipgloss.NewStyle().Foreground(ColorUser).Bold(true)
	BotLabel    = lipgloss.NewStyle().Foreground(ColorAssistant).Bold(true)
	SystemLabel = lipgloss.NewStyle().Foreground(ColorMuted).Bold(true)
	ErrorLabel  = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	Timestamp   = lipgloss.NewStyle().Foreground(ColorFaint).Faint(true)
	Citation    = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)

	// NewContent marks unseen messages below a scrolled-up view.
	NewContent = lipgloss.NewStyle().Foreground(ColorBar).Background(ColorFocus).Padding(0, 1)
)

// Status bar.
var (
	StatusBar = lipgloss.NewStyle().Foreground(ColorFaint).Background(ColorBar).Padding(0, 1)
	StatusKey = lipgloss.NewStyle().Foreground(ColorFocus).Bold(true)

	phaseBadge = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

// Input area.
var (
	InputPrompt      = lipgloss.NewStyle().Foreground(ColorFocus).Bold(true)
	InputPlaceholder = lipgloss.NewStyle().Foreground(ColorFaint)
	Popup            = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorFocus).Padding(0, 1)
)

// PhaseBadge renders a short colored label for the stream phase.
func PhaseBadge(p domain.Phase) string {
	switch p {
	case domain.PhaseSending:
		return phaseBadge.Foreground(ColorBusy).Render("sending")
	case domain.PhaseStreaming:
		return phaseBadge.Foreground(ColorBusy).Render("streaming")
	case domain.PhaseErroring:
		return phaseBadge.Foreground(ColorError).Render("error")
	default:
		return phaseBadge.Foreground(ColorIdle).Render("ready")
	}
}

// MaxContentWidth caps the width of message text.
const MaxContentWidth = 100

// Clamp returns v clamped to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
