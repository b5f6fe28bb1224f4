package chat

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"chatstream/internal/domain"
)

// Bridge implements domain.Renderer by forwarding every callback into a
// running Bubble Tea program. Callbacks before Attach are dropped.
type Bridge struct {
	program atomic.Pointer[tea.Program]
}

// NewBridge creates an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes subsequent callbacks to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.program.Store(p)
}

func (b *Bridge) send(msg tea.Msg) {
	if p := b.program.Load(); p != nil {
		p.Send(msg)
	}
}

// Render implements domain.Renderer.
func (b *Bridge) Render(snap domain.Snapshot) { b.send(SnapshotMsg{Snapshot: snap}) }

// FatalError implements domain.Renderer.
func (b *Bridge) FatalError(message string) { b.send(FatalMsg{Message: message}) }

// Cancelled implements domain.Renderer.
func (b *Bridge) Cancelled() { b.send(CancelledMsg{}) }

// Sent implements domain.SentNotifier.
func (b *Bridge) Sent(user, ai domain.Message) { b.send(SentMsg{User: user, AI: ai}) }

var (
	_ domain.Renderer     = (*Bridge)(nil)
	_ domain.SentNotifier = (*Bridge)(nil)
)
