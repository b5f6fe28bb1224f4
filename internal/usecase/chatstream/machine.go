package chatstream

import (
	"chatstream/internal/domain"
)

// Machine owns the conversation and the transient state of the in-flight
// request. The placeholder lives in its own slot rather than in the
// committed list, so there is never more than one and it always renders last.
//
// Machine is not safe for concurrent use; Session serialises access.
type Machine struct {
	chatID      string
	committed   []domain.Message
	placeholder *domain.Message
	state       domain.StreamState
	lastError   string
}

// NewMachine creates an idle machine over the committed messages of conv.
func NewMachine(conv *domain.Conversation) *Machine {
	m := &Machine{}
	m.Reset(conv)
	return m
}

// Reset replaces the committed conversation. It returns ErrRequestInFlight
// unless the machine is idle.
func (m *Machine) Reset(conv *domain.Conversation) error {
	if m.state.Phase != domain.PhaseIdle {
		return domain.ErrRequestInFlight
	}
	m.committed = nil
	m.placeholder = nil
	if conv != nil {
		m.chatID = conv.ID
		m.committed = append([]domain.Message(nil), conv.Messages...)
	}
	return nil
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() domain.Phase { return m.state.Phase }

// Placeholder returns the optimistic message of the in-flight request.
func (m *Machine) Placeholder() (domain.Message, bool) {
	if m.placeholder == nil {
		return domain.Message{}, false
	}
	return *m.placeholder, true
}

// Begin records the optimistic user message and enters Sending.
func (m *Machine) Begin(placeholder domain.Message) error {
	if m.state.Phase != domain.PhaseIdle {
		return domain.ErrRequestInFlight
	}
	p := placeholder
	m.placeholder = &p
	m.state = domain.StreamState{Phase: domain.PhaseSending}
	m.lastError = ""
	return nil
}

// Apply folds an action into the state. It reports whether the action had
// any effect; actions arriving outside an active request are ignored.
func (m *Machine) Apply(a domain.Action) bool {
	if !m.state.Phase.Active() {
		return false
	}

	switch a := a.(type) {
	case domain.StatusUpdate:
		m.state.StatusLabel = a.Label

	case domain.TokenAppend:
		if m.state.Phase == domain.PhaseSending {
			m.state.Phase = domain.PhaseStreaming
		}
		m.state.PartialContent += a.Text
		m.state.StatusLabel = ""

	case domain.Completed:
		m.complete(a)

	case domain.Failed:
		m.Fail(a.Message)

	default:
		return false
	}
	return true
}

// complete retires the placeholder into the authoritative pair.
func (m *Machine) complete(c domain.Completed) {
	m.placeholder = nil
	m.upsert(c.UserMessage)
	m.upsert(c.AIMessage)
	m.state = domain.StreamState{Phase: domain.PhaseIdle}
}

// upsert appends msg, or replaces a committed message with the same id so
// ids stay unique when the server replays an exchange.
func (m *Machine) upsert(msg domain.Message) {
	for i := range m.committed {
		if m.committed[i].ID == msg.ID {
			m.committed[i] = msg
			return
		}
	}
	m.committed = append(m.committed, msg)
}

// Fail rolls the request back and holds the Erroring phase so the failure
// can be rendered once. Settle finishes the transition to Idle.
func (m *Machine) Fail(message string) {
	if !m.state.Phase.Active() {
		return
	}
	m.rollback()
	m.state.Phase = domain.PhaseErroring
	m.lastError = message
}

// Settle moves an Erroring machine to Idle.
func (m *Machine) Settle() {
	if m.state.Phase == domain.PhaseErroring {
		m.state.Phase = domain.PhaseIdle
	}
}

// Cancel abandons the in-flight request without surfacing anything. It
// reports whether there was a request to abandon.
func (m *Machine) Cancel() bool {
	if !m.state.Phase.Active() {
		return false
	}
	m.rollback()
	m.state.Phase = domain.PhaseIdle
	return true
}

// rollback is the only path that discards the placeholder and partial reply.
func (m *Machine) rollback() {
	m.placeholder = nil
	m.state.PartialContent = ""
	m.state.StatusLabel = ""
}

// SetError records a failure that happened before any request began.
func (m *Machine) SetError(message string) {
	m.lastError = message
}

// DismissError clears the last surfaced failure.
func (m *Machine) DismissError() {
	m.lastError = ""
}

// Snapshot returns a copy safe to hand to renderers.
func (m *Machine) Snapshot() domain.Snapshot {
	n := len(m.committed)
	if m.placeholder != nil {
		n++
	}
	msgs := make([]domain.Message, 0, n)
	msgs = append(msgs, m.committed...)
	if m.placeholder != nil {
		msgs = append(msgs, *m.placeholder)
	}
	return domain.Snapshot{
		ChatID:    m.chatID,
		Messages:  msgs,
		Stream:    m.state,
		LastError: m.lastError,
	}
}
