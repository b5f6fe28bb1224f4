package domain

// Wire event types understood by the stream dispatcher.
const (
	StreamEventStatus = "status"
	StreamEventToken  = "token"
	StreamEventDone   = "done"
	StreamEventError  = "error"
)

// FramedEvent is one event recovered from the byte stream. It exists only
// between the frame parser and the dispatcher.
type FramedEvent struct {
	Type    string
	Payload string
}

// Phase is the request lifecycle position of a conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseErroring
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseErroring:
		return "erroring"
	default:
		return "unknown"
	}
}

// Active reports whether a request is in flight.
func (p Phase) Active() bool {
	return p == PhaseSending || p == PhaseStreaming
}

// StreamState holds the transient fields of the in-flight request.
type StreamState struct {
	Phase          Phase
	PartialContent string
	StatusLabel    string
}

// Action is a domain-level instruction derived from one framed event.
type Action interface {
	isAction()
}

// StatusUpdate carries a progress label such as "thinking".
type StatusUpdate struct {
	Label string
}

// TokenAppend carries a fragment of the assistant reply.
type TokenAppend struct {
	Text string
}

// Completed carries the authoritative pair that replaces the placeholder.
type Completed struct {
	UserMessage Message
	AIMessage   Message
}

// Failed carries a server-reported stream failure.
type Failed struct {
	Message string
}

func (StatusUpdate) isAction() {}
func (TokenAppend) isAction()  {}
func (Completed) isAction()    {}
func (Failed) isAction()       {}

// Snapshot is the render-ready view of a conversation. Messages already
// includes the placeholder, if any, as its last element.
type Snapshot struct {
	ChatID   string
	Messages []Message
	Stream   StreamState
	// LastError is the most recent surfaced failure, cleared by dismissal or
	// the next send.
	LastError string
}
