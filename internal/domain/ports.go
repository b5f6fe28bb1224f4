package domain

import (
	"context"
	"io"
)

// StreamRequest identifies one send of user content into a chat.
type StreamRequest struct {
	ProjectID string
	ChatID    string
	UserID    string
	Token     string
	Content   string
}

// Transport opens the event stream for a send. The returned body yields raw
// bytes in whatever chunking the network produces. Cancelling ctx must abort
// any blocked read on the body.
type Transport interface {
	Open(ctx context.Context, req StreamRequest) (io.ReadCloser, error)
}

// TokenSource yields the bearer credential for the next request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ConversationLoader fetches the committed messages of a chat.
type ConversationLoader interface {
	LoadConversation(ctx context.Context, chatID string) (*Conversation, error)
}

// Renderer receives every externally visible state change of a session.
// Calls are made from the goroutine driving the session and must not block
// for long.
type Renderer interface {
	// Render is invoked after every applied action and lifecycle transition.
	Render(snap Snapshot)
	// FatalError surfaces a request failure as a distinct signal.
	FatalError(message string)
	// Cancelled signals that the in-flight request was abandoned by the user.
	Cancelled()
}

// SentNotifier is an optional Renderer extension notified once per
// completed exchange.
type SentNotifier interface {
	Sent(userMessage, aiMessage Message)
}
