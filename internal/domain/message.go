package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PlaceholderPrefix marks ids minted locally for an optimistic user message.
// The server never issues ids with this prefix.
const PlaceholderPrefix = "temp-"

// Citation points at a source document referenced by an assistant reply.
type Citation struct {
	ID         string `json:"id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
	Page       int    `json:"page,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	Content   string     `json:"content"`
	Role      string     `json:"role"`
	AuthorID  string     `json:"author_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Citations []Citation `json:"citations,omitempty"`
}

// timestampLayouts are tried in order. Layouts without an offset cover
// servers that emit naive timestamps; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses s in any layout the service is known to emit.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnmarshalJSON reads created_at leniently. A timestamp in no known layout
// leaves CreatedAt zero instead of rejecting the message.
func (m *Message) UnmarshalJSON(data []byte) error {
	type wire Message
	var w struct {
		wire
		CreatedAt *string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message(w.wire)
	if w.CreatedAt != nil {
		m.CreatedAt, _ = ParseTimestamp(*w.CreatedAt)
	}
	return nil
}

// IsPlaceholder reports whether the message was created locally and has not
// been confirmed by the server.
func (m Message) IsPlaceholder() bool {
	return IsPlaceholderID(m.ID)
}

// IsPlaceholderID reports whether id carries the placeholder prefix.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Conversation holds the ordered, server-confirmed messages of one chat.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Messages []Message `json:"messages"`
}

// Clone returns a deep copy of the message slice so callers can mutate it freely.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := &Conversation{ID: c.ID, Title: c.Title}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return out
}
