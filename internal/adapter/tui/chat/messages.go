// Package chat implements the interactive Bubble Tea front end for a chat
// session.
package chat

import "chatstream/internal/domain"

// SnapshotMsg carries a session render callback into the update loop.
type SnapshotMsg struct {
	Snapshot domain.Snapshot
}

// FatalMsg carries a surfaced request failure.
type FatalMsg struct {
	Message string
}

// CancelledMsg signals that the in-flight request was abandoned.
type CancelledMsg struct{}

// SentMsg signals a completed exchange.
type SentMsg struct {
	User domain.Message
	AI   domain.Message
}

// SendDoneMsg signals that the Send goroutine returned.
type SendDoneMsg struct {
	Err error
}

// LoadedMsg signals that the conversation load finished.
type LoadedMsg struct {
	Err error
}

// QuitMsg signals the program to exit.
type QuitMsg struct{}
