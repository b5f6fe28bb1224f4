package uxerror

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"chatstream/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		title   string
		message string
	}{
		{
			name:    "missing identity",
			err:     domain.NewSubSystemError("session", "Session.Send", domain.ErrInvalidInput, "Chat or user not found"),
			title:   "Chat Not Ready",
			message: "Chat or user not found",
		},
		{
			name:    "auth",
			err:     fmt.Errorf("open stream: %w", domain.NewSubSystemError("transport", "Transport.Open", domain.ErrAuthInvalid, "API Error: 401")),
			title:   "Authentication Failed",
			message: "API Error: 401",
		},
		{
			name:  "chat not found",
			err:   domain.NewSubSystemError("transport", "Loader.LoadConversation", domain.ErrNotFound, "API Error: 404"),
			title: "Chat Not Found",
		},
		{
			name:  "cache miss",
			err:   domain.NewSubSystemError("cache", "Store.LoadConversation", domain.ErrNotFound, "chat c-1 is not cached"),
			title: "Chat Not Cached",
		},
		{
			name:    "stream error",
			err:     domain.NewDomainError("Stream.Error", domain.ErrStreamFailed, "model overloaded"),
			title:   "Reply Failed",
			message: "model overloaded",
		},
		{
			name:    "stream ended",
			err:     domain.NewDomainError("Session.Send", domain.ErrStreamEnded, ""),
			title:   "Reply Interrupted",
			message: "stream ended before completion",
		},
		{
			name:  "circuit open",
			err:   domain.ErrCircuitOpen,
			title: "Service Unavailable",
		},
		{
			name:    "connection refused",
			err:     errors.New("dial tcp 127.0.0.1:3000: connect: connection refused"),
			title:   "Connection Failed",
			message: "Could not reach the chat service.",
		},
		{
			name:    "fallback",
			err:     errors.New("something odd"),
			title:   "Unexpected Error",
			message: "something odd",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			if fe.Title != tt.title {
				t.Errorf("Title = %q, want %q", fe.Title, tt.title)
			}
			if tt.message != "" && fe.Message != tt.message {
				t.Errorf("Message = %q, want %q", fe.Message, tt.message)
			}
			if len(fe.Hints) == 0 {
				t.Error("expected at least one hint")
			}
		})
	}
}

func TestHumanizeNil(t *testing.T) {
	if got := Humanize(nil).Title; got != "Unknown Error" {
		t.Errorf("Title = %q", got)
	}
}

func TestRender(t *testing.T) {
	out := FriendlyError{Title: "T", Message: "m", Hints: []string{"a", "b"}}.Render()
	for _, want := range []string{"T\n  m", "Suggestions:", "a", "b"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in %q", want, out)
		}
	}
}
