// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the TUI.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"chatstream/internal/adapter/tui/theme"
	"chatstream/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Connection Failed"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text (for debug)
}

// Render formats the FriendlyError for display in the TUI message list.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Domain sentinels first so errors.Is works through wrapping.
	{
		match:   isCode(domain.CodeMissingIdentity),
		produce: detailError("Chat Not Ready", []string{"Set auth.user_id or CHATSTREAM_AUTH_USER_ID", "Check that the chat id is correct"}),
	},
	{
		match:   is(domain.ErrAuthInvalid),
		produce: detailError("Authentication Failed", []string{"Check auth.token or CHATSTREAM_AUTH_TOKEN", "Verify the token hasn't expired"}),
	},
	{
		match:   isCode(domain.CodeChatNotFound),
		produce: detailError("Chat Not Found", []string{"Check the chat id", "Verify api.project_id in config"}),
	},
	{
		match:   isCode(domain.CodeCachedChatMissing),
		produce: detailError("Chat Not Cached", []string{"Connect to the service once so the chat can be cached"}),
	},
	{
		match:   is(domain.ErrRateLimit),
		produce: detailError("Rate Limited", []string{"Wait a moment before retrying", "Lower transport.rate_limit settings"}),
	},
	{
		match:   is(domain.ErrCircuitOpen),
		produce: detailError("Service Unavailable", []string{"Recent requests kept failing; wait for the breaker to reset", "Check the service status"}),
	},
	{
		match:   is(domain.ErrTimeout),
		produce: detailError("Request Timed Out", []string{"Check your network connection", "Increase api.resp_timeout in config"}),
	},
	{
		match:   is(domain.ErrStreamEnded),
		produce: detailError("Reply Interrupted", []string{"The connection closed before the reply finished; try again"}),
	},
	{
		match:   anyOf(domain.ErrInvalidCompletion, domain.ErrNoResponseBody),
		produce: detailError("Unexpected Server Reply", []string{"Try again", "Check that api.base_url points at the chat service"}),
	},
	{
		match:   is(domain.ErrStreamFailed),
		produce: detailError("Reply Failed", []string{"Try again"}),
	},
	{
		match:   is(domain.ErrUnexpectedStatus),
		produce: detailError("Request Rejected", []string{"Try again", "Run with logger.level=debug for details"}),
	},

	// Network / connectivity patterns (string matching for external errors).
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the chat service.", []string{"Check your internet connection", "Verify api.base_url in config"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with logger.level=debug for more details"},
		Raw:     err.Error(),
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func anyOf(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

func isCode(code domain.ErrorCode) func(error) bool {
	return func(err error) bool { return domain.ErrorCodeOf(err) == code }
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// detailError uses the text the session surfaced as the message.
func detailError(title string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: domain.UserMessage(err),
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
