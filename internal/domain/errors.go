package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
)

// Sentinel errors for the streaming exchange.
var (
	ErrRequestInFlight   = fmt.Errorf("a request is already in flight")
	ErrMalformedPayload  = fmt.Errorf("malformed event payload")
	ErrInvalidCompletion = fmt.Errorf("invalid completion payload")
	ErrStreamFailed      = fmt.Errorf("stream error")
	ErrStreamEnded       = fmt.Errorf("stream ended before completion")
	ErrUnexpectedStatus  = fmt.Errorf("unexpected response status")
	ErrNoResponseBody    = fmt.Errorf("no response body")
	ErrCircuitOpen       = fmt.Errorf("circuit open")
	ErrCacheStore        = fmt.Errorf("conversation cache failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Transport.Open")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "transport", "cache"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout)
}

// UserMessage returns the text surfaced to the user for a fatal request error.
// A DomainError detail wins over the sentinel text so server-provided
// messages and status lines reach the user unchanged.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		if de.Detail != "" {
			return de.Detail
		}
		return de.Err.Error()
	}
	return err.Error()
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeRequestInFlight   ErrorCode = "REQUEST_IN_FLIGHT"
	CodeMalformedPayload  ErrorCode = "MALFORMED_PAYLOAD"
	CodeInvalidCompletion ErrorCode = "INVALID_COMPLETION"
	CodeStreamFailed      ErrorCode = "STREAM_FAILED"
	CodeStreamEnded       ErrorCode = "STREAM_ENDED"
	CodeUnexpectedStatus  ErrorCode = "UNEXPECTED_STATUS"
	CodeNoResponseBody    ErrorCode = "NO_RESPONSE_BODY"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeCacheStore        ErrorCode = "CACHE_STORE"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeChatNotFound      ErrorCode = "CHAT_NOT_FOUND"
	CodeCachedChatMissing ErrorCode = "CACHED_CHAT_NOT_FOUND"
	CodeTransportTimeout  ErrorCode = "TRANSPORT_TIMEOUT"
	CodeMissingIdentity   ErrorCode = "MISSING_IDENTITY"

	// Category error codes. Fallback codes when no subsystem-specific code matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,
	ErrAuthInvalid:   CodeAuthInvalid,
	ErrRateLimit:     CodeRateLimit,
	ErrConfigLoad:    CodeConfigLoad,

	ErrRequestInFlight:   CodeRequestInFlight,
	ErrMalformedPayload:  CodeMalformedPayload,
	ErrInvalidCompletion: CodeInvalidCompletion,
	ErrStreamFailed:      CodeStreamFailed,
	ErrStreamEnded:       CodeStreamEnded,
	ErrUnexpectedStatus:  CodeUnexpectedStatus,
	ErrNoResponseBody:    CodeNoResponseBody,
	ErrCircuitOpen:       CodeCircuitOpen,
	ErrCacheStore:        CodeCacheStore,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"transport": CodeChatNotFound,
		"cache":     CodeCachedChatMissing,
	},
	ErrTimeout: {
		"transport": CodeTransportTimeout,
	},
	ErrInvalidInput: {
		"session": CodeMissingIdentity,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
