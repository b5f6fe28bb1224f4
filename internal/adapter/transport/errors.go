package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chatstream/internal/domain"
)

// statusError maps a non-2xx response to a domain error. The detail is
// always "API Error: <code>", which is what the user sees.
func statusError(op string, status int) error {
	detail := fmt.Sprintf("API Error: %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewSubSystemError("transport", op, domain.ErrAuthInvalid, detail)
	case status == http.StatusNotFound:
		return domain.NewSubSystemError("transport", op, domain.ErrNotFound, detail)
	case status == http.StatusTooManyRequests:
		return domain.NewSubSystemError("transport", op, domain.ErrRateLimit, detail)
	default:
		return domain.NewSubSystemError("transport", op, domain.ErrUnexpectedStatus, detail)
	}
}

// tripsBreaker reports whether a failed open counts against the circuit.
// Client mistakes and cancellations say nothing about upstream health.
func tripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		switch de.Err {
		case domain.ErrAuthInvalid, domain.ErrNotFound, domain.ErrInvalidInput:
			return false
		}
	}
	return !errors.Is(err, context.Canceled)
}
