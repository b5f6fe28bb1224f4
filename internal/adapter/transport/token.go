package transport

import (
	"context"

	"chatstream/internal/domain"
)

// StaticTokenSource hands out a fixed session token.
type StaticTokenSource string

// Token implements domain.TokenSource. An empty token is an auth failure.
func (s StaticTokenSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", domain.NewSubSystemError("transport", "TokenSource.Token", domain.ErrAuthInvalid, "no session token configured")
	}
	return string(s), nil
}

var _ domain.TokenSource = StaticTokenSource("")
