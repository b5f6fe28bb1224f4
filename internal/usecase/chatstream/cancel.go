package chatstream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is the cancellation handle of one request.
type Token struct {
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Context is cancelled when the token is cancelled or released.
func (t *Token) Context() context.Context { return t.ctx }

// Gen is the request generation the token was issued for.
func (t *Token) Gen() uint64 { return t.gen }

// Cancelled reports whether Cancel was called. Actions observed after this
// returns true must be discarded.
func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Cancel marks the token and aborts its context. It is idempotent and
// reports whether this call did the cancelling.
func (t *Token) Cancel() bool {
	if t.cancelled.Swap(true) {
		return false
	}
	t.cancel()
	return true
}

// Controller issues one Token per request and cancels the current one on
// demand. Safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	gen     uint64
	current *Token
}

// Issue creates a token for a new request derived from parent. Any token
// still outstanding is cancelled first.
func (c *Controller) Issue(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	prev := c.current
	c.gen++
	tok := &Token{gen: c.gen, ctx: ctx, cancel: cancel}
	c.current = tok
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	return tok
}

// Cancel cancels the current token, if any. It reports whether a request
// was cancelled by this call.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	tok := c.current
	c.mu.Unlock()
	if tok == nil {
		return false
	}
	return tok.Cancel()
}

// Release retires tok once its request has finished. The token's context
// is freed without marking it cancelled.
func (c *Controller) Release(tok *Token) {
	c.mu.Lock()
	if c.current == tok {
		c.current = nil
	}
	c.mu.Unlock()
	tok.cancel()
}

// Active reports whether a token is outstanding.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Gen returns the generation of the most recently issued token.
func (c *Controller) Gen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}
