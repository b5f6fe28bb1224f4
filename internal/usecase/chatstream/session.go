package chatstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"chatstream/internal/adapter/sse"
	"chatstream/internal/domain"
	"chatstream/internal/infra/tracer"
)

const defaultReadBufferSize = 4096

// SessionDeps are the collaborators of a Session.
type SessionDeps struct {
	Transport domain.Transport
	Tokens    domain.TokenSource
	Loader    domain.ConversationLoader // optional; Load fails without it
	Renderer  domain.Renderer           // optional
	Bus       domain.EventBus           // optional
	Logger    *slog.Logger

	ProjectID      string
	UserID         string
	ReadBufferSize int
}

// Session drives send requests for one conversation. Send runs on the
// caller's goroutine and is the only writer of the conversation state;
// Cancel, Snapshot and DismissError may be called from any goroutine.
type Session struct {
	deps       SessionDeps
	dispatcher *Dispatcher
	cancels    Controller
	active     atomic.Bool

	mu      sync.Mutex
	machine *Machine
	loaded  bool
	chatID  string
}

// NewSession creates a session bound to chatID. The conversation starts
// empty until Load or SetConversation provides it.
func NewSession(chatID string, deps SessionDeps) (*Session, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Renderer == nil {
		deps.Renderer = nopRenderer{}
	}
	if deps.ReadBufferSize <= 0 {
		deps.ReadBufferSize = defaultReadBufferSize
	}
	d, err := NewDispatcher(deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Session{
		deps:       deps,
		dispatcher: d,
		machine:    NewMachine(&domain.Conversation{ID: chatID}),
		chatID:     chatID,
	}, nil
}

// Load fetches the conversation through the configured loader.
func (s *Session) Load(ctx context.Context) error {
	if s.deps.Loader == nil {
		return domain.NewSubSystemError("session", "Session.Load", domain.ErrInvalidInput, "no conversation loader")
	}
	conv, err := s.deps.Loader.LoadConversation(ctx, s.chatID)
	if err != nil {
		return domain.WrapOp("load conversation", err)
	}
	return s.SetConversation(conv)
}

// SetConversation installs committed messages. It fails with
// ErrRequestInFlight while a request is active.
func (s *Session) SetConversation(conv *domain.Conversation) error {
	s.mu.Lock()
	if err := s.machine.Reset(conv); err != nil {
		s.mu.Unlock()
		return err
	}
	s.loaded = true
	snap := s.machine.Snapshot()
	s.mu.Unlock()

	s.deps.Renderer.Render(snap)
	return nil
}

// Snapshot returns the current render state.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Snapshot()
}

// Busy reports whether a Send is in progress.
func (s *Session) Busy() bool { return s.active.Load() }

// Cancel abandons the in-flight request, if any. Safe to call repeatedly
// and from any goroutine.
func (s *Session) Cancel() bool {
	return s.cancels.Cancel()
}

// Close cancels any in-flight request.
func (s *Session) Close() {
	s.cancels.Cancel()
}

// DismissError clears the last surfaced failure.
func (s *Session) DismissError() {
	s.mu.Lock()
	s.machine.DismissError()
	snap := s.machine.Snapshot()
	s.mu.Unlock()
	s.deps.Renderer.Render(snap)
}

// Send submits content and consumes the response stream until it
// completes, fails or is cancelled. Cancellation returns nil.
func (s *Session) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return domain.NewSubSystemError("session", "Session.Send", domain.ErrInvalidInput, "message is empty")
	}
	if !s.active.CompareAndSwap(false, true) {
		return domain.ErrRequestInFlight
	}
	defer s.active.Store(false)

	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded || s.deps.UserID == "" {
		err := domain.NewSubSystemError("session", "Session.Send", domain.ErrInvalidInput, "Chat or user not found")
		s.mu.Lock()
		s.machine.SetError(err.Detail)
		snap := s.machine.Snapshot()
		s.mu.Unlock()
		s.deps.Renderer.Render(snap)
		s.deps.Renderer.FatalError(err.Detail)
		return err
	}

	tok := s.cancels.Issue(ctx)
	defer s.cancels.Release(tok)

	ctx, span := tracer.StartSpan(tok.Context(), "chatstream.send")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("chat.id", s.chatID),
		tracer.Int64Attr("request.gen", int64(tok.Gen())),
	)

	start := time.Now()
	placeholder := domain.Message{
		ID:        domain.PlaceholderPrefix + generateULID(start),
		ChatID:    s.chatID,
		Content:   content,
		Role:      domain.RoleUser,
		AuthorID:  s.deps.UserID,
		CreatedAt: start,
	}

	s.mu.Lock()
	err := s.machine.Begin(placeholder)
	snap := s.machine.Snapshot()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.deps.Renderer.Render(snap)
	s.publish(ctx, domain.NewEvent(domain.EventRequestStarted, s.chatID, domain.RequestStartedPayload{
		PlaceholderID: placeholder.ID,
		Content:       content,
	}))

	r := &run{s: s, tok: tok, start: start, placeholderID: placeholder.ID}
	err = r.stream(ctx, content)
	span.SetAttributes(tracer.DurationAttr("duration_ms", time.Since(start)))
	switch {
	case err == nil:
		span.SetAttributes(tracer.StringAttr("outcome", "completed"), tracer.IntAttr("tokens", r.tokens), tracer.IntAttr("skipped", r.skipped))
		tracer.SetOK(span)
		return nil
	case errors.Is(err, errCancelled):
		span.SetAttributes(tracer.StringAttr("outcome", "cancelled"), tracer.IntAttr("tokens", r.tokens), tracer.IntAttr("skipped", r.skipped))
		s.cancelled(ctx)
		return nil
	default:
		span.SetAttributes(tracer.StringAttr("outcome", "failed"), tracer.IntAttr("tokens", r.tokens), tracer.IntAttr("skipped", r.skipped))
		tracer.RecordError(span, err)
		s.fail(ctx, err)
		return err
	}
}

// errCancelled is internal; Send reports cancellation as success.
var errCancelled = errors.New("request cancelled")

// run holds the per-request counters of one Send.
type run struct {
	s             *Session
	tok           *Token
	start         time.Time
	placeholderID string
	tokens        int
	skipped       int
}

func (r *run) stream(ctx context.Context, content string) error {
	s := r.s

	token, err := s.deps.Tokens.Token(ctx)
	if err != nil {
		return r.classify(domain.WrapOp("acquire token", err))
	}

	body, err := s.deps.Transport.Open(ctx, domain.StreamRequest{
		ProjectID: s.deps.ProjectID,
		ChatID:    s.chatID,
		UserID:    s.deps.UserID,
		Token:     token,
		Content:   content,
	})
	if err != nil {
		return r.classify(domain.WrapOp("open stream", err))
	}
	defer body.Close()
	s.deps.Logger.Debug("stream opened", "chat_id", s.chatID, "placeholder_id", r.placeholderID)

	// Closing the body unblocks a pending Read even if the transport ignores
	// context cancellation.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	parser := sse.NewParser()
	buf := make([]byte, s.deps.ReadBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(buf[:n]) {
				done, err := r.handle(ctx, ev)
				if err != nil || done {
					return err
				}
			}
		}
		if readErr == nil {
			continue
		}
		if ctx.Err() != nil || r.tok.Cancelled() {
			return r.classify(readErr)
		}
		if errors.Is(readErr, io.EOF) {
			if dropped := parser.Discard(); dropped > 0 {
				s.deps.Logger.Warn("stream ended mid-frame", "chat_id", s.chatID, "dropped_bytes", dropped)
			}
			return domain.NewDomainError("Session.Send", domain.ErrStreamEnded, "")
		}
		return r.classify(domain.WrapOp("read stream", readErr))
	}
}

// handle dispatches and applies one framed event. It reports done once the
// exchange has completed.
func (r *run) handle(ctx context.Context, ev domain.FramedEvent) (bool, error) {
	s := r.s
	if r.tok.Cancelled() {
		return false, errCancelled
	}

	action, err := s.dispatcher.Dispatch(ev)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			r.skipped++
			s.deps.Logger.Warn("skipping malformed stream payload", "chat_id", s.chatID, "type", ev.Type, "error", err)
			s.publish(ctx, domain.NewEvent(domain.EventPayloadSkipped, s.chatID, domain.PayloadSkippedPayload{
				EventType: ev.Type,
				Reason:    err.Error(),
			}))
			return false, nil
		}
		return false, err
	}
	if action == nil {
		return false, nil
	}

	if f, ok := action.(domain.Failed); ok {
		return false, domain.NewDomainError("Stream.Error", domain.ErrStreamFailed, f.Message)
	}

	s.mu.Lock()
	if r.tok.Cancelled() {
		s.mu.Unlock()
		return false, errCancelled
	}
	before := s.machine.Phase()
	s.machine.Apply(action)
	after := s.machine.Phase()
	snap := s.machine.Snapshot()
	s.mu.Unlock()

	s.deps.Renderer.Render(snap)

	switch a := action.(type) {
	case domain.TokenAppend:
		r.tokens++
		if before == domain.PhaseSending && after == domain.PhaseStreaming {
			s.deps.Logger.Debug("first token", "chat_id", s.chatID, "latency", time.Since(r.start))
			s.publish(ctx, domain.NewEvent(domain.EventFirstToken, s.chatID, nil))
		}
	case domain.Completed:
		s.completed(ctx, a, time.Since(r.start))
		return true, nil
	}
	return false, nil
}

// classify turns a transport-level error into the cancellation sentinel
// when it was caused by the user abandoning the request.
func (r *run) classify(err error) error {
	if r.tok.Cancelled() {
		return errCancelled
	}
	cause := r.tok.Context().Err()
	if cause == nil {
		cause = err
	}
	switch {
	case errors.Is(cause, context.Canceled):
		return errCancelled
	case errors.Is(cause, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout):
		return domain.NewSubSystemError("transport", "Session.Send", domain.ErrTimeout, "request deadline exceeded")
	}
	return err
}

func (s *Session) completed(ctx context.Context, c domain.Completed, elapsed time.Duration) {
	s.deps.Logger.Info("exchange completed", "chat_id", s.chatID, "user_message_id", c.UserMessage.ID, "ai_message_id", c.AIMessage.ID, "duration", elapsed)
	if n, ok := s.deps.Renderer.(domain.SentNotifier); ok {
		n.Sent(c.UserMessage, c.AIMessage)
	}
	s.publish(ctx, domain.NewEvent(domain.EventExchangeCompleted, s.chatID, domain.ExchangeCompletedPayload{
		UserMessage: c.UserMessage,
		AIMessage:   c.AIMessage,
		Duration:    elapsed,
	}))
}

// fail is the single exit for fatal request errors: the machine rolls back,
// the Erroring state is rendered once, the error is surfaced, then Idle.
func (s *Session) fail(ctx context.Context, err error) {
	msg := domain.UserMessage(err)
	s.deps.Logger.Error("request failed", "chat_id", s.chatID, "code", domain.ErrorCodeOf(err), "error", err)

	s.mu.Lock()
	s.machine.Fail(msg)
	erroring := s.machine.Snapshot()
	s.machine.Settle()
	idle := s.machine.Snapshot()
	s.mu.Unlock()

	s.deps.Renderer.Render(erroring)
	s.deps.Renderer.FatalError(msg)
	s.deps.Renderer.Render(idle)

	s.publish(ctx, domain.NewEvent(domain.EventRequestFailed, s.chatID, domain.RequestFailedPayload{
		Error: msg,
		Code:  domain.ErrorCodeOf(err),
	}))
}

func (s *Session) cancelled(ctx context.Context) {
	s.deps.Logger.Info("request cancelled", "chat_id", s.chatID)

	s.mu.Lock()
	s.machine.Cancel()
	snap := s.machine.Snapshot()
	s.mu.Unlock()

	s.deps.Renderer.Render(snap)
	s.deps.Renderer.Cancelled()
	s.publish(ctx, domain.NewEvent(domain.EventRequestCancelled, s.chatID, nil))
}

// publish detaches ctx from cancellation: subscribers outlive the request.
func (s *Session) publish(ctx context.Context, ev domain.Event) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(context.WithoutCancel(ctx), ev)
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type nopRenderer struct{}

func (nopRenderer) Render(domain.Snapshot) {}
func (nopRenderer) FatalError(string)     {}
func (nopRenderer) Cancelled()            {}
