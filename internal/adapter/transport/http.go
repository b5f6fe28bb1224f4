package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/infra/tracer"
)

const opOpen = "Transport.Open"

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// HTTPTransport opens the message stream endpoint:
//
//	POST {base}/api/projects/{project}/chats/{chat}/messages/stream
//
// The token and user id travel as query parameters and the token also as a
// bearer header. Opens pass through an optional rate limiter and circuit
// breaker; once the body is handed out, stream errors no longer count
// against the breaker.
type HTTPTransport struct {
	client     *http.Client
	base       *url.URL
	tokenParam string
	userParam  string
	breaker    *gobreaker.CircuitBreaker[io.ReadCloser]
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewHTTPTransport builds a transport for api, guarded as configured.
func NewHTTPTransport(client *http.Client, api config.APIConfig, guard config.TransportConfig, logger *slog.Logger) (*HTTPTransport, error) {
	base, err := url.Parse(api.BaseURL)
	if err != nil || base.Host == "" {
		return nil, domain.NewSubSystemError("transport", "NewHTTPTransport", domain.ErrInvalidInput, fmt.Sprintf("bad base url %q", api.BaseURL))
	}
	if client == nil {
		client = NewHTTPClient(api)
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &HTTPTransport{
		client:     client,
		base:       base,
		tokenParam: api.TokenParam,
		userParam:  api.UserParam,
		logger:     logger,
	}
	if guard.CircuitBreaker.Enabled {
		t.breaker = newBreaker(guard.CircuitBreaker, logger)
	}
	if rl := guard.RateLimit; rl.Enabled {
		t.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), rl.Burst)
	}
	return t, nil
}

func newBreaker(cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[io.ReadCloser] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return gobreaker.NewCircuitBreaker[io.ReadCloser](gobreaker.Settings{
		Name:        "chat-stream",
		MaxRequests: 1, // one probe while half-open
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
	})
}

// Open implements domain.Transport.
func (t *HTTPTransport) Open(ctx context.Context, req domain.StreamRequest) (io.ReadCloser, error) {
	requestID := uuid.NewString()
	ctx, span := tracer.StartSpan(ctx, "transport.open")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("chat.id", req.ChatID),
		tracer.StringAttr("request.id", requestID),
	)

	body, err := t.guardedOpen(ctx, req, requestID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return body, nil
}

func (t *HTTPTransport) guardedOpen(ctx context.Context, req domain.StreamRequest, requestID string) (io.ReadCloser, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, domain.NewSubSystemError("transport", opOpen, domain.ErrRateLimit, "sending too fast, try again shortly")
		}
	}

	if t.breaker == nil {
		return t.open(ctx, req, requestID)
	}
	body, err := t.breaker.Execute(func() (io.ReadCloser, error) {
		return t.open(ctx, req, requestID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewSubSystemError("transport", opOpen, domain.ErrCircuitOpen, "chat service unavailable, try again shortly")
	}
	return body, err
}

type streamBody struct {
	Content string `json:"content"`
}

func (t *HTTPTransport) open(ctx context.Context, req domain.StreamRequest, requestID string) (io.ReadCloser, error) {
	if req.ProjectID == "" || req.ChatID == "" {
		return nil, domain.NewSubSystemError("transport", opOpen, domain.ErrInvalidInput, "project and chat ids are required")
	}

	payload, err := json.Marshal(streamBody{Content: req.Content})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.streamURL(req), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	t.logger.Debug("stream response",
		"chat_id", req.ChatID,
		"request_id", requestID,
		"status", resp.StatusCode,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, statusError(opOpen, resp.StatusCode)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, domain.NewSubSystemError("transport", opOpen, domain.ErrNoResponseBody, "")
	}
	return resp.Body, nil
}

func (t *HTTPTransport) streamURL(req domain.StreamRequest) string {
	u := t.base.JoinPath("api", "projects", url.PathEscape(req.ProjectID), "chats", url.PathEscape(req.ChatID), "messages", "stream")
	q := u.Query()
	q.Set(t.tokenParam, req.Token)
	q.Set(t.userParam, req.UserID)
	u.RawQuery = q.Encode()
	return u.String()
}

// State returns the breaker state, or closed when no breaker is configured.
func (t *HTTPTransport) State() gobreaker.State {
	if t.breaker == nil {
		return gobreaker.StateClosed
	}
	return t.breaker.State()
}

var _ domain.Transport = (*HTTPTransport)(nil)
