package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/infra/tracer"
)

const (
	opLoad          = "Loader.LoadConversation"
	maxHistoryBody  = 10 * 1024 * 1024 // 10 MB
	defaultLoadTime = 30 * time.Second
)

// HTTPLoader fetches committed messages from GET {base}/api/chats/{id}.
// The server wraps the conversation in a {"data": ...} envelope.
type HTTPLoader struct {
	client     *http.Client
	base       *url.URL
	tokens     domain.TokenSource
	tokenParam string
	userParam  string
	userID     string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewHTTPLoader creates a loader sharing client with the stream transport.
func NewHTTPLoader(client *http.Client, api config.APIConfig, tokens domain.TokenSource, userID string, logger *slog.Logger) (*HTTPLoader, error) {
	base, err := url.Parse(api.BaseURL)
	if err != nil || base.Host == "" {
		return nil, domain.NewSubSystemError("transport", "NewHTTPLoader", domain.ErrInvalidInput, fmt.Sprintf("bad base url %q", api.BaseURL))
	}
	if client == nil {
		client = NewHTTPClient(api)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := api.RequestTimeout
	if timeout <= 0 {
		timeout = defaultLoadTime
	}
	return &HTTPLoader{
		client:     client,
		base:       base,
		tokens:     tokens,
		tokenParam: api.TokenParam,
		userParam:  api.UserParam,
		userID:     userID,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

type conversationEnvelope struct {
	Data *domain.Conversation `json:"data"`
}

// LoadConversation implements domain.ConversationLoader.
func (l *HTTPLoader) LoadConversation(ctx context.Context, chatID string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	ctx, span := tracer.StartSpan(ctx, "transport.load")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("chat.id", chatID))

	conv, err := l.load(ctx, chatID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("messages", len(conv.Messages)))
	tracer.SetOK(span)
	return conv, nil
}

func (l *HTTPLoader) load(ctx context.Context, chatID string) (*domain.Conversation, error) {
	if chatID == "" {
		return nil, domain.NewSubSystemError("transport", opLoad, domain.ErrInvalidInput, "chat id is required")
	}

	token := ""
	if l.tokens != nil {
		var err error
		if token, err = l.tokens.Token(ctx); err != nil {
			return nil, domain.WrapOp("acquire token", err)
		}
	}

	u := l.base.JoinPath("api", "chats", url.PathEscape(chatID))
	q := u.Query()
	if token != "" {
		q.Set(l.tokenParam, token)
	}
	if l.userID != "" {
		q.Set(l.userParam, l.userID)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, domain.NewSubSystemError("transport", opLoad, domain.ErrTimeout, "loading chat timed out")
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(opLoad, resp.StatusCode)
	}

	var env conversationEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxHistoryBody)).Decode(&env); err != nil {
		return nil, domain.NewSubSystemError("transport", opLoad, domain.ErrMalformedPayload, err.Error())
	}
	if env.Data == nil {
		return nil, domain.NewSubSystemError("transport", opLoad, domain.ErrNotFound, "chat not found")
	}

	conv := env.Data
	if conv.ID == "" {
		conv.ID = chatID
	}
	l.logger.Debug("conversation loaded", "chat_id", chatID, "messages", len(conv.Messages))
	return conv, nil
}

var _ domain.ConversationLoader = (*HTTPLoader)(nil)
