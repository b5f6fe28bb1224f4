package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"chatstream/internal/domain"
)

// CachingLoader loads conversations from the remote loader, refreshing the
// cache on success and falling back to the cache when the remote fails.
type CachingLoader struct {
	remote domain.ConversationLoader
	cache  *SQLiteStore
	logger *slog.Logger
}

// NewCachingLoader wraps remote with cache.
func NewCachingLoader(remote domain.ConversationLoader, cache *SQLiteStore, logger *slog.Logger) *CachingLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingLoader{remote: remote, cache: cache, logger: logger}
}

// LoadConversation implements domain.ConversationLoader.
func (l *CachingLoader) LoadConversation(ctx context.Context, chatID string) (*domain.Conversation, error) {
	conv, err := l.remote.LoadConversation(ctx, chatID)
	if err == nil {
		if serr := l.cache.SaveConversation(ctx, conv); serr != nil {
			l.logger.Warn("conversation cache refresh failed", "chat_id", chatID, "error", serr)
		}
		return conv, nil
	}

	// Auth failures and cancellation are not connectivity problems; stale
	// history would hide them.
	if ctx.Err() != nil || errors.Is(err, domain.ErrAuthInvalid) {
		return nil, err
	}

	cached, cerr := l.cache.LoadConversation(ctx, chatID)
	if cerr != nil {
		l.logger.Debug("no cached conversation", "chat_id", chatID, "error", cerr)
		return nil, err
	}
	l.logger.Warn("using cached conversation", "chat_id", chatID, "messages", len(cached.Messages), "error", err)
	return cached, nil
}

// Attach writes every completed exchange published on bus to cache. The
// returned function detaches it.
func Attach(bus domain.EventBus, cache *SQLiteStore, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return bus.Subscribe(domain.EventExchangeCompleted, func(ctx context.Context, ev domain.Event) {
		var p domain.ExchangeCompletedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logger.Warn("undecodable exchange event", "chat_id", ev.ChatID, "error", err)
			return
		}
		if err := cache.AppendExchange(ctx, ev.ChatID, p.UserMessage, p.AIMessage); err != nil {
			logger.Warn("caching exchange failed", "chat_id", ev.ChatID, "error", err)
			return
		}
		logger.Debug("exchange cached", "chat_id", ev.ChatID, "ai_message_id", p.AIMessage.ID)
	})
}

var _ domain.ConversationLoader = (*CachingLoader)(nil)
