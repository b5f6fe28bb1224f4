package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"chatstream/internal/domain"
)

const defaultMailboxSize = 64

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription owns a mailbox drained by a single goroutine, so each
// subscriber observes events in publish order.
type subscription struct {
	id      uint64
	handler domain.EventHandler
	mailbox chan delivery
	once    sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.mailbox) })
}

// Bus is an in-process, goroutine-safe event bus with per-subscriber
// ordered delivery.
type Bus struct {
	mu          sync.RWMutex
	typed       map[domain.EventType][]*subscription
	allSubs     []*subscription
	nextID      atomic.Uint64
	mailboxSize int
	logger      *slog.Logger
	wg          sync.WaitGroup
	closed      atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithMailboxSize sets how many undelivered events a subscriber may queue
// before Publish blocks.
func WithMailboxSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.mailboxSize = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		typed:       make(map[domain.EventType][]*subscription),
		mailboxSize: defaultMailboxSize,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish queues an event for matching typed subscribers and all-event
// subscribers. It blocks while a subscriber's mailbox is full, until ctx is
// done.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed.Load() {
		return
	}
	for _, sub := range b.typed[event.Type] {
		b.enqueue(ctx, event, sub)
	}
	for _, sub := range b.allSubs {
		b.enqueue(ctx, event, sub)
	}
}

func (b *Bus) enqueue(ctx context.Context, event domain.Event, sub *subscription) {
	select {
	case sub.mailbox <- delivery{ctx: ctx, event: event}:
	case <-ctx.Done():
		b.logger.Warn("event dropped", "event", string(event.Type), "subscription", sub.id, "error", ctx.Err())
	}
}

func (b *Bus) start(sub *subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for d := range sub.mailbox {
			b.invoke(sub, d)
		}
	}()
}

func (b *Bus) invoke(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"subscription", sub.id,
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

func (b *Bus) newSubscription(handler domain.EventHandler) *subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		mailbox: make(chan delivery, b.mailboxSize),
	}
	b.start(sub)
	return sub
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.typed[eventType] = remove(b.typed[eventType], sub.id)
		b.mu.Unlock()
		sub.close()
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.allSubs = remove(b.allSubs, sub.id)
		b.mu.Unlock()
		sub.close()
	}
}

func remove(subs []*subscription, id uint64) []*subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Close prevents new publishes, delivers everything already queued and
// waits for handlers to finish. Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, subs := range b.typed {
		for _, s := range subs {
			s.close()
		}
	}
	for _, s := range b.allSubs {
		s.close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
