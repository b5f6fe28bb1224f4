package main

import (
	"context"
	"fmt"
	"log/slog"

	"chatstream/internal/adapter/store"
	"chatstream/internal/adapter/transport"
	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/infra/logger"
	"chatstream/internal/infra/tracer"
	"chatstream/internal/usecase/chatstream"
	"chatstream/internal/usecase/eventbus"
)

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	bus       *eventbus.Bus
	transport *transport.HTTPTransport
	loader    domain.ConversationLoader
	cache     *store.SQLiteStore // nil when the cache is disabled

	closers []func()
}

type appOptions struct {
	// quiet silences console logging so it cannot corrupt the full-screen UI.
	quiet bool
}

// newApp wires config, logging, tracing, transport, cache and event bus.
func newApp(ctx context.Context, opts *rootOptions, ao appOptions) (*app, error) {
	// 1. Config
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logger.Level = opts.logLevel
	}
	if ao.quiet && isConsole(cfg.Logger.Output) {
		cfg.Logger.Output = "discard"
	}

	a := &app{cfg: cfg}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() { _ = tracerShutdown(context.Background()) })

	// 3. Event bus
	a.bus = eventbus.New(log)
	a.closers = append(a.closers, a.bus.Close)

	// 4. Transport
	client := transport.NewHTTPClient(cfg.API)
	a.transport, err = transport.NewHTTPTransport(client, cfg.API, cfg.Transport, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}
	remote, err := transport.NewHTTPLoader(client, cfg.API, a.tokens(), cfg.Auth.UserID, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loader: %w", err)
	}
	a.loader = remote

	// 5. Cache
	if cfg.Cache.Enabled {
		cache, err := store.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("cache: %w", err)
		}
		a.cache = cache
		a.loader = store.NewCachingLoader(remote, cache, log)
		detach := store.Attach(a.bus, cache, log)
		// Detach and close run after the bus has drained.
		a.closers = append([]func(){func() { _ = cache.Close() }, detach}, a.closers...)
	}

	log.Debug("chatstream ready",
		"base_url", cfg.API.BaseURL,
		"project", cfg.API.ProjectID,
		"cache", cfg.Cache.Enabled,
		"breaker", cfg.Transport.CircuitBreaker.Enabled,
		"rate_limit", cfg.Transport.RateLimit.Enabled,
	)
	return a, nil
}

func (a *app) tokens() domain.TokenSource {
	return transport.StaticTokenSource(a.cfg.Auth.Token)
}

// newSession creates a session for chatID that reports to r.
func (a *app) newSession(chatID string, r domain.Renderer) (*chatstream.Session, error) {
	return chatstream.NewSession(chatID, chatstream.SessionDeps{
		Transport:      a.transport,
		Tokens:         a.tokens(),
		Loader:         a.loader,
		Renderer:       r,
		Bus:            a.bus,
		Logger:         a.log,
		ProjectID:      a.cfg.API.ProjectID,
		UserID:         a.cfg.Auth.UserID,
		ReadBufferSize: a.cfg.Stream.ReadBufferSize,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func isConsole(output string) bool {
	switch output {
	case "", "stderr", "stdout":
		return true
	}
	return false
}
