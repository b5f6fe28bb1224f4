// Package store keeps a local SQLite copy of conversations so history stays
// readable when the chat service is unreachable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatstream/internal/domain"
)

// SQLiteStore implements a conversation cache using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the cache database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// A single connection serialises writers; the cache is never hot.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		chat_id    TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		author_id  TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		citations  TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_seq ON messages(chat_id, seq)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveConversation replaces the cached copy of conv. Placeholder messages
// are never stored.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == "" {
		return domain.NewSubSystemError("cache", "Store.SaveConversation", domain.ErrInvalidInput, "conversation id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cacheErr("Store.SaveConversation", err)
	}
	defer tx.Rollback()

	if err := upsertChat(ctx, tx, conv.ID, conv.Title); err != nil {
		return cacheErr("Store.SaveConversation", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", conv.ID); err != nil {
		return cacheErr("Store.SaveConversation", err)
	}
	seq := 0
	for _, m := range conv.Messages {
		if m.IsPlaceholder() {
			continue
		}
		if err := upsertMessage(ctx, tx, conv.ID, seq, m); err != nil {
			return cacheErr("Store.SaveConversation", err)
		}
		seq++
	}
	if err := tx.Commit(); err != nil {
		return cacheErr("Store.SaveConversation", err)
	}
	return nil
}

// AppendExchange adds a completed exchange to the end of the cached chat.
// Messages already present keep their position and take the new content.
func (s *SQLiteStore) AppendExchange(ctx context.Context, chatID string, msgs ...domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cacheErr("Store.AppendExchange", err)
	}
	defer tx.Rollback()

	if err := upsertChat(ctx, tx, chatID, ""); err != nil {
		return cacheErr("Store.AppendExchange", err)
	}
	var next int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq) + 1, 0) FROM messages WHERE chat_id = ?", chatID).Scan(&next); err != nil {
		return cacheErr("Store.AppendExchange", err)
	}
	for _, m := range msgs {
		if m.IsPlaceholder() || m.ID == "" {
			continue
		}
		if err := upsertMessage(ctx, tx, chatID, next, m); err != nil {
			return cacheErr("Store.AppendExchange", err)
		}
		next++
	}
	if err := tx.Commit(); err != nil {
		return cacheErr("Store.AppendExchange", err)
	}
	return nil
}

// LoadConversation implements domain.ConversationLoader from the cache.
func (s *SQLiteStore) LoadConversation(ctx context.Context, chatID string) (*domain.Conversation, error) {
	conv := &domain.Conversation{ID: chatID}
	err := s.db.QueryRowContext(ctx, "SELECT title FROM chats WHERE id = ?", chatID).Scan(&conv.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("cache", "Store.LoadConversation", domain.ErrNotFound, "chat "+chatID+" is not cached")
	}
	if err != nil {
		return nil, cacheErr("Store.LoadConversation", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, content, author_id, created_at, citations FROM messages WHERE chat_id = ? ORDER BY seq",
		chatID,
	)
	if err != nil {
		return nil, cacheErr("Store.LoadConversation", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := domain.Message{ChatID: chatID}
		var createdAt, citations string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.AuthorID, &createdAt, &citations); err != nil {
			return nil, cacheErr("Store.LoadConversation", err)
		}
		if createdAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
				m.CreatedAt = t
			}
		}
		if citations != "" && citations != "null" {
			if err := json.Unmarshal([]byte(citations), &m.Citations); err != nil {
				return nil, cacheErr("Store.LoadConversation", fmt.Errorf("decode citations of %s: %w", m.ID, err))
			}
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("Store.LoadConversation", err)
	}
	return conv, nil
}

func upsertChat(ctx context.Context, tx *sql.Tx, id, title string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, title, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title = '' THEN chats.title ELSE excluded.title END,
			updated_at = excluded.updated_at`,
		id, title, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func upsertMessage(ctx context.Context, tx *sql.Tx, chatID string, seq int, m domain.Message) error {
	citations, err := json.Marshal(m.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	createdAt := ""
	if !m.CreatedAt.IsZero() {
		createdAt = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, seq, role, content, author_id, created_at, citations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			content = excluded.content,
			author_id = excluded.author_id,
			created_at = excluded.created_at,
			citations = excluded.citations`,
		m.ID, chatID, seq, m.Role, m.Content, m.AuthorID, createdAt, string(citations),
	)
	return err
}

func cacheErr(op string, err error) error {
	return domain.NewSubSystemError("cache", op, domain.ErrCacheStore, err.Error())
}
