package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN. SQLite has a single
// writer, so the pool is capped at one connection; this also keeps
// ":memory:" databases alive for the lifetime of the handle.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL. Timestamps are stored as unix microseconds so
// MAX() and ordering work without string parsing.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			is_online  INTEGER NOT NULL DEFAULT 0,
			last_seen  INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			user_id1        TEXT NOT NULL REFERENCES users(id),
			user_id2        TEXT NOT NULL REFERENCES users(id),
			last_message    TEXT NOT NULL DEFAULT '',
			last_message_at INTEGER,
			has_unread      INTEGER NOT NULL DEFAULT 0,
			unread_count    INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
			created_at      INTEGER NOT NULL DEFAULT 0,
			CHECK (user_id1 <> user_id2)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id                  TEXT PRIMARY KEY,
			conversation_id     TEXT NOT NULL REFERENCES conversations(id),
			sender_id           TEXT NOT NULL,
			receiver_id         TEXT NOT NULL,
			content             TEXT NOT NULL,
			type                TEXT NOT NULL DEFAULT 'text',
			reply_to_message_id TEXT,
			client_message_id   TEXT,
			created_at          INTEGER NOT NULL,
			is_read             INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations(user_id1);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations(user_id2);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, receiver_id, is_read);`,
		`DROP INDEX IF EXISTS idx_messages_client_id;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_sender_client_id
			ON messages(conversation_id, sender_id, client_message_id) WHERE client_message_id IS NOT NULL;`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
