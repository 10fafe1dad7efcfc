package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Users
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT        PRIMARY KEY,
			name       TEXT        NOT NULL DEFAULT '',
			is_online  BOOLEAN     NOT NULL DEFAULT FALSE,
			last_seen  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Matches
		`CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT        PRIMARY KEY,
			user_id1        TEXT        NOT NULL REFERENCES users(id),
			user_id2        TEXT        NOT NULL REFERENCES users(id),
			last_message    TEXT        NOT NULL DEFAULT '',
			last_message_at TIMESTAMPTZ,
			has_unread      BOOLEAN     NOT NULL DEFAULT FALSE,
			unread_count    INTEGER     NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (user_id1 <> user_id2)
		)`,

		// Messages
		`CREATE TABLE IF NOT EXISTS messages (
			id                  TEXT        PRIMARY KEY,
			conversation_id     TEXT        NOT NULL REFERENCES conversations(id),
			sender_id           TEXT        NOT NULL REFERENCES users(id),
			receiver_id         TEXT        NOT NULL REFERENCES users(id),
			content             TEXT        NOT NULL,
			type                TEXT        NOT NULL DEFAULT 'text',
			reply_to_message_id TEXT,
			client_message_id   TEXT,
			created_at          TIMESTAMPTZ NOT NULL,
			is_read             BOOLEAN     NOT NULL DEFAULT FALSE
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations(user_id1)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations(user_id2)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, receiver_id) WHERE is_read = FALSE`,
		`DROP INDEX IF EXISTS idx_messages_client_id`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_sender_client_id
			ON messages(conversation_id, sender_id, client_message_id) WHERE client_message_id IS NOT NULL`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
