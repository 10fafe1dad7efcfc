package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matchchat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, type,
	reply_to_message_id, client_message_id, created_at, is_read`

// Create takes a per-conversation advisory lock so the timestamp stays
// strictly increasing even with several writers.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, m.ConversationID); err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8,
			GREATEST(clock_timestamp(), COALESCE(MAX(created_at) + INTERVAL '1 microsecond', '-infinity')),
			FALSE
		FROM messages WHERE conversation_id = $2
		RETURNING created_at
	`, m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.Type,
		m.ReplyToMessageID, m.ClientMessageID).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.IsRead = false
	return nil
}

func (r *MessageRepo) GetByClientID(ctx context.Context, conversationID, senderID, clientMessageID string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND sender_id = $2 AND client_message_id = $3
	`, conversationID, senderID, clientMessageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message by client id: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) FindUnread(ctx context.Context, conversationID, receiverID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE
		ORDER BY created_at ASC
	`, conversationID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("find unread: %w", err)
	}
	return scanMessages(rows)
}

func (r *MessageRepo) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE WHERE id = ANY($1::text[]) AND is_read = FALSE`, ids,
	); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*domain.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before != nil {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND created_at < $2
			ORDER BY created_at DESC LIMIT $3
		`, conversationID, before.UTC(), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		`, conversationID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var replyTo, clientID sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type,
		&replyTo, &clientID, &m.CreatedAt, &m.IsRead); err != nil {
		return nil, err
	}
	if replyTo.Valid {
		m.ReplyToMessageID = &replyTo.String
	}
	if clientID.Valid {
		m.ClientMessageID = &clientID.String
	}
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
