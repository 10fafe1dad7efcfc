package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"matchchat/internal/domain"
)

type MessageRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db, now: time.Now}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, type,
	reply_to_message_id, client_message_id, created_at, is_read`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE conversation_id = ?
	`, m.ConversationID).Scan(&last); err != nil {
		return fmt.Errorf("latest timestamp: %w", err)
	}
	ts := toMicros(r.now())
	if ts <= last {
		ts = last + 1
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.Type,
		m.ReplyToMessageID, m.ClientMessageID, ts); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.CreatedAt = fromMicros(ts)
	m.IsRead = false
	return nil
}

func (r *MessageRepo) GetByClientID(ctx context.Context, conversationID, senderID, clientMessageID string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND sender_id = ? AND client_message_id = ?
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
		WHERE conversation_id = ? AND receiver_id = ? AND is_read = 0
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
	query := `UPDATE messages SET is_read = 1 WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, toMicros(*before))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Reverse to chronological order (DB returns DESC)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var replyTo, clientID sql.NullString
	var createdAt int64
	if err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.Type,
		&replyTo,
		&clientID,
		&createdAt,
		&m.IsRead,
	); err != nil {
		return nil, err
	}
	if replyTo.Valid {
		m.ReplyToMessageID = &replyTo.String
	}
	if clientID.Valid {
		m.ClientMessageID = &clientID.String
	}
	m.CreatedAt = fromMicros(createdAt)
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
