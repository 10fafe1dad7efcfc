package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matchchat/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, user_id1, user_id2, last_message, last_message_at, has_unread, unread_count, created_at`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id1, user_id2, created_at)
		VALUES (?, ?, ?, ?)
	`, c.ID, c.UserID1, c.UserID2, toMicros(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id1 = ? OR user_id2 = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) UpdateSummary(ctx context.Context, id string, upd domain.SummaryUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message = ?,
		    last_message_at = ?,
		    unread_count = MAX(unread_count + ?, 0),
		    has_unread = (? AND MAX(unread_count + ?, 0) > 0)
		WHERE id = ?
	`, upd.LastMessage, toMicros(upd.LastMessageAt), upd.UnreadDelta,
		boolToInt(upd.HasUnread), upd.UnreadDelta, id)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) RecountUnread(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		UPDATE conversations
		SET unread_count = (SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND is_read = 0),
		    has_unread = (SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND is_read = 0) > 0
		WHERE id = ?
		RETURNING unread_count
	`, id, id, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("recount unread: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var lastAt sql.NullInt64
	var createdAt int64
	if err := row.Scan(
		&c.ID,
		&c.UserID1,
		&c.UserID2,
		&c.LastMessage,
		&lastAt,
		&c.HasUnread,
		&c.UnreadCount,
		&createdAt,
	); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := fromMicros(lastAt.Int64)
		c.LastMessageAt = &t
	}
	c.CreatedAt = fromMicros(createdAt)
	return c, nil
}
