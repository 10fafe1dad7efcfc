package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const conversationColumns = `id, user_id1, user_id2, last_message, last_message_at,
	has_unread, unread_count, created_at`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, user_id1, user_id2, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`, c.ID, c.UserID1, c.UserID2).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
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
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id1 = $1 OR user_id2 = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateSummary applies the delta and clamps the counter at zero. has_unread
// is only true while the resulting counter is positive.
func (r *ConversationRepo) UpdateSummary(ctx context.Context, id string, upd domain.SummaryUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			last_message    = $2,
			last_message_at = $3,
			unread_count    = GREATEST(unread_count + $4, 0),
			has_unread      = ($5 AND GREATEST(unread_count + $4, 0) > 0)
		WHERE id = $1
	`, id, upd.LastMessage, upd.LastMessageAt.UTC(), upd.UnreadDelta, upd.HasUnread)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) RecountUnread(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE conversations c SET
			unread_count = sub.n,
			has_unread   = sub.n > 0
		FROM (
			SELECT COUNT(*) AS n FROM messages
			WHERE conversation_id = $1 AND is_read = FALSE
		) sub
		WHERE c.id = $1
		RETURNING c.unread_count
	`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("recount unread: %w", err)
	}
	return n, nil
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var lastAt sql.NullTime
	if err := row.Scan(&c.ID, &c.UserID1, &c.UserID2, &c.LastMessage, &lastAt,
		&c.HasUnread, &c.UnreadCount, &c.CreatedAt); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		c.LastMessageAt = &t
	}
	return c, nil
}
