package domain

import (
	"context"
	"time"
)

// UserRepository defines the user operations the chat core needs.
// Lookups of missing records return ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	SetOnlineStatus(ctx context.Context, id string, isOnline bool, lastSeen time.Time) error
}

// ConversationRepository defines persistence operations for matches.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)
	UpdateSummary(ctx context.Context, id string, upd SummaryUpdate) error
	// RecountUnread derives unread_count and has_unread from the stored
	// messages and returns the new count.
	RecountUnread(ctx context.Context, id string) (int, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Create assigns the ID (when empty) and a creation timestamp that is
	// strictly greater than any earlier message in the same conversation.
	Create(ctx context.Context, m *Message) error
	// GetByClientID finds a sender's message by its client-generated id.
	// Client ids are only unique per sender within a conversation.
	GetByClientID(ctx context.Context, conversationID, senderID, clientMessageID string) (*Message, error)
	FindUnread(ctx context.Context, conversationID, receiverID string) ([]*Message, error)
	MarkRead(ctx context.Context, ids []string) error
	// ListForConversation returns up to limit messages older than before
	// (all when before is nil), oldest first.
	ListForConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*Message, error)
}
