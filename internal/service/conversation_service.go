package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"matchchat/internal/config"
	"matchchat/internal/domain"
	"matchchat/internal/security"
	"matchchat/internal/session"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ReadMarker clears a user's unread state in a conversation.
type ReadMarker interface {
	MarkRead(ctx context.Context, userID, conversationID string) (int, error)
}

// ConversationService authorizes participants and manages room membership.
type ConversationService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	sessions      *session.Store
	reads         ReadMarker
	encryptor     *security.Encryptor
	log           *zap.Logger

	JoinPolicy     string
	PersistTimeout time.Duration
}

func NewConversationService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	sessions *session.Store,
	reads ReadMarker,
	encryptor *security.Encryptor,
	log *zap.Logger,
) *ConversationService {
	return &ConversationService{
		conversations:  conversations,
		messages:       messages,
		sessions:       sessions,
		reads:          reads,
		encryptor:      encryptor,
		log:            log.Named("conversations"),
		JoinPolicy:     config.JoinPolicySwitch,
		PersistTimeout: 5 * time.Second,
	}
}

// Authorize loads the conversation and checks that userID is one of its two
// participants. It returns ErrNotFound or ErrUnauthorized on refusal.
func (s *ConversationService) Authorize(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id: %w", domain.ErrInvalidInput)
	}
	ctx, cancel := withTimeout(ctx, s.PersistTimeout)
	defer cancel()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr("load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrUnauthorized
	}
	return conv, nil
}

// Join authorizes the connection's user and makes conversationID its current
// room. Under the strict policy a connection must leave its current room
// first. A successful join clears the user's unread state; a failure there is
// logged and does not undo the join.
func (s *ConversationService) Join(ctx context.Context, conn *session.Conn, conversationID string) (*domain.Conversation, error) {
	conv, err := s.Authorize(ctx, conn.UserID, conversationID)
	if err != nil {
		return nil, err
	}

	if s.JoinPolicy == config.JoinPolicyStrict {
		if cur := s.sessions.CurrentRoom(conn); cur != "" && cur != conversationID {
			return nil, domain.ErrAlreadyInRoom
		}
	}
	if prev := s.sessions.Join(conn, conversationID); prev != "" {
		s.log.Debug("left previous room on join",
			zap.String("conn_id", conn.ID),
			zap.String("previous", prev),
			zap.String("conversation_id", conversationID),
		)
	}

	if _, err := s.reads.MarkRead(ctx, conn.UserID, conversationID); err != nil {
		s.log.Warn("mark read on join failed",
			zap.String("user_id", conn.UserID),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	return conv, nil
}

// Leave removes the connection from the room. It returns ErrNotInRoom when
// the connection had not joined it.
func (s *ConversationService) Leave(conn *session.Conn, conversationID string) error {
	if !s.sessions.Leave(conn, conversationID) {
		return domain.ErrNotInRoom
	}
	return nil
}

// ListForUser returns the user's matches, most recently active first.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	ctx, cancel := withTimeout(ctx, s.PersistTimeout)
	defer cancel()

	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	for _, c := range convs {
		if err := s.decryptSummary(c); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// Summary returns the conversation with its last message decrypted.
func (s *ConversationService) Summary(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	conv, err := s.Authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.decryptSummary(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationService) decryptSummary(c *domain.Conversation) error {
	if c.LastMessage == "" {
		return nil
	}
	plain, err := s.encryptor.Decrypt(c.LastMessage)
	if err != nil {
		return fmt.Errorf("decrypt last message of %s: %w", c.ID, err)
	}
	c.LastMessage = plain
	return nil
}

// History returns up to limit messages older than before, oldest first.
func (s *ConversationService) History(
	ctx context.Context,
	userID, conversationID string,
	before *time.Time,
	limit int,
) ([]*domain.Message, error) {
	if _, err := s.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	ctx, cancel := withTimeout(ctx, s.PersistTimeout)
	defer cancel()
	msgs, err := s.messages.ListForConversation(ctx, conversationID, before, limit)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	for _, m := range msgs {
		plain, err := s.encryptor.Decrypt(m.Content)
		if err != nil {
			return nil, fmt.Errorf("decrypt message %s: %w", m.ID, err)
		}
		m.Content = plain
	}
	return msgs, nil
}
