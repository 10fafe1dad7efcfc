package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchchat/internal/domain"
	"matchchat/internal/session"
)

// ReadService flips unread messages to read and keeps the conversation's
// unread counter in step with message state.
type ReadService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	sessions      *session.Store
	queue         *ConversationQueue
	log           *zap.Logger

	PersistTimeout time.Duration
}

func NewReadService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	sessions *session.Store,
	queue *ConversationQueue,
	log *zap.Logger,
) *ReadService {
	return &ReadService{
		conversations:  conversations,
		messages:       messages,
		sessions:       sessions,
		queue:          queue,
		log:            log.Named("reads"),
		PersistTimeout: 5 * time.Second,
	}
}

// MarkRead marks every message addressed to userID that is unread at scan
// time and recounts the conversation's unread state. It returns how many
// messages were flipped. Calling it with nothing unread is a no-op.
func (s *ReadService) MarkRead(ctx context.Context, userID, conversationID string) (int, error) {
	var marked int
	err := s.queue.Do(ctx, conversationID, func(ctx context.Context) error {
		n, err := s.markRead(ctx, userID, conversationID)
		marked = n
		return err
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		s.sessions.Broadcast(conversationID, MessagesReadEvent{
			Type:           EventMessagesRead,
			ConversationID: conversationID,
			UserID:         userID,
			Count:          marked,
		}, nil)
	}
	return marked, nil
}

func (s *ReadService) markRead(ctx context.Context, userID, conversationID string) (int, error) {
	ctx, cancel := withTimeout(ctx, s.PersistTimeout)
	defer cancel()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return 0, storeErr("load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return 0, domain.ErrUnauthorized
	}

	unread, err := s.messages.FindUnread(ctx, conversationID, userID)
	if err != nil {
		return 0, storeErr("find unread", err)
	}
	if len(unread) == 0 && conv.UnreadCount == 0 && !conv.HasUnread {
		return 0, nil
	}

	ids := make([]string, 0, len(unread))
	for _, m := range unread {
		ids = append(ids, m.ID)
	}
	if len(ids) > 0 {
		if err := s.messages.MarkRead(ctx, ids); err != nil {
			return 0, storeErr("mark read", err)
		}
	}

	count, err := s.conversations.RecountUnread(ctx, conversationID)
	if err != nil {
		// The messages are already read; the counter is repaired by the next recount.
		s.log.Warn("recount unread failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return len(ids), nil
	}
	s.log.Debug("messages marked read",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
		zap.Int("marked", len(ids)),
		zap.Int("unread_left", count),
	)
	return len(ids), nil
}
