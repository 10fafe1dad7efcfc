package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"matchchat/internal/domain"
	"matchchat/internal/push"
	"matchchat/internal/security"
	"matchchat/internal/session"
)

type SendInput struct {
	ConversationID   string
	Content          string
	Type             string
	ReplyToMessageID *string
	ClientMessageID  *string
}

// SendResult is the stored message with plaintext content. Degraded is set
// when the message was stored but the conversation summary was not updated.
// Duplicate is set when ClientMessageID matched an already stored message.
type SendResult struct {
	Message   *domain.Message
	Degraded  bool
	Duplicate bool
}

// MessageService validates, stores and fans out chat messages. All sends into
// one conversation run on that conversation's queue lane, so room members see
// messages in the order they were stored.
type MessageService struct {
	registry      *ConversationService
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	sessions      *session.Store
	queue         *ConversationQueue
	notifier      push.Notifier
	encryptor     *security.Encryptor
	log           *zap.Logger

	MaxMessageLength int
	PersistTimeout   time.Duration
}

func NewMessageService(
	registry *ConversationService,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	sessions *session.Store,
	queue *ConversationQueue,
	notifier push.Notifier,
	encryptor *security.Encryptor,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		registry:         registry,
		conversations:    conversations,
		messages:         messages,
		sessions:         sessions,
		queue:            queue,
		notifier:         notifier,
		encryptor:        encryptor,
		log:              log.Named("messages"),
		MaxMessageLength: 5000,
		PersistTimeout:   5 * time.Second,
	}
}

// Send stores a message from the connection's user into its current room,
// updates the conversation summary and broadcasts new_message to the room.
// When the receiver has no live connection the offline notifier is invoked;
// when they are connected elsewhere they get a notification instead.
func (s *MessageService) Send(ctx context.Context, conn *session.Conn, in SendInput) (*SendResult, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	if s.sessions.CurrentRoom(conn) != in.ConversationID {
		return nil, domain.ErrNotInRoom
	}

	var res *SendResult
	err := s.queue.Do(ctx, in.ConversationID, func(ctx context.Context) error {
		r, err := s.send(ctx, conn.UserID, in)
		res = r
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("send message: %w: %w", domain.ErrPersistence, err)
		}
		return nil, err
	}
	return res, nil
}

func (s *MessageService) validate(in *SendInput) error {
	if in.ConversationID == "" {
		return fmt.Errorf("conversation id: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("empty content: %w", domain.ErrInvalidInput)
	}
	if s.MaxMessageLength > 0 && utf8.RuneCountInString(in.Content) > s.MaxMessageLength {
		return fmt.Errorf("content longer than %d characters: %w", s.MaxMessageLength, domain.ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = domain.MessageTypeText
	}
	if in.ClientMessageID != nil && *in.ClientMessageID == "" {
		in.ClientMessageID = nil
	}
	return nil
}

// send runs on the conversation lane.
func (s *MessageService) send(ctx context.Context, senderID string, in SendInput) (*SendResult, error) {
	conv, err := s.registry.Authorize(ctx, senderID, in.ConversationID)
	if err != nil {
		return nil, err
	}

	if in.ClientMessageID != nil {
		dup, err := s.findDuplicate(ctx, senderID, in.ConversationID, *in.ClientMessageID)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			return &SendResult{Message: dup, Duplicate: true}, nil
		}
	}

	stored, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	msg := &domain.Message{
		ConversationID:   in.ConversationID,
		SenderID:         senderID,
		ReceiverID:       conv.OtherParticipant(senderID),
		Content:          stored,
		Type:             in.Type,
		ReplyToMessageID: in.ReplyToMessageID,
		ClientMessageID:  in.ClientMessageID,
	}

	pctx, cancel := withTimeout(ctx, s.PersistTimeout)
	defer cancel()
	if err := s.messages.Create(pctx, msg); err != nil {
		return nil, storeErr("create message", err)
	}

	res := &SendResult{Message: msg}
	err = s.conversations.UpdateSummary(pctx, in.ConversationID, domain.SummaryUpdate{
		LastMessage:   stored,
		LastMessageAt: msg.CreatedAt,
		HasUnread:     true,
		UnreadDelta:   1,
	})
	if err != nil {
		res.Degraded = true
		s.log.Warn("message stored but conversation summary is stale",
			zap.String("conversation_id", in.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}

	msg.Content = in.Content
	s.sessions.Broadcast(in.ConversationID, NewMessageEvent{Type: EventNewMessage, Message: msg}, nil)
	s.reachReceiver(msg)
	return res, nil
}

func (s *MessageService) findDuplicate(ctx context.Context, senderID, conversationID, clientID string) (*domain.Message, error) {
	ctx, cancel := withTimeout(ctx, s.PersistTimeout)
	defer cancel()

	m, err := s.messages.GetByClientID(ctx, conversationID, senderID, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("lookup client message id", err)
	}
	plain, err := s.encryptor.Decrypt(m.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypt message %s: %w", m.ID, err)
	}
	m.Content = plain
	return m, nil
}

func (s *MessageService) reachReceiver(msg *domain.Message) {
	receiver := msg.ReceiverID
	if s.sessions.InRoom(msg.ConversationID, receiver) {
		return
	}

	payload := push.Payload{
		Kind:           EventNewMessage,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Preview:        push.Preview(msg.Content),
		Timestamp:      msg.CreatedAt,
	}
	if s.sessions.IsOnline(receiver) {
		s.sessions.SendToUser(receiver, NotificationEvent{Type: EventNotification, Payload: payload})
		return
	}

	s.queue.Go(context.Background(), pushKey(receiver), func(ctx context.Context) {
		ctx, cancel := withTimeout(ctx, s.PersistTimeout)
		defer cancel()
		if err := s.notifier.PushOffline(ctx, receiver, payload); err != nil {
			s.log.Warn("offline push failed",
				zap.String("user_id", receiver),
				zap.String("message_id", payload.MessageID),
				zap.Error(err),
			)
		}
	})
}

// Offline pushes for one user run on their own lane so they stay off the
// conversation lane and are drained on shutdown.
func pushKey(userID string) string { return "push:" + userID }
