package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchchat/internal/domain"
	"matchchat/internal/session"
)

// PresenceService relays typing signals, direct notifications and
// online/offline transitions. Presence writes are fire-and-forget; their
// failures are logged and never reach the connection.
type PresenceService struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	sessions      *session.Store
	queue         *ConversationQueue
	log           *zap.Logger
	now           func() time.Time

	PersistTimeout time.Duration
}

func NewPresenceService(
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	sessions *session.Store,
	queue *ConversationQueue,
	log *zap.Logger,
) *PresenceService {
	return &PresenceService{
		users:          users,
		conversations:  conversations,
		sessions:       sessions,
		queue:          queue,
		log:            log.Named("presence"),
		now:            time.Now,
		PersistTimeout: 5 * time.Second,
	}
}

// BroadcastTyping relays a typing signal to the other members of the room.
// The connection must have joined conversationID.
func (s *PresenceService) BroadcastTyping(_ context.Context, conn *session.Conn, conversationID string, isTyping bool) error {
	if conversationID == "" || s.sessions.CurrentRoom(conn) != conversationID {
		return domain.ErrNotInRoom
	}
	s.sessions.BroadcastExceptUser(conversationID, TypingEvent{
		Type:           EventUserTyping,
		ConversationID: conversationID,
		UserID:         conn.UserID,
		IsTyping:       isTyping,
	}, conn.UserID)
	return nil
}

// Notify delivers payload to every live connection of userID and returns how
// many received it. Zero connections is not an error.
func (s *PresenceService) Notify(userID string, payload any) int {
	return s.sessions.SendToUser(userID, NotificationEvent{Type: EventNotification, Payload: payload})
}

// Connected marks the user online in the background.
func (s *PresenceService) Connected(conn *session.Conn) {
	userID := conn.UserID
	s.queue.Go(context.Background(), presenceKey(userID), func(ctx context.Context) {
		s.transition(ctx, userID, true)
	})
}

// Disconnected marks the user offline in the background once their last
// connection is gone. remaining is the count left after removal.
func (s *PresenceService) Disconnected(userID string, remaining int) {
	if remaining > 0 {
		return
	}
	s.queue.Go(context.Background(), presenceKey(userID), func(ctx context.Context) {
		// A reconnect may have landed while this job was queued.
		if s.sessions.IsOnline(userID) {
			return
		}
		s.transition(ctx, userID, false)
	})
}

func (s *PresenceService) transition(ctx context.Context, userID string, online bool) {
	ctx, cancel := withTimeout(ctx, s.PersistTimeout)
	defer cancel()

	seen := s.now()
	if err := s.users.SetOnlineStatus(ctx, userID, online, seen); err != nil {
		s.log.Warn("presence update failed",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}

	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		s.log.Warn("list conversations for presence failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	ev := PresenceEvent{Type: EventPresence, UserID: userID, Online: online, LastSeen: seen}
	notified := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		other := c.OtherParticipant(userID)
		if _, ok := notified[other]; ok {
			continue
		}
		notified[other] = struct{}{}
		s.sessions.SendToUser(other, ev)
	}
}

func presenceKey(userID string) string { return "presence:" + userID }
