package push

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier only records the notification. It is the default when no push
// backend is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) PushOffline(_ context.Context, userID string, p Payload) error {
	n.log.Info("offline notification",
		zap.String("user_id", userID),
		zap.String("conversation_id", p.ConversationID),
		zap.String("message_id", p.MessageID),
	)
	return nil
}
