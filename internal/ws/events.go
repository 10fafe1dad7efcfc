package ws

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"matchchat/internal/domain"
)

// Inbound event names.
const (
	eventJoin          = "join_conversation"
	eventLeave         = "leave_conversation"
	eventSend          = "send_message"
	eventTypingStart   = "typing_start"
	eventTypingStop    = "typing_stop"
	eventMarkRead      = "mark_read"
	eventMarkReadAlias = "mark_messages_read"
	eventPing          = "ping"
	eventLogout        = "logout"
)

type roomRequest struct {
	ConversationID string `json:"conversationId"`
}

// sendRequest carries the message type as messageType because "type" names
// the event itself.
type sendRequest struct {
	ConversationID   string  `json:"conversationId"`
	Content          string  `json:"content"`
	MessageType      string  `json:"messageType"`
	ReplyToMessageID *string `json:"replyToMessageId"`
	ClientMessageID  *string `json:"clientMessageId"`
}

type errorEvent struct {
	Type   string `json:"type"`
	Event  string `json:"event,omitempty"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

type pongEvent struct {
	Type string `json:"type"`
}

// decodeEvent maps a generic JSON object onto a typed request. Numbers are
// accepted where strings are expected so numeric ids from older clients work.
func decodeEvent(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode event: %w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}
