package service

import (
	"time"

	"matchchat/internal/domain"
)

// Outbound event names.
const (
	EventJoined       = "joined"
	EventLeft         = "left"
	EventNewMessage   = "new_message"
	EventMessageAck   = "message_ack"
	EventUserTyping   = "user_typing"
	EventMessagesRead = "messages_read"
	EventNotification = "notification"
	EventPresence     = "presence"
)

type RoomEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

type NewMessageEvent struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
}

type MessageAckEvent struct {
	Type            string  `json:"type"`
	ClientMessageID *string `json:"clientMessageId"`
	ID              string  `json:"id"`
	Degraded        bool    `json:"degraded"`
	Duplicate       bool    `json:"duplicate,omitempty"`
}

type TypingEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessagesReadEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Count          int    `json:"count"`
}

type NotificationEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type PresenceEvent struct {
	Type     string    `json:"type"`
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}
