package domain

import "time"

// User is owned by the account service; the chat core only reads it and
// flips presence fields.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	IsOnline  bool      `json:"isOnline" bson:"isOnline"`
	LastSeen  time.Time `json:"lastSeen" bson:"lastSeen"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Conversation is a match between exactly two users.
type Conversation struct {
	ID            string     `json:"id" bson:"_id"`
	UserID1       string     `json:"userId1" bson:"userId1"`
	UserID2       string     `json:"userId2" bson:"userId2"`
	LastMessage   string     `json:"lastMessage" bson:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty" bson:"lastMessageAt,omitempty"`
	HasUnread     bool       `json:"hasUnreadMessages" bson:"hasUnreadMessages"`
	UnreadCount   int        `json:"unreadCount" bson:"unreadCount"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
}

// HasParticipant reports whether userID is one of the two matched users.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.UserID1 == userID || c.UserID2 == userID)
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.UserID1 == userID {
		return c.UserID2
	}
	return c.UserID1
}

const MessageTypeText = "text"

// Message represents a single chat message. Read flips false -> true only.
type Message struct {
	ID               string    `json:"id" bson:"_id"`
	ConversationID   string    `json:"conversationId" bson:"conversationId"`
	SenderID         string    `json:"senderId" bson:"senderId"`
	ReceiverID       string    `json:"receiverId" bson:"receiverId"`
	Content          string    `json:"content" bson:"content"` // encrypted at rest when a key is configured
	Type             string    `json:"type" bson:"type"`
	ReplyToMessageID *string   `json:"replyToMessageId,omitempty" bson:"replyToMessageId,omitempty"`
	ClientMessageID  *string   `json:"clientMessageId,omitempty" bson:"clientMessageId,omitempty"`
	CreatedAt        time.Time `json:"timestamp" bson:"createdAt"`
	IsRead           bool      `json:"isRead" bson:"isRead"`
}

// SummaryUpdate is applied to a conversation after a message is stored.
type SummaryUpdate struct {
	LastMessage   string
	LastMessageAt time.Time
	HasUnread     bool
	UnreadDelta   int
}
