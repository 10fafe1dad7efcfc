package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"matchchat/internal/domain"
)

type MessageRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(messagesCollection), now: time.Now}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Create stamps the message one millisecond past the newest one in the
// conversation when the clock has not moved on. BSON dates carry
// millisecond precision.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	ts := r.now().UTC().Truncate(time.Millisecond)

	var last domain.Message
	err := r.coll.FindOne(ctx,
		bson.M{"conversationId": m.ConversationID},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetProjection(bson.M{"createdAt": 1}),
	).Decode(&last)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return fmt.Errorf("latest timestamp: %w", err)
	case !ts.After(last.CreatedAt):
		ts = last.CreatedAt.Add(time.Millisecond)
	}

	m.CreatedAt = ts
	m.IsRead = false
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByClientID(ctx context.Context, conversationID, senderID, clientMessageID string) (*domain.Message, error) {
	var m domain.Message
	err := r.coll.FindOne(ctx, bson.M{
		"conversationId":  conversationID,
		"senderId":        senderID,
		"clientMessageId": clientMessageID,
	}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message by client id: %w", err)
	}
	return &m, nil
}

func (r *MessageRepo) FindUnread(ctx context.Context, conversationID, receiverID string) ([]*domain.Message, error) {
	cur, err := r.coll.Find(ctx, bson.M{
		"conversationId": conversationID,
		"receiverId":     receiverID,
		"isRead":         false,
	}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find unread: %w", err)
	}
	var out []*domain.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*domain.Message, error) {
	filter := bson.M{"conversationId": conversationID}
	if before != nil {
		filter["createdAt"] = bson.M{"$lt": before.UTC()}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var out []*domain.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
