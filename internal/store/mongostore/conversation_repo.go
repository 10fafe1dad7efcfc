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

type ConversationRepo struct {
	coll     *mongo.Collection
	messages *mongo.Collection
}

func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		coll:     db.Collection(matchesCollection),
		messages: db.Collection(messagesCollection),
	}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.UserID1 == c.UserID2 {
		return fmt.Errorf("conversation needs two distinct users: %w", domain.ErrInvalidInput)
	}
	c.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	filter := bson.M{"$or": bson.A{bson.M{"userId1": userID}, bson.M{"userId2": userID}}}
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "createdAt", Value: -1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var out []*domain.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return out, nil
}

// UpdateSummary runs as a pipeline update so the clamped counter and the
// unread flag are computed from the same stored value.
func (r *ConversationRepo) UpdateSummary(ctx context.Context, id string, upd domain.SummaryUpdate) error {
	count := bson.M{"$max": bson.A{0, bson.M{"$add": bson.A{"$unreadCount", upd.UnreadDelta}}}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "lastMessage", Value: upd.LastMessage},
			{Key: "lastMessageAt", Value: upd.LastMessageAt.UTC()},
			{Key: "unreadCount", Value: count},
			{Key: "hasUnreadMessages", Value: bson.M{"$and": bson.A{upd.HasUnread, bson.M{"$gt": bson.A{count, 0}}}}},
		}}},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecountUnread is a count followed by a write. Callers serialize mutations
// per conversation, which keeps the pair consistent.
func (r *ConversationRepo) RecountUnread(ctx context.Context, id string) (int, error) {
	n, err := r.messages.CountDocuments(ctx, bson.M{"conversationId": id, "isRead": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"unreadCount": n, "hasUnreadMessages": n > 0},
	})
	if err != nil {
		return 0, fmt.Errorf("recount unread: %w", err)
	}
	if res.MatchedCount == 0 {
		return 0, domain.ErrNotFound
	}
	return int(n), nil
}
