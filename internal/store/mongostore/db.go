// Package mongostore keeps users, matches and messages as documents, one
// collection each.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	matchesCollection  = "matches"
	messagesCollection = "messages"
)

// Open connects to MongoDB and verifies the connection with a ping.
func Open(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(database), nil
}

// EnsureIndexes creates the indexes the repositories rely on. It is safe to
// run on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(matchesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId1", Value: 1}}},
		{Keys: bson.D{{Key: "userId2", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("match indexes: %w", err)
	}

	messages := db.Collection(messagesCollection)
	// Client ids used to be unique per conversation; they are now per sender.
	if _, err := messages.Indexes().DropOne(ctx, legacyClientIDIndex); err != nil && !isMissingIndex(err) {
		return fmt.Errorf("drop legacy client id index: %w", err)
	}

	_, err = messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "isRead", Value: 1}}},
		{
			Keys: bson.D{
				{Key: "conversationId", Value: 1},
				{Key: "senderId", Value: 1},
				{Key: "clientMessageId", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"clientMessageId": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("message indexes: %w", err)
	}
	return nil
}

const legacyClientIDIndex = "conversationId_1_clientMessageId_1"

// isMissingIndex reports IndexNotFound (27) and NamespaceNotFound (26), both
// of which mean there is nothing to drop.
func isMissingIndex(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 26 || cmdErr.Code == 27
	}
	return false
}
