package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"matchchat/internal/domain"
)

// Runs against the server named by TEST_MONGO_URI in a throwaway database.
func openTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, db, err := Open(ctx, uri, "matchchat_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoUnreadLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	convs := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	frozen := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	msgs.now = func() time.Time { return frozen }

	require.NoError(t, users.Create(ctx, &domain.User{ID: "a"}))
	require.NoError(t, users.Create(ctx, &domain.User{ID: "b"}))
	require.NoError(t, convs.Create(ctx, &domain.Conversation{ID: "c1", UserID1: "a", UserID2: "b"}))

	var prev time.Time
	for i := 0; i < 3; i++ {
		m := &domain.Message{ConversationID: "c1", SenderID: "a", ReceiverID: "b", Content: "x", Type: "text"}
		require.NoError(t, msgs.Create(ctx, m))
		assert.True(t, m.CreatedAt.After(prev))
		prev = m.CreatedAt
		require.NoError(t, convs.UpdateSummary(ctx, "c1", domain.SummaryUpdate{
			LastMessage: "x", LastMessageAt: m.CreatedAt, HasUnread: true, UnreadDelta: 1,
		}))
	}

	conv, err := convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, conv.UnreadCount)
	assert.True(t, conv.HasUnread)

	unread, err := msgs.FindUnread(ctx, "c1", "b")
	require.NoError(t, err)
	require.Len(t, unread, 3)
	require.NoError(t, msgs.MarkRead(ctx, []string{unread[0].ID, unread[1].ID, unread[2].ID}))
	n, err := convs.RecountUnread(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, convs.UpdateSummary(ctx, "c1", domain.SummaryUpdate{UnreadDelta: -5, HasUnread: true, LastMessageAt: frozen}))
	conv, err = convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.False(t, conv.HasUnread)

	require.NoError(t, users.SetOnlineStatus(ctx, "a", false, frozen))
	assert.ErrorIs(t, users.SetOnlineStatus(ctx, "zz", false, frozen), domain.ErrNotFound)
}
