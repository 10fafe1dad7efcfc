package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchchat/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func seedMatch(t *testing.T, db *sql.DB) *domain.Conversation {
	t.Helper()
	ctx := context.Background()
	users := NewUserRepo(db)
	require.NoError(t, users.Create(ctx, &domain.User{ID: "alice", Name: "Alice"}))
	require.NoError(t, users.Create(ctx, &domain.User{ID: "bob", Name: "Bob"}))
	conv := &domain.Conversation{ID: "c1", UserID1: "alice", UserID2: "bob"}
	require.NoError(t, NewConversationRepo(db).Create(ctx, conv))
	return conv
}

func TestUserRepo(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Create(ctx, &domain.User{ID: "alice", Name: "Alice"}))
	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SetOnlineStatus(ctx, "alice", false, seen))

	u, err := repo.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, u.IsOnline)
	assert.True(t, seen.Equal(u.LastSeen))

	assert.ErrorIs(t, repo.SetOnlineStatus(ctx, "ghost", true, seen), domain.ErrNotFound)
}

func TestMessageTimestampsStrictlyIncrease(t *testing.T) {
	db := newTestDB(t)
	seedMatch(t, db)
	repo := NewMessageRepo(db)
	frozen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 3; i++ {
		m := &domain.Message{ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Content: "hi", Type: "text"}
		require.NoError(t, repo.Create(ctx, m))
		assert.NotEmpty(t, m.ID)
		assert.True(t, m.CreatedAt.After(prev), "timestamp %d must increase", i)
		prev = m.CreatedAt
	}

	msgs, err := repo.ListForConversation(ctx, "c1", nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[2].CreatedAt))

	older, err := repo.ListForConversation(ctx, "c1", &msgs[2].CreatedAt, 10)
	require.NoError(t, err)
	assert.Len(t, older, 2)
}

func TestUnreadLifecycle(t *testing.T) {
	db := newTestDB(t)
	seedMatch(t, db)
	convs := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	ctx := context.Background()

	clientID := "tmp-1"
	m := &domain.Message{ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Content: "hello", Type: "text", ClientMessageID: &clientID}
	require.NoError(t, msgs.Create(ctx, m))
	require.NoError(t, convs.UpdateSummary(ctx, "c1", domain.SummaryUpdate{
		LastMessage: "hello", LastMessageAt: m.CreatedAt, HasUnread: true, UnreadDelta: 1,
	}))

	conv, err := convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.True(t, conv.HasUnread)
	assert.Equal(t, "hello", conv.LastMessage)
	require.NotNil(t, conv.LastMessageAt)

	dup, err := msgs.GetByClientID(ctx, "c1", "alice", clientID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, dup.ID)

	unread, err := msgs.FindUnread(ctx, "c1", "bob")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	none, err := msgs.FindUnread(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, msgs.MarkRead(ctx, []string{unread[0].ID}))
	n, err := convs.RecountUnread(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	conv, err = convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.False(t, conv.HasUnread)
}

func TestClientMessageIDUniquePerSender(t *testing.T) {
	db := newTestDB(t)
	seedMatch(t, db)
	msgs := NewMessageRepo(db)
	ctx := context.Background()

	clientID := "tmp-1"
	fromAlice := &domain.Message{ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Content: "a", Type: "text", ClientMessageID: &clientID}
	fromBob := &domain.Message{ConversationID: "c1", SenderID: "bob", ReceiverID: "alice", Content: "b", Type: "text", ClientMessageID: &clientID}
	require.NoError(t, msgs.Create(ctx, fromAlice))
	require.NoError(t, msgs.Create(ctx, fromBob))

	again := &domain.Message{ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Content: "a", Type: "text", ClientMessageID: &clientID}
	assert.Error(t, msgs.Create(ctx, again))

	got, err := msgs.GetByClientID(ctx, "c1", "bob", clientID)
	require.NoError(t, err)
	assert.Equal(t, fromBob.ID, got.ID)

	_, err = msgs.GetByClientID(ctx, "c1", "carol", clientID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateSummaryClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	seedMatch(t, db)
	convs := NewConversationRepo(db)
	ctx := context.Background()

	require.NoError(t, convs.UpdateSummary(ctx, "c1", domain.SummaryUpdate{
		LastMessage: "x", LastMessageAt: time.Now(), HasUnread: true, UnreadDelta: -3,
	}))
	conv, err := convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.False(t, conv.HasUnread)

	assert.ErrorIs(t, convs.UpdateSummary(ctx, "missing", domain.SummaryUpdate{}), domain.ErrNotFound)
	_, err = convs.RecountUnread(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListForUser(t *testing.T) {
	db := newTestDB(t)
	seedMatch(t, db)
	convs := NewConversationRepo(db)

	list, err := convs.ListForUser(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)

	list, err = convs.ListForUser(context.Background(), "carol")
	require.NoError(t, err)
	assert.Empty(t, list)
}
