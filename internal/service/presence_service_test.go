package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchchat/internal/domain"
	"matchchat/internal/service"
)

func TestBroadcastTypingReachesOthersOnly(t *testing.T) {
	h := newHarness(t)
	alice := h.connectAndJoin(t, "alice", "c1")
	bob := h.connectAndJoin(t, "bob", "c1")
	drain(t, alice)
	drain(t, bob)

	require.NoError(t, h.presence.BroadcastTyping(context.Background(), alice, "c1", true))

	assert.Empty(t, drain(t, alice))
	got := ofType(drain(t, bob), service.EventUserTyping)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0]["userId"])
	assert.Equal(t, true, got[0]["isTyping"])
	assert.Equal(t, "c1", got[0]["conversationId"])
}

func TestBroadcastTypingRequiresRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.sessions.Add("alice")
	bob := h.connectAndJoin(t, "bob", "c1")

	err := h.presence.BroadcastTyping(context.Background(), alice, "c1", true)
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
	assert.Empty(t, ofType(drain(t, bob), service.EventUserTyping))
}

func TestNotify(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.presence.Notify("bob", map[string]string{"kind": "match"}))

	bob := h.sessions.Add("bob")
	assert.Equal(t, 1, h.presence.Notify("bob", map[string]string{"kind": "match"}))
	got := ofType(drain(t, bob), service.EventNotification)
	require.Len(t, got, 1)
	assert.Equal(t, "match", got[0]["payload"].(map[string]any)["kind"])
}

func TestPresenceLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.users.Create(ctx, &domain.User{ID: "dave", Name: "dave"}))
	bob := h.sessions.Add("bob")
	carol := h.sessions.Add("carol")
	dave := h.sessions.Add("dave")

	alice := h.sessions.Add("alice")
	h.presence.Connected(alice)
	h.queue.Wait()

	u, err := h.users.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)

	online := ofType(drain(t, bob), service.EventPresence)
	require.Len(t, online, 1)
	assert.Equal(t, true, online[0]["online"])
	assert.Len(t, ofType(drain(t, carol), service.EventPresence), 1)
	// dave shares no conversation with alice.
	assert.Empty(t, drain(t, dave))

	h.presence.Disconnected("alice", h.sessions.Remove(alice))
	h.queue.Wait()

	u, err = h.users.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, u.IsOnline)
	assert.False(t, u.LastSeen.IsZero())

	offline := ofType(drain(t, bob), service.EventPresence)
	require.Len(t, offline, 1)
	assert.Equal(t, false, offline[0]["online"])
	assert.Equal(t, "alice", offline[0]["userId"])
	assert.Empty(t, drain(t, dave))
}

func TestPresenceSkipsUsersWithoutSharedConversation(t *testing.T) {
	h := newHarness(t)
	alice := h.sessions.Add("alice")
	carol := h.sessions.Add("carol")

	// bob is matched with alice only.
	bob := h.sessions.Add("bob")
	h.presence.Connected(bob)
	h.queue.Wait()

	assert.Len(t, ofType(drain(t, alice), service.EventPresence), 1)
	assert.Empty(t, drain(t, carol))
}

func TestDisconnectKeepsOnlineWhileConnectionsRemain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a1 := h.sessions.Add("alice")
	a2 := h.sessions.Add("alice")
	h.presence.Connected(a1)
	h.presence.Connected(a2)
	h.queue.Wait()

	h.presence.Disconnected("alice", h.sessions.Remove(a1))
	h.queue.Wait()
	u, err := h.users.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)

	h.presence.Disconnected("alice", h.sessions.Remove(a2))
	h.queue.Wait()
	u, err = h.users.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, u.IsOnline)
}
