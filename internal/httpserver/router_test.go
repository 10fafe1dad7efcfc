package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matchchat/internal/config"
	"matchchat/internal/domain"
	"matchchat/internal/httpserver"
	"matchchat/internal/security"
	"matchchat/internal/service"
	"matchchat/internal/session"
	"matchchat/internal/store/sqlite"
)

type apiEnv struct {
	handler http.Handler
	tokens  *security.TokenService
	msgs    *sqlite.MessageRepo
	convs   *sqlite.ConversationRepo
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop()
	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	msgs := sqlite.NewMessageRepo(db)
	tokens := security.NewTokenService("http-test-secret", time.Minute, time.Hour)

	sessions := session.NewStore(16, log)
	queue := service.NewConversationQueue()
	reads := service.NewReadService(convs, msgs, sessions, queue, log)
	registry := service.NewConversationService(convs, msgs, sessions, reads, nil, log)

	cfg := &config.Config{AppName: "matchchat", CORSOrigins: []string{"http://localhost:3000"}}
	h := httpserver.NewRouter(cfg, httpserver.Deps{
		Auth:          service.NewAuthService(users, tokens),
		Conversations: registry,
		Reads:         reads,
		Log:           log,
	})

	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, users.Create(ctx, &domain.User{ID: id, Name: id}))
	}
	require.NoError(t, convs.Create(ctx, &domain.Conversation{ID: "c1", UserID1: "alice", UserID2: "bob"}))

	return &apiEnv{handler: h, tokens: tokens, msgs: msgs, convs: convs}
}

func (e *apiEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		tok, err := e.tokens.CreateAccess(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) seedMessage(t *testing.T, from, to, content string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.msgs.Create(ctx, &domain.Message{
		ConversationID: "c1",
		SenderID:       from,
		ReceiverID:     to,
		Content:        content,
		Type:           domain.MessageTypeText,
	}))
	require.NoError(t, e.convs.UpdateSummary(ctx, "c1", domain.SummaryUpdate{
		LastMessage:   content,
		LastMessageAt: time.Now(),
		HasUnread:     true,
		UnreadDelta:   1,
	}))
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestAuthMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Refresh tokens are not accepted as access tokens.
	refresh, err := env.tokens.CreateRefresh("alice")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAndRefresh(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/me", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.ID)

	refresh, err := env.tokens.CreateRefresh("alice")
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	var pair map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair["access_token"])
	assert.Equal(t, "bearer", pair["token_type"])

	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationAccess(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)

	rec = env.do(t, http.MethodGet, "/api/conversations", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/conversations/c1", "bob", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/conversations/c1", "carol", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/conversations/missing", "alice", nil).Code)
}

func TestHistoryAndMarkRead(t *testing.T) {
	env := newAPIEnv(t)
	env.seedMessage(t, "alice", "bob", "hi")
	env.seedMessage(t, "alice", "bob", "there")

	rec := env.do(t, http.MethodGet, "/api/conversations/c1/messages?limit=10", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "there", msgs[1].Content)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/conversations/c1/messages?limit=x", "bob", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/conversations/c1/messages?before=yesterday", "bob", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/conversations/c1/messages", "carol", nil).Code)

	// The sender has nothing to read.
	rec = env.do(t, http.MethodPost, "/api/conversations/c1/read", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":0}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/conversations/c1/read", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":2}`, rec.Body.String())

	conv, err := env.convs.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.False(t, conv.HasUnread)
}
