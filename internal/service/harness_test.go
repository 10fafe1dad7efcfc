package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matchchat/internal/config"
	"matchchat/internal/domain"
	"matchchat/internal/push"
	"matchchat/internal/security"
	"matchchat/internal/service"
	"matchchat/internal/session"
	"matchchat/internal/store/sqlite"
)

// MockNotifier records offline pushes and signals each one on pushed.
type MockNotifier struct {
	mock.Mock
	pushed chan string
}

func newMockNotifier() *MockNotifier {
	return &MockNotifier{pushed: make(chan string, 16)}
}

func (m *MockNotifier) PushOffline(ctx context.Context, userID string, p push.Payload) error {
	args := m.Called(ctx, userID, p)
	m.pushed <- userID
	return args.Error(0)
}

// failingSummaries breaks UpdateSummary to exercise degraded sends.
type failingSummaries struct {
	domain.ConversationRepository
}

func (f failingSummaries) UpdateSummary(context.Context, string, domain.SummaryUpdate) error {
	return errors.New("summary store unavailable")
}

type harness struct {
	db       *sql.DB
	users    *sqlite.UserRepo
	convs    domain.ConversationRepository
	msgs     *sqlite.MessageRepo
	sessions *session.Store
	queue    *service.ConversationQueue
	notifier *MockNotifier

	registry *service.ConversationService
	reads    *service.ReadService
	messages *service.MessageService
	presence *service.PresenceService
}

type harnessOpt func(*harnessOpts)

type harnessOpts struct {
	policy    string
	encryptor *security.Encryptor
	wrap      func(domain.ConversationRepository) domain.ConversationRepository
}

func withPolicy(p string) harnessOpt {
	return func(o *harnessOpts) { o.policy = p }
}

func withEncryptor(e *security.Encryptor) harnessOpt {
	return func(o *harnessOpts) { o.encryptor = e }
}

func withConversations(wrap func(domain.ConversationRepository) domain.ConversationRepository) harnessOpt {
	return func(o *harnessOpts) { o.wrap = wrap }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	o := harnessOpts{policy: config.JoinPolicySwitch}
	for _, fn := range opts {
		fn(&o)
	}

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop()
	h := &harness{
		db:       db,
		users:    sqlite.NewUserRepo(db),
		msgs:     sqlite.NewMessageRepo(db),
		sessions: session.NewStore(256, log),
		queue:    service.NewConversationQueue(),
		notifier: newMockNotifier(),
	}
	h.notifier.On("PushOffline", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.convs = sqlite.NewConversationRepo(db)
	if o.wrap != nil {
		h.convs = o.wrap(h.convs)
	}

	h.reads = service.NewReadService(h.convs, h.msgs, h.sessions, h.queue, log)
	h.registry = service.NewConversationService(h.convs, h.msgs, h.sessions, h.reads, o.encryptor, log)
	h.registry.JoinPolicy = o.policy
	h.messages = service.NewMessageService(h.registry, h.convs, h.msgs, h.sessions, h.queue, h.notifier, o.encryptor, log)
	h.presence = service.NewPresenceService(h.users, h.convs, h.sessions, h.queue, log)

	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, h.users.Create(ctx, &domain.User{ID: id, Name: id}))
	}
	require.NoError(t, h.convs.Create(ctx, &domain.Conversation{ID: "c1", UserID1: "alice", UserID2: "bob"}))
	require.NoError(t, h.convs.Create(ctx, &domain.Conversation{ID: "c2", UserID1: "alice", UserID2: "carol"}))
	return h
}

func (h *harness) connectAndJoin(t *testing.T, userID, convID string) *session.Conn {
	t.Helper()
	c := h.sessions.Add(userID)
	_, err := h.registry.Join(context.Background(), c, convID)
	require.NoError(t, err)
	return c
}

func (h *harness) conversation(t *testing.T, id string) *domain.Conversation {
	t.Helper()
	conv, err := h.convs.GetByID(context.Background(), id)
	require.NoError(t, err)
	return conv
}

func (h *harness) unreadRecords(t *testing.T, convID string) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND is_read = 0`, convID,
	).Scan(&n))
	return n
}

func text(s string) service.SendInput {
	return service.SendInput{ConversationID: "c1", Content: s}
}

// drain returns every event already queued for c.
func drain(t *testing.T, c *session.Conn) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data := <-c.Outbound():
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

// ofType filters events by their type discriminator.
func ofType(events []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, e := range events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func waitPush(t *testing.T, n *MockNotifier) string {
	t.Helper()
	select {
	case uid := <-n.pushed:
		return uid
	case <-time.After(2 * time.Second):
		t.Fatal("offline push was not triggered")
		return ""
	}
}
