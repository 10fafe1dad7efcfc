package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"matchchat/internal/domain"
	"matchchat/internal/service"
	"matchchat/internal/session"
)

// Authenticator resolves a bearer token to a user. Refusals wrap
// domain.ErrAuthenticationFailed.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

// Deps are the collaborators a Gateway dispatches to.
type Deps struct {
	Auth     Authenticator
	Sessions *session.Store
	Registry *service.ConversationService
	Messages *service.MessageService
	Reads    *service.ReadService
	Presence *service.PresenceService
	Log      *zap.Logger
}

// Gateway authenticates websocket connections on /ws and runs one read loop
// and one write loop per connection.
type Gateway struct {
	Deps
	upgrader    websocket.Upgrader
	checkOrigin func(*http.Request) bool
	active      sync.WaitGroup

	IdleTimeout time.Duration
}

// Wait blocks until every upgraded connection has finished its teardown.
func (g *Gateway) Wait() {
	g.active.Wait()
}

func NewGateway(deps Deps, allowedOrigins []string, idleTimeout time.Duration) *Gateway {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	checkOrigin := makeCheckOrigin(allowedOrigins)
	deps.Log = deps.Log.Named("ws")
	return &Gateway{
		Deps:        deps,
		checkOrigin: checkOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
			Subprotocols:    []string{"bearer"},
		},
		IdleTimeout: idleTimeout,
	}
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin admits requests without an Origin header (native and
// server clients) and browser origins on the allow list. "*" admits all.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, allowAll := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || allowAll {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractTokenFromWSRequest looks at the Authorization header, then the
// "bearer, <token>" subprotocol pair, then the token query parameter.
func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// ServeHTTP refuses the request before upgrading unless the token is a valid
// access token for an existing user, so a refused client leaves no session
// state behind.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	tokenStr, err := extractTokenFromWSRequest(r)
	if err != nil {
		var authErr wsAuthError
		if errors.As(err, &authErr) {
			http.Error(w, authErr.msg, authErr.status)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := g.Auth.Authenticate(r.Context(), tokenStr)
	if err != nil {
		if errors.Is(err, domain.ErrAuthenticationFailed) {
			g.Log.Debug("connection refused", zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		g.Log.Error("authenticate connection", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Log.Debug("upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	g.active.Add(1)
	defer g.active.Done()

	sess := g.Sessions.Add(user.ID)
	g.Presence.Connected(sess)
	g.Log.Info("connection opened", zap.String("user_id", user.ID), zap.String("conn_id", sess.ID))

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{gw: g, conn: conn, sess: sess, log: g.Log.With(zap.String("conn_id", sess.ID))}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	c.readPump(ctx)

	cancel()
	remaining := g.Sessions.Remove(sess)
	sess.Close()
	<-writerDone
	g.Presence.Disconnected(user.ID, remaining)
	g.Log.Info("connection closed", zap.String("user_id", user.ID), zap.String("conn_id", sess.ID))
}
