package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"matchchat/internal/config"
	"matchchat/internal/service"
)

// Deps are the services exposed over HTTP.
type Deps struct {
	Auth          *service.AuthService
	Conversations *service.ConversationService
	Reads         *service.ReadService
	Gateway       http.Handler
	Log           *zap.Logger
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Log.Named("http")))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName + " chat relay", "version": "1.0.0"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// API routes; the websocket route must stay outside the timeout middleware.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/auth/refresh", handleRefresh(deps.Auth))

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(deps.Auth))

			r.Get("/auth/me", handleMe())

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(deps.Conversations))
				r.Get("/{conversationID}", handleGetConversation(deps.Conversations))
				r.Post("/{conversationID}/read", handleMarkConversationRead(deps.Reads))
				r.Get("/{conversationID}/messages", handleListMessages(deps.Conversations))
			})
		})
	})

	// WebSocket endpoint
	if deps.Gateway != nil {
		r.Get("/ws", deps.Gateway.ServeHTTP)
	}

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// requestLogger logs one line per request in place of chi's stdlib logger.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
