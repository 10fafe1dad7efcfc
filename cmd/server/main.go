package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"matchchat/internal/config"
	"matchchat/internal/domain"
	"matchchat/internal/httpserver"
	"matchchat/internal/logger"
	"matchchat/internal/push"
	"matchchat/internal/security"
	"matchchat/internal/service"
	"matchchat/internal/session"
	"matchchat/internal/store/mongostore"
	"matchchat/internal/store/postgres"
	"matchchat/internal/store/sqlite"
	"matchchat/internal/ws"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

// repositories bundles the storage backend selected by STORE_DRIVER.
type repositories struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	closer        io.Closer
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	repos, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.closer.Close()
	log.Info("store ready", zap.String("driver", cfg.StoreDriver))

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, accessTokenTTL, refreshTokenTTL)

	var encryptor *security.Encryptor
	if cfg.EncryptKey != "" {
		encryptor, err = security.NewEncryptor([]byte(cfg.EncryptKey))
		if err != nil {
			return fmt.Errorf("initialize encryptor: %w", err)
		}
	} else {
		log.Warn("ENCRYPTION_KEY not set, message content is stored in plaintext")
	}

	notifier, notifierCloser, err := push.New(cfg, log.Named("push"))
	if err != nil {
		return err
	}
	defer notifierCloser.Close()
	log.Info("offline push ready", zap.String("backend", cfg.PushBackend))

	// Core services
	sessions := session.NewStore(cfg.SendBuffer, log)
	queue := service.NewConversationQueue()

	reads := service.NewReadService(repos.conversations, repos.messages, sessions, queue, log)
	reads.PersistTimeout = cfg.PersistTimeout

	conversations := service.NewConversationService(repos.conversations, repos.messages, sessions, reads, encryptor, log)
	conversations.JoinPolicy = cfg.JoinPolicy
	conversations.PersistTimeout = cfg.PersistTimeout

	messages := service.NewMessageService(conversations, repos.conversations, repos.messages, sessions, queue, notifier, encryptor, log)
	messages.MaxMessageLength = cfg.MaxMessageLength
	messages.PersistTimeout = cfg.PersistTimeout

	presence := service.NewPresenceService(repos.users, repos.conversations, sessions, queue, log)
	presence.PersistTimeout = cfg.PersistTimeout

	authSvc := service.NewAuthService(repos.users, tokenSvc)

	gateway := ws.NewGateway(ws.Deps{
		Auth:     authSvc,
		Sessions: sessions,
		Registry: conversations,
		Messages: messages,
		Reads:    reads,
		Presence: presence,
		Log:      log,
	}, cfg.CORSOrigins, cfg.IdleTimeout)

	// Build HTTP router
	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Auth:          authSvc,
		Conversations: conversations,
		Reads:         reads,
		Gateway:       gateway,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", cfg.HTTPAddr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	sessions.CloseAll()
	gateway.Wait()
	queue.Wait()
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repositories, error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, db, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &repositories{
			users:         mongostore.NewUserRepo(db),
			conversations: mongostore.NewConversationRepo(db),
			messages:      mongostore.NewMessageRepo(db),
			closer: closerFunc(func() error {
				return client.Disconnect(context.Background())
			}),
		}, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return sqlRepos(db, sqlite.NewUserRepo(db), sqlite.NewConversationRepo(db), sqlite.NewMessageRepo(db)), nil
	default:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return sqlRepos(db, postgres.NewUserRepo(db), postgres.NewConversationRepo(db), postgres.NewMessageRepo(db)), nil
	}
}

func sqlRepos(db *sql.DB, users domain.UserRepository, convs domain.ConversationRepository, msgs domain.MessageRepository) *repositories {
	return &repositories{users: users, conversations: convs, messages: msgs, closer: db}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
