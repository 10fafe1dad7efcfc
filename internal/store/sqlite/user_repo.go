package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matchchat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastSeen.IsZero() {
		u.LastSeen = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, is_online, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Name, boolToInt(u.IsOnline), toMicros(u.LastSeen), toMicros(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	var lastSeen, createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_online, last_seen, created_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.IsOnline, &lastSeen, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.LastSeen = fromMicros(lastSeen)
	u.CreatedAt = fromMicros(createdAt)
	return u, nil
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool, lastSeen time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?
	`, boolToInt(isOnline), toMicros(lastSeen), id)
	if err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
