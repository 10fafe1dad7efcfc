package postgres

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
	query := `
		INSERT INTO users (id, name, is_online, last_seen, created_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, last_seen
	`
	if err := r.db.QueryRowContext(ctx, query, u.ID, u.Name, u.IsOnline).Scan(&u.CreatedAt, &u.LastSeen); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_online, last_seen, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.IsOnline, &u.LastSeen, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool, lastSeen time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_online = $1, last_seen = $2 WHERE id = $3`,
		isOnline, lastSeen.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
