package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchchat/internal/domain"
)

// storeErr wraps a repository failure. Missing records keep ErrNotFound;
// everything else, timeouts included, is reported as ErrPersistence.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
