package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an insert collides with a unique key.
	ErrConflict = errors.New("store: conflict")
	// ErrTimeout is returned when a statement exceeds the query timeout. Retryable.
	ErrTimeout = errors.New("store: timeout")
	// ErrUnavailable wraps any other driver failure.
	ErrUnavailable = errors.New("store: unavailable")
)

func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// IsRetryable reports whether err is a timeout worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
