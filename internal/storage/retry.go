package storage

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes a save may retry.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func conflictCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return pgErr.Code, true
	default:
		return "", false
	}
}

// saveRetrier retries policy and explanation writes that lost a
// serialization or deadlock conflict.
type saveRetrier struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// do runs fn for op with jittered exponential backoff and reports how many
// retries it took. Other errors and cancellation end the loop immediately.
func (r saveRetrier) do(ctx context.Context, op string, fn func() error) (int, error) {
	delay := r.baseDelay
	for retries := 0; ; retries++ {
		err := fn()
		code, conflict := conflictCode(err)
		if err == nil || !conflict {
			return retries, err
		}
		if retries == r.maxRetries {
			r.logger.Warn("storage: retries exhausted", "op", op, "retries", retries, "code", code)
			return retries, err
		}
		r.logger.Debug("storage: retrying conflict", "op", op, "attempt", retries+1, "code", code, "delay", delay)
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return retries, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}
