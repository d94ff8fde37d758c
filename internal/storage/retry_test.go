package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRetrier(maxRetries int, delay time.Duration) (saveRetrier, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return saveRetrier{maxRetries: maxRetries, baseDelay: delay, logger: logger}, &buf
}

func TestSaveRetrier_RetriesSerializationFailures(t *testing.T) {
	r, logs := newRetrier(3, time.Millisecond)
	calls := 0
	retries, err := r.do(context.Background(), "save policy", func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: codeSerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
	assert.Contains(t, logs.String(), `op="save policy"`)
	assert.Contains(t, logs.String(), "attempt=2")
	assert.Contains(t, logs.String(), "code=40001")
}

func TestSaveRetrier_GivesUp(t *testing.T) {
	r, logs := newRetrier(2, time.Millisecond)
	calls := 0
	retries, err := r.do(context.Background(), "save explanation", func() error {
		calls++
		return &pgconn.PgError{Code: codeDeadlockDetected}
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, codeDeadlockDetected, pgErr.Code)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
	assert.Contains(t, logs.String(), "retries exhausted")
	assert.Contains(t, logs.String(), `op="save explanation"`)
}

func TestSaveRetrier_NonRetriable(t *testing.T) {
	r, logs := newRetrier(5, time.Millisecond)
	boom := errors.New("boom")
	calls := 0
	retries, err := r.do(context.Background(), "save policy", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Zero(t, retries)
	assert.Empty(t, logs.String())

	// Other SQLSTATEs are not retried either.
	calls = 0
	_, err = r.do(context.Background(), "save policy", func() error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSaveRetrier_ContextCancelled(t *testing.T) {
	r, _ := newRetrier(3, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	retries, err := r.do(ctx, "save policy", func() error {
		return &pgconn.PgError{Code: codeSerializationFailure}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, retries)
}
