package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	saveRetries   = 3
	saveBaseDelay = 10 * time.Millisecond
)

// PostgresStore is a Store backed by a pgxpool.Pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	retry  saveRetrier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a connection pool for dsn and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger,
		retry:  saveRetrier{maxRetries: saveRetries, baseDelay: saveBaseDelay, logger: logger},
	}, nil
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks connectivity to the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close(_ context.Context) {
	s.pool.Close()
}

// RunMigrations applies the unapplied files of migrationsFS.
func (s *PostgresStore) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	return runMigrations(ctx, s, migrationsFS, s.logger)
}

func (s *PostgresStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// applyMigration runs the file and records it in one transaction.
func (s *PostgresStore) applyMigration(ctx context.Context, name, content string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, content); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SavePolicy(ctx context.Context, rec *PolicyRecord) error {
	rec.fill()
	retries, err := s.retry.do(ctx, "save policy", func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO policies (id, domain, name, document, fingerprint, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.Domain, rec.Name, rec.Document, rec.Fingerprint, rec.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: save policy: %w", err)
	}
	s.logger.Debug("storage: policy saved", "id", rec.ID, "domain", rec.Domain, "name", rec.Name, "retries", retries)
	return nil
}

const pgPolicyColumns = `id, domain, name, document, fingerprint, created_at`

func (s *PostgresStore) GetPolicy(ctx context.Context, id uuid.UUID) (PolicyRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgPolicyColumns+` FROM policies WHERE id = $1`, id)
	return scanPgPolicy(row, "get policy")
}

func (s *PostgresStore) LatestPolicy(ctx context.Context, domain, name string) (PolicyRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgPolicyColumns+` FROM policies
		 WHERE domain = $1 AND name = $2
		 ORDER BY created_at DESC LIMIT 1`, domain, name)
	return scanPgPolicy(row, "latest policy")
}

func (s *PostgresStore) ListPolicies(ctx context.Context, domain string) ([]PolicyRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgPolicyColumns+` FROM policies
		 WHERE domain = $1 ORDER BY created_at DESC, name`, domain)
	if err != nil {
		return nil, fmt.Errorf("storage: list policies: %w", err)
	}
	defer rows.Close()

	var out []PolicyRecord
	for rows.Next() {
		rec, err := scanPgPolicy(rows, "list policies")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list policies: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveExplanation(ctx context.Context, rec *ExplanationRecord) error {
	rec.fill()
	retries, err := s.retry.do(ctx, "save explanation", func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO explanations (id, domain, solution_id, document, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			rec.ID, rec.Domain, rec.SolutionID, rec.Document, rec.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: save explanation: %w", err)
	}
	s.logger.Debug("storage: explanation saved", "id", rec.ID, "solution_id", rec.SolutionID, "retries", retries)
	return nil
}

func (s *PostgresStore) GetExplanation(ctx context.Context, id uuid.UUID) (ExplanationRecord, error) {
	var rec ExplanationRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, domain, solution_id, document, created_at FROM explanations WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Domain, &rec.SolutionID, &rec.Document, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExplanationRecord{}, fmt.Errorf("storage: get explanation %s: %w", id, ErrExplanationNotFound)
	}
	if err != nil {
		return ExplanationRecord{}, fmt.Errorf("storage: get explanation: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func scanPgPolicy(row pgx.Row, op string) (PolicyRecord, error) {
	var rec PolicyRecord
	err := row.Scan(&rec.ID, &rec.Domain, &rec.Name, &rec.Document, &rec.Fingerprint, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PolicyRecord{}, fmt.Errorf("storage: %s: %w", op, ErrPolicyNotFound)
	}
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("storage: %s: %w", op, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
