package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path (":memory:" for a private
// in-memory database). The pool holds a single connection so an in-memory
// database is shared by every query and writes are serialized.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close(_ context.Context) {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("storage: close sqlite", "error", err)
	}
}

// RunMigrations applies the unapplied files of migrationsFS.
func (s *SQLiteStore) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	return runMigrations(ctx, s, migrationsFS, s.logger)
}

func (s *SQLiteStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	return err
}

func (s *SQLiteStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLiteStore) applyMigration(ctx context.Context, name, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		name, now().UnixMicro(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SavePolicy(ctx context.Context, rec *PolicyRecord) error {
	rec.fill()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policies (id, domain, name, document, fingerprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Domain, rec.Name, string(rec.Document), rec.Fingerprint, rec.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("storage: save policy: %w", err)
	}
	s.logger.Debug("storage: policy saved", "id", rec.ID, "domain", rec.Domain, "name", rec.Name)
	return nil
}

const sqlitePolicyColumns = `id, domain, name, document, fingerprint, created_at`

func (s *SQLiteStore) GetPolicy(ctx context.Context, id uuid.UUID) (PolicyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePolicyColumns+` FROM policies WHERE id = ?`, id.String())
	return scanSQLitePolicy(row, "get policy")
}

func (s *SQLiteStore) LatestPolicy(ctx context.Context, domain, name string) (PolicyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePolicyColumns+` FROM policies
		 WHERE domain = ? AND name = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, domain, name)
	return scanSQLitePolicy(row, "latest policy")
}

func (s *SQLiteStore) ListPolicies(ctx context.Context, domain string) ([]PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePolicyColumns+` FROM policies
		 WHERE domain = ? ORDER BY created_at DESC, name`, domain)
	if err != nil {
		return nil, fmt.Errorf("storage: list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PolicyRecord
	for rows.Next() {
		rec, err := scanSQLitePolicy(rows, "list policies")
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

func (s *SQLiteStore) SaveExplanation(ctx context.Context, rec *ExplanationRecord) error {
	rec.fill()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO explanations (id, domain, solution_id, document, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Domain, rec.SolutionID.String(), string(rec.Document), rec.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("storage: save explanation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExplanation(ctx context.Context, id uuid.UUID) (ExplanationRecord, error) {
	var (
		rec               ExplanationRecord
		rawID, solutionID string
		document          string
		createdAt         int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, domain, solution_id, document, created_at FROM explanations WHERE id = ?`, id.String(),
	).Scan(&rawID, &rec.Domain, &solutionID, &document, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ExplanationRecord{}, fmt.Errorf("storage: get explanation %s: %w", id, ErrExplanationNotFound)
	}
	if err != nil {
		return ExplanationRecord{}, fmt.Errorf("storage: get explanation: %w", err)
	}
	if rec.ID, err = uuid.Parse(rawID); err != nil {
		return ExplanationRecord{}, fmt.Errorf("storage: get explanation: %w", err)
	}
	if rec.SolutionID, err = uuid.Parse(solutionID); err != nil {
		return ExplanationRecord{}, fmt.Errorf("storage: get explanation: %w", err)
	}
	rec.Document = []byte(document)
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePolicy(row rowScanner, op string) (PolicyRecord, error) {
	var (
		rec       PolicyRecord
		rawID     string
		document  string
		createdAt int64
	)
	err := row.Scan(&rawID, &rec.Domain, &rec.Name, &document, &rec.Fingerprint, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PolicyRecord{}, fmt.Errorf("storage: %s: %w", op, ErrPolicyNotFound)
	}
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("storage: %s: %w", op, err)
	}
	if rec.ID, err = uuid.Parse(rawID); err != nil {
		return PolicyRecord{}, fmt.Errorf("storage: %s: %w", op, err)
	}
	rec.Document = []byte(document)
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	return rec, nil
}
