// Package storage persists policies and the explanations computed for them.
//
// Two backends implement Store: PostgresStore (pgxpool) for shared
// deployments and SQLiteStore (modernc.org/sqlite, pure Go) for local runs.
// Documents are stored as opaque JSON produced by the policy codec; the
// store never interprets them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/xplan/migrations"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when a requested record does not exist. The
// record-specific sentinels below wrap it.
var ErrNotFound = errors.New("storage: not found")

var (
	ErrPolicyNotFound      = fmt.Errorf("%w: policy", ErrNotFound)
	ErrExplanationNotFound = fmt.Errorf("%w: explanation", ErrNotFound)
)

// PolicyRecord is a persisted policy document.
type PolicyRecord struct {
	ID          uuid.UUID
	Domain      string
	Name        string
	Document    []byte
	Fingerprint string
	CreatedAt   time.Time
}

// ExplanationRecord is a persisted explanation for a solution policy.
type ExplanationRecord struct {
	ID         uuid.UUID
	Domain     string
	SolutionID uuid.UUID
	Document   []byte
	CreatedAt  time.Time
}

// Store is the persistence contract shared by the Postgres and SQLite backends.
type Store interface {
	// SavePolicy inserts rec, assigning ID and CreatedAt when zero.
	SavePolicy(ctx context.Context, rec *PolicyRecord) error
	GetPolicy(ctx context.Context, id uuid.UUID) (PolicyRecord, error)
	// LatestPolicy returns the most recently saved policy with the given name.
	LatestPolicy(ctx context.Context, domain, name string) (PolicyRecord, error)
	// ListPolicies returns the policies of a domain, newest first.
	ListPolicies(ctx context.Context, domain string) ([]PolicyRecord, error)
	SaveExplanation(ctx context.Context, rec *ExplanationRecord) error
	GetExplanation(ctx context.Context, id uuid.UUID) (ExplanationRecord, error)
	Close(ctx context.Context)
}

// Open connects to the store selected by driver and applies its migrations.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (Store, error) {
	switch driver {
	case DriverPostgres:
		s, err := NewPostgresStore(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(ctx, migrations.Postgres); err != nil {
			s.Close(ctx)
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := NewSQLiteStore(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(ctx, migrations.SQLite); err != nil {
			s.Close(ctx)
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

func (r *PolicyRecord) fill() {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
}

func (r *ExplanationRecord) fill() {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
}

// now is truncated to the microsecond precision both backends store.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
