package xplan

import (
	"log/slog"

	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/storage"
)

// Option configures a Planner.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	logger     *slog.Logger
	store      storage.Store
	solver     Solver
	verbalizer Verbalizer
	evaluation analysis.Options
}

// WithLogger sets the structured logger for the Planner.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithStore enables SavePolicy, GetPolicy, LatestPolicy and SaveExplanation.
func WithStore(s storage.Store) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithSolver sets the external solver used by Solve.
func WithSolver(s Solver) Option {
	return func(o *resolvedOptions) { o.solver = s }
}

// WithVerbalizer sets the external verbalizer used by Verbalize.
func WithVerbalizer(v Verbalizer) Option {
	return func(o *resolvedOptions) { o.verbalizer = v }
}

// WithEvaluationOptions replaces the evaluation options. Zero fields fall
// back to analysis.DefaultOptions.
func WithEvaluationOptions(opts analysis.Options) Option {
	return func(o *resolvedOptions) { o.evaluation = opts }
}

// WithWorkers bounds how many alternatives Explain evaluates at once.
func WithWorkers(n int) Option {
	return func(o *resolvedOptions) { o.evaluation.Workers = n }
}
