// Package xplan is the public API for inducing, evaluating and explaining
// policies over factored MDP domains.
//
// A Planner wires the evaluation engine to optional collaborators:
//
//	planner, err := xplan.New(
//	    xplan.WithLogger(logger),
//	    xplan.WithStore(store),
//	    xplan.WithSolver(mySolver),
//	    xplan.WithVerbalizer(myVerbalizer),
//	)
//	if err != nil { ... }
//	exp, err := planner.Explain(ctx, x, solution, alternatives)
//
// Solving and verbalization are delegated: this package never computes an
// optimal policy or renders prose itself.
package xplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/dtmc"
	"github.com/ashita-ai/xplan/internal/integrity"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/storage"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

var (
	ErrNoStore             = errors.New("xplan: no store configured")
	ErrNoSolver            = errors.New("xplan: no solver configured")
	ErrNoVerbalizer        = errors.New("xplan: no verbalizer configured")
	ErrFingerprintMismatch = errors.New("xplan: stored policy does not match its fingerprint")
)

// Planner is the entry point for policy induction, evaluation and explanation.
// Construct with New(). Safe for concurrent use when its collaborators are.
type Planner struct {
	evaluator  *analysis.Evaluator
	store      storage.Store
	solver     Solver
	verbalizer Verbalizer
	logger     *slog.Logger
}

// New builds a Planner from options.
func New(opts ...Option) (*Planner, error) {
	o := resolvedOptions{evaluation: analysis.DefaultOptions()}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	if o.evaluation.Discount < 0 || o.evaluation.Discount >= 1 {
		return nil, fmt.Errorf("xplan: discount must be in (0, 1), got %v", o.evaluation.Discount)
	}

	return &Planner{
		evaluator:  analysis.NewEvaluator(logger, o.evaluation),
		store:      o.store,
		solver:     o.solver,
		verbalizer: o.verbalizer,
		logger:     logger,
	}, nil
}

// EvaluationOptions returns the options in effect after defaults.
func (p *Planner) EvaluationOptions() analysis.Options { return p.evaluator.Options() }

// Induce returns the chain that pol induces on x.
func (p *Planner) Induce(ctx context.Context, x *xmdp.XMDP, pol *policy.Policy) (*dtmc.XDTMC, error) {
	return dtmc.Induce(ctx, x, pol)
}

// Evaluate computes the expected QA values and cost of pol.
func (p *Planner) Evaluate(ctx context.Context, x *xmdp.XMDP, pol *policy.Policy) (*analysis.Result, error) {
	return p.evaluator.Evaluate(ctx, x, pol)
}

// Solve delegates to the configured Solver.
func (p *Planner) Solve(ctx context.Context, x *xmdp.XMDP) (*policy.Policy, error) {
	if p.solver == nil {
		return nil, ErrNoSolver
	}
	pol, err := p.solver.Solve(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("xplan: solve: %w", err)
	}
	return pol, nil
}

// Explain compares solution against each alternative.
func (p *Planner) Explain(ctx context.Context, x *xmdp.XMDP, solution *policy.Policy, alternatives []*policy.Policy) (*analysis.Explanation, error) {
	return p.evaluator.Explain(ctx, x, solution, alternatives)
}

// Verbalize renders exp through the configured Verbalizer.
func (p *Planner) Verbalize(ctx context.Context, x *xmdp.XMDP, exp *analysis.Explanation) (string, error) {
	if p.verbalizer == nil {
		return "", ErrNoVerbalizer
	}
	report, err := NewReport(exp)
	if err != nil {
		return "", err
	}
	text, err := p.verbalizer.Verbalize(ctx, x, report)
	if err != nil {
		return "", fmt.Errorf("xplan: verbalize: %w", err)
	}
	return text, nil
}

// SavePolicy persists pol under (domain, name) with its fingerprint.
func (p *Planner) SavePolicy(ctx context.Context, domain, name string, pol *policy.Policy) (storage.PolicyRecord, error) {
	if p.store == nil {
		return storage.PolicyRecord{}, ErrNoStore
	}
	doc, err := policy.Encode(pol)
	if err != nil {
		return storage.PolicyRecord{}, fmt.Errorf("xplan: encode policy: %w", err)
	}
	rec := storage.PolicyRecord{
		Domain:      domain,
		Name:        name,
		Document:    doc,
		Fingerprint: integrity.PolicyFingerprint(pol),
	}
	if err := p.store.SavePolicy(ctx, &rec); err != nil {
		return storage.PolicyRecord{}, err
	}
	p.logger.Info("xplan: policy saved", "policy_id", rec.ID, "domain", domain, "name", name, "decisions", pol.Len())
	return rec, nil
}

// GetPolicy loads the policy with id and resolves it against x.
func (p *Planner) GetPolicy(ctx context.Context, x *xmdp.XMDP, id uuid.UUID) (*policy.Policy, storage.PolicyRecord, error) {
	if p.store == nil {
		return nil, storage.PolicyRecord{}, ErrNoStore
	}
	rec, err := p.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, storage.PolicyRecord{}, err
	}
	pol, err := decodeRecord(x, rec)
	return pol, rec, err
}

// LatestPolicy loads the newest policy saved under (domain, name).
func (p *Planner) LatestPolicy(ctx context.Context, x *xmdp.XMDP, domain, name string) (*policy.Policy, storage.PolicyRecord, error) {
	if p.store == nil {
		return nil, storage.PolicyRecord{}, ErrNoStore
	}
	rec, err := p.store.LatestPolicy(ctx, domain, name)
	if err != nil {
		return nil, storage.PolicyRecord{}, err
	}
	pol, err := decodeRecord(x, rec)
	return pol, rec, err
}

// SaveExplanation persists the report of exp against its stored solution.
func (p *Planner) SaveExplanation(ctx context.Context, domain string, solutionID uuid.UUID, exp *analysis.Explanation) (storage.ExplanationRecord, error) {
	if p.store == nil {
		return storage.ExplanationRecord{}, ErrNoStore
	}
	report, err := NewReport(exp)
	if err != nil {
		return storage.ExplanationRecord{}, err
	}
	doc, err := report.MarshalIndent()
	if err != nil {
		return storage.ExplanationRecord{}, err
	}
	rec := storage.ExplanationRecord{ID: exp.ID, Domain: domain, SolutionID: solutionID, Document: doc}
	if err := p.store.SaveExplanation(ctx, &rec); err != nil {
		return storage.ExplanationRecord{}, err
	}
	return rec, nil
}

func decodeRecord(x *xmdp.XMDP, rec storage.PolicyRecord) (*policy.Policy, error) {
	pol, err := policy.Decode(rec.Document, x.StateSpace(), x.ActionSpace())
	if err != nil {
		return nil, fmt.Errorf("xplan: decode policy %s: %w", rec.ID, err)
	}
	if !integrity.VerifyPolicy(rec.Fingerprint, pol) {
		return nil, fmt.Errorf("%w: %s", ErrFingerprintMismatch, rec.ID)
	}
	return pol, nil
}
