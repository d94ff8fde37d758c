package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// Tradeoff compares an alternative against the solution. Gains hold the QAs
// on which the alternative is better (lower), Losses those on which it is
// worse; both map to the absolute difference.
type Tradeoff struct {
	Gains          map[string]float64
	Losses         map[string]float64
	CostDifference float64
}

// Compare computes the tradeoff of taking alternative instead of solution.
func Compare(solution, alternative *Result) Tradeoff {
	t := Tradeoff{
		Gains:          make(map[string]float64),
		Losses:         make(map[string]float64),
		CostDifference: alternative.Cost - solution.Cost,
	}
	for name, sv := range solution.QAValues {
		av, ok := alternative.QAValues[name]
		if !ok {
			continue
		}
		switch d := av - sv; {
		case d < 0:
			t.Gains[name] = -d
		case d > 0:
			t.Losses[name] = d
		}
	}
	return t
}

// GainNames returns the QAs improved by the alternative, sorted.
func (t Tradeoff) GainNames() []string { return sortedNames(t.Gains) }

// LossNames returns the QAs worsened by the alternative, sorted.
func (t Tradeoff) LossNames() []string { return sortedNames(t.Losses) }

func sortedNames(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Alternative is one evaluated alternative policy.
type Alternative struct {
	Policy   *policy.Policy
	Result   *Result
	Tradeoff Tradeoff
}

// Explanation is the structured input of a verbalizer: the solution's
// values and, per alternative, what it would gain and lose.
type Explanation struct {
	ID           uuid.UUID
	Solution     *Result
	Alternatives []Alternative
}

// Explain evaluates solution and every alternative and compares each
// alternative against the solution. Alternatives are evaluated
// concurrently, at most Workers at a time, and keep their input order.
func (e *Evaluator) Explain(ctx context.Context, x *xmdp.XMDP, solution *policy.Policy, alternatives []*policy.Policy) (*Explanation, error) {
	ctx, span := tracer.Start(ctx, "analysis.Explain")
	defer span.End()

	sol, err := e.Evaluate(ctx, x, solution)
	if err != nil {
		return nil, fmt.Errorf("analysis: explain solution: %w", err)
	}

	results := make([]*Result, len(alternatives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, alt := range alternatives {
		g.Go(func() error {
			r, err := e.Evaluate(gctx, x, alt)
			if err != nil {
				return fmt.Errorf("analysis: explain alternative %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	exp := &Explanation{ID: uuid.New(), Solution: sol, Alternatives: make([]Alternative, len(alternatives))}
	for i, r := range results {
		exp.Alternatives[i] = Alternative{Policy: alternatives[i], Result: r, Tradeoff: Compare(sol, r)}
	}
	e.logger.Info("analysis: explanation built",
		"explanation_id", exp.ID, "alternatives", len(alternatives), "solution_cost", sol.Cost)
	return exp, nil
}
