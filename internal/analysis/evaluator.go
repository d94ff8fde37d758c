// Package analysis evaluates policies over the chain they induce and
// explains the quality-attribute tradeoffs between a solution policy and
// its alternatives.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/xplan/internal/dtmc"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/qa"
	"github.com/ashita-ai/xplan/internal/telemetry"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// ErrNotConverged is returned when value iteration does not settle within
// the iteration limit, typically because the goal is unreachable under the
// policy.
var ErrNotConverged = errors.New("analysis: evaluation did not converge")

var (
	tracer    = telemetry.Tracer("xplan/analysis")
	evalMeter = telemetry.Meter("xplan/analysis")

	evalDuration, _ = evalMeter.Float64Histogram("xplan.evaluation.duration",
		metric.WithDescription("Time to evaluate one policy (ms)"),
		metric.WithUnit("ms"),
	)
	policiesEvaluated, _ = evalMeter.Int64Counter("xplan.evaluation.policies",
		metric.WithDescription("Number of policies evaluated"),
	)
)

// Options tune policy evaluation.
type Options struct {
	// Tolerance is the largest per-state change at which iteration stops.
	Tolerance float64
	// MaxIterations bounds value iteration.
	MaxIterations int
	// Discount applies only to problems without a goal. Must be in (0,1).
	Discount float64
	// Workers bounds concurrent alternative evaluations in Explain.
	Workers int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Tolerance: 1e-9, MaxIterations: 100000, Discount: 0.95, Workers: 4}
}

// Result is the expected cumulative value of every QA and of the cost
// under one policy, from the initial state.
type Result struct {
	QAValues        map[string]float64
	Cost            float64
	ReachableStates int
	// MissingStates counts reachable non-goal states with no decision. They
	// are treated as absorbing.
	MissingStates int
	Iterations    int
}

// Evaluator computes Results. It is safe for concurrent use; all state it
// touches besides its own logger is the read-only XMDP.
type Evaluator struct {
	logger *slog.Logger
	opts   Options
}

func NewEvaluator(logger *slog.Logger, opts Options) *Evaluator {
	def := DefaultOptions()
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Discount <= 0 || opts.Discount >= 1 {
		opts.Discount = def.Discount
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	return &Evaluator{logger: logger, opts: opts}
}

func (e *Evaluator) Options() Options { return e.opts }

// edge is one reachable transition with its per-column rewards: one column
// per QFunction followed by the transition cost.
type edge struct {
	dest    int
	prob    float64
	rewards []float64
}

// chain is the reachable part of an induced XDTMC, indexed densely.
type chain struct {
	states   []*factored.StateVarTuple
	edges    [][]edge
	terminal []bool
	missing  int
}

// Evaluate induces the chain p selects from x and computes the expected
// cumulative QA values and cost from the initial state: total until the
// goal if x has one, discounted otherwise. QFunctions are evaluated only on
// reachable transitions.
func (e *Evaluator) Evaluate(ctx context.Context, x *xmdp.XMDP, p *policy.Policy) (*Result, error) {
	ctx, span := tracer.Start(ctx, "analysis.Evaluate",
		trace.WithAttributes(attribute.Int("policy.decisions", p.Len())))
	defer span.End()
	start := time.Now()

	m, err := dtmc.Induce(ctx, x, p)
	if err != nil {
		return nil, fmt.Errorf("analysis: evaluate: %w", err)
	}
	fns := x.QSpace().QFunctions()
	c, err := explore(x, m, fns)
	if err != nil {
		return nil, fmt.Errorf("analysis: evaluate: %w", err)
	}
	if c.missing > 0 {
		e.logger.Warn("analysis: policy has no decision for reachable states",
			"missing", c.missing, "reachable", len(c.states))
	}

	discount := 1.0
	if !x.HasGoal() {
		discount = e.opts.Discount
	}
	values, iters, err := e.iterate(ctx, c, len(fns)+1, discount)
	if err != nil {
		return nil, err
	}

	res := &Result{
		QAValues:        make(map[string]float64, len(fns)),
		Cost:            values[len(fns)],
		ReachableStates: len(c.states),
		MissingStates:   c.missing,
		Iterations:      iters,
	}
	for i, f := range fns {
		res.QAValues[f.Name()] = values[i]
	}

	span.SetAttributes(attribute.Int("chain.states", len(c.states)), attribute.Int("iterations", iters))
	evalDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	policiesEvaluated.Add(ctx, 1)
	e.logger.Debug("analysis: policy evaluated",
		"states", len(c.states), "iterations", iters, "cost", res.Cost)
	return res, nil
}

// explore walks the chain breadth-first from the initial state. Goal states
// and states without a decision are terminal.
func explore(x *xmdp.XMDP, m *dtmc.XDTMC, fns []qa.QFunction) (*chain, error) {
	c := &chain{}
	index := make(map[string]int)
	visit := func(s *factored.StateVarTuple) int {
		if i, ok := index[s.Key()]; ok {
			return i
		}
		i := len(c.states)
		index[s.Key()] = i
		c.states = append(c.states, s)
		c.edges = append(c.edges, nil)
		c.terminal = append(c.terminal, false)
		return i
	}
	visit(x.InitialState())

	costFn := x.CostFunction()
	for i := 0; i < len(c.states); i++ {
		src := c.states[i]
		if x.IsGoal(src) {
			c.terminal[i] = true
			continue
		}
		a, succ, ok := m.Successors(src)
		if !ok {
			c.terminal[i] = true
			c.missing++
			continue
		}
		for _, s := range succ {
			rewards, err := transitionRewards(fns, costFn.TransitionCost, a, src, s.State)
			if err != nil {
				return nil, err
			}
			j := visit(s.State)
			c.edges[i] = append(c.edges[i], edge{dest: j, prob: s.Probability, rewards: rewards})
		}
	}
	return c, nil
}

func transitionRewards(fns []qa.QFunction, costOf func(map[string]float64) float64, a factored.Action, src, dest *factored.StateVarTuple) ([]float64, error) {
	rewards := make([]float64, len(fns)+1)
	values := make(map[string]float64, len(fns))
	for i, f := range fns {
		s := f.Structure()
		if !s.Applies(a) {
			continue
		}
		t, err := s.Bind(a, src, dest)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", f.Name(), err)
		}
		v, err := f.Value(t)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", f.Name(), factored.ActionKey(a), err)
		}
		rewards[i] = v
		values[f.Name()] = v
	}
	rewards[len(fns)] = costOf(values)
	return rewards, nil
}

// iterate runs Gauss-Seidel value iteration over every column at once and
// returns the initial state's values.
func (e *Evaluator) iterate(ctx context.Context, c *chain, cols int, discount float64) ([]float64, int, error) {
	v := make([][]float64, len(c.states))
	for i := range v {
		v[i] = make([]float64, cols)
	}
	for iter := 1; iter <= e.opts.MaxIterations; iter++ {
		if iter%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, iter, err
			}
		}
		var delta float64
		for i := range c.states {
			if c.terminal[i] {
				continue
			}
			for k := 0; k < cols; k++ {
				var sum float64
				for _, ed := range c.edges[i] {
					sum += ed.prob * (ed.rewards[k] + discount*v[ed.dest][k])
				}
				delta = math.Max(delta, math.Abs(sum-v[i][k]))
				v[i][k] = sum
			}
		}
		if delta < e.opts.Tolerance {
			return v[0], iter, nil
		}
	}
	return nil, e.opts.MaxIterations, fmt.Errorf("%w after %d iterations", ErrNotConverged, e.opts.MaxIterations)
}
