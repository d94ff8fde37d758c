// Package xmdp holds the aggregate root of a planning problem: state and
// action spaces, initial state, goal, transition function, QA space and
// cost function. An XMDP is immutable once built.
package xmdp

import (
	"errors"
	"fmt"

	"github.com/ashita-ai/xplan/internal/cost"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/qa"
)

// ErrMalformed is wrapped by every Build validation failure.
var ErrMalformed = errors.New("xmdp: malformed problem")

// XMDP is a factored, multi-objective MDP.
type XMDP struct {
	states      *factored.StateSpace
	actions     *factored.ActionSpace
	initial     *factored.StateVarTuple
	goal        *factored.StateVarTuple
	transitions *factored.TransitionFunction
	qspace      *qa.QSpace
	costFn      *cost.CostFunction
}

func (x *XMDP) StateSpace() *factored.StateSpace { return x.states }
func (x *XMDP) ActionSpace() *factored.ActionSpace { return x.actions }
func (x *XMDP) InitialState() *factored.StateVarTuple { return x.initial }
func (x *XMDP) Goal() *factored.StateVarTuple { return x.goal }
func (x *XMDP) TransitionFunction() *factored.TransitionFunction { return x.transitions }
func (x *XMDP) QSpace() *qa.QSpace { return x.qspace }
func (x *XMDP) CostFunction() *cost.CostFunction { return x.costFn }

// HasGoal reports whether the problem is goal-directed (SSP).
func (x *XMDP) HasGoal() bool { return !x.goal.IsEmpty() }

// IsGoal reports whether state satisfies the (partial) goal.
func (x *XMDP) IsGoal(state *factored.StateVarTuple) bool {
	return x.HasGoal() && state.Contains(x.goal)
}

// Enumerate calls fn for every probabilistic transition of every primitive
// action, covering both composite and own effect classes. It is the hook
// a solver-export adapter walks.
func (x *XMDP) Enumerate(fn func(factored.ProbabilisticTransition) error) error {
	for _, a := range x.actions.Actions() {
		descs, err := x.transitions.Resolve(x.actions, a)
		if err != nil {
			return fmt.Errorf("xmdp: enumerate %s: %w", factored.ActionKey(a), err)
		}
		for _, d := range descs {
			ts, err := d.ProbabilisticTransitions(a)
			if err != nil {
				return fmt.Errorf("xmdp: enumerate %s on %s: %w", factored.ActionKey(a), d.EffectClass().Key(), err)
			}
			for _, t := range ts {
				if err := fn(t); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Builder assembles and validates an XMDP.
type Builder struct {
	x XMDP
}

func NewBuilder() *Builder {
	return &Builder{x: XMDP{
		initial: factored.NewStateVarTuple(),
		goal:    factored.NewStateVarTuple(),
	}}
}

func (b *Builder) StateSpace(s *factored.StateSpace) *Builder { b.x.states = s; return b }
func (b *Builder) ActionSpace(s *factored.ActionSpace) *Builder { b.x.actions = s; return b }
func (b *Builder) InitialState(s *factored.StateVarTuple) *Builder { b.x.initial = s; return b }
func (b *Builder) Goal(s *factored.StateVarTuple) *Builder { b.x.goal = s; return b }
func (b *Builder) TransitionFunction(t *factored.TransitionFunction) *Builder { b.x.transitions = t; return b }
func (b *Builder) QSpace(q *qa.QSpace) *Builder { b.x.qspace = q; return b }
func (b *Builder) CostFunction(c *cost.CostFunction) *Builder { b.x.costFn = c; return b }

// Build validates the parts and returns the XMDP.
//
// Checks: every part is set; the initial state assigns every state
// variable; goal variables belong to the state space; every primitive
// action type has its own PSO or a parent composite PSO; composite and
// constituent effect classes are disjoint; every cost term names a
// QFunction of the QSpace; scaling constants are valid.
func (b *Builder) Build() (*XMDP, error) {
	x := b.x
	switch {
	case x.states == nil:
		return nil, fmt.Errorf("%w: no state space", ErrMalformed)
	case x.actions == nil:
		return nil, fmt.Errorf("%w: no action space", ErrMalformed)
	case x.transitions == nil:
		return nil, fmt.Errorf("%w: no transition function", ErrMalformed)
	case x.qspace == nil:
		return nil, fmt.Errorf("%w: no QA space", ErrMalformed)
	case x.costFn == nil:
		return nil, fmt.Errorf("%w: no cost function", ErrMalformed)
	}

	for _, def := range x.states.Definitions() {
		if _, ok := x.initial.Get(def); !ok {
			return nil, fmt.Errorf("%w: initial state does not assign %q", ErrMalformed, def.Name())
		}
	}
	if x.initial.Len() != len(x.states.Definitions()) {
		return nil, fmt.Errorf("%w: initial state assigns variables outside the state space", ErrMalformed)
	}
	for _, v := range x.goal.Vars() {
		if !x.states.Contains(v.Definition()) {
			return nil, fmt.Errorf("%w: goal variable %q is not in the state space", ErrMalformed, v.Name())
		}
	}

	for _, def := range x.actions.Definitions() {
		if def.IsComposite() || x.transitions.HasPSO(def) {
			continue
		}
		if parent, ok := x.actions.ParentComposite(def); ok && x.transitions.HasPSO(parent) {
			continue
		}
		return nil, fmt.Errorf("%w: action definition %q has no PSO", ErrMalformed, def.Name())
	}
	if err := x.transitions.CheckDisjoint(x.actions); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	for _, q := range x.costFn.QFunctions() {
		if !x.qspace.Contains(q) {
			return nil, fmt.Errorf("%w: cost term %q is not in the QA space", ErrMalformed, q.Name())
		}
	}
	if err := x.costFn.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	built := x
	return &built, nil
}
