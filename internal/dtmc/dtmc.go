// Package dtmc induces the discrete-time Markov chain a policy selects from
// a factored MDP and expands its joint successor distributions.
//
// Induction only visits (state, action) pairs the policy names, so the
// factored transition function is never enumerated in full.
package dtmc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/telemetry"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// ErrMalformedDomain wraps variable-class mismatches hit while projecting a
// state onto a discriminant class. It indicates a broken domain model.
var ErrMalformedDomain = errors.New("dtmc: malformed domain")

var inductionDuration, _ = telemetry.Meter("xplan/dtmc").Float64Histogram("xplan.induction.duration",
	metric.WithDescription("Time to induce a chain from a policy (ms)"),
	metric.WithUnit("ms"),
)

// XDTMC maps every action type a policy uses to its TwoTBN.
type XDTMC struct {
	tbns    map[string]*TwoTBN
	order   []string
	byState map[string]*TwoTBN
}

func newXDTMC() *XDTMC {
	return &XDTMC{tbns: make(map[string]*TwoTBN), byState: make(map[string]*TwoTBN)}
}

// Induce builds the chain selected by p from x. For each decision it
// evaluates the parent composite PSO's effect classes first, then the
// action's own PSO's, and records every per-class distribution. A decision
// whose action is not applicable in its state fails with a
// *factored.PreconditionViolationError.
func Induce(ctx context.Context, x *xmdp.XMDP, p *policy.Policy) (*XDTMC, error) {
	start := time.Now()
	m := newXDTMC()
	actions, transitions := x.ActionSpace(), x.TransitionFunction()

	for _, d := range p.Decisions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def, err := actions.DefinitionOf(d.Action)
		if err != nil {
			return nil, fmt.Errorf("dtmc: induce: %w", err)
		}
		if err := transitions.CheckApplicable(actions, d.Action, d.State); err != nil {
			return nil, fmt.Errorf("dtmc: induce: %w", err)
		}
		descs, err := transitions.Resolve(actions, d.Action)
		if err != nil {
			return nil, fmt.Errorf("dtmc: induce: %w", err)
		}
		tbn := m.twoTBNFor(def)
		m.byState[d.State.Key()] = tbn
		for _, desc := range descs {
			discr, err := factored.DiscriminantOf(desc.DiscriminantClass(), d.State)
			if err != nil {
				return nil, fmt.Errorf("%w: %s in %s: %w", ErrMalformedDomain, desc.EffectClass().Key(), d.State.Key(), err)
			}
			pe, err := desc.ProbabilisticEffect(discr, d.Action)
			if err != nil {
				return nil, fmt.Errorf("dtmc: induce %s in %s: %w", factored.ActionKey(d.Action), d.State.Key(), err)
			}
			tbn.Add(d.State, d.Action, pe)
		}
	}

	inductionDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Int("decisions", p.Len())))
	return m, nil
}

func (m *XDTMC) twoTBNFor(def *factored.ActionDefinition) *TwoTBN {
	t, ok := m.tbns[def.Name()]
	if !ok {
		t = NewTwoTBN(def)
		m.tbns[def.Name()] = t
		m.order = append(m.order, def.Name())
	}
	return t
}

// TwoTBN returns the network of def.
func (m *XDTMC) TwoTBN(def *factored.ActionDefinition) (*TwoTBN, bool) {
	t, ok := m.tbns[def.Name()]
	return t, ok
}

// ActionDefinitions returns the action types the policy uses, sorted by
// name.
func (m *XDTMC) ActionDefinitions() []*factored.ActionDefinition {
	names := append([]string(nil), m.order...)
	sort.Strings(names)
	out := make([]*factored.ActionDefinition, len(names))
	for i, n := range names {
		out[i] = m.tbns[n].def
	}
	return out
}

// Entry returns the policy-selected entry for state.
func (m *XDTMC) Entry(state *factored.StateVarTuple) (*Entry, bool) {
	t, ok := m.byState[state.Key()]
	if !ok {
		return nil, false
	}
	return t.Entry(state)
}

func (m *XDTMC) Equal(other *XDTMC) bool {
	if len(m.tbns) != len(other.tbns) {
		return false
	}
	for n, t := range m.tbns {
		o, ok := other.tbns[n]
		if !ok || !t.Equal(o) {
			return false
		}
	}
	return true
}

// Successor is one joint next state and its probability.
type Successor struct {
	State       *factored.StateVarTuple
	Probability float64
}

// Successors expands the joint next-state distribution of state as the
// product of its per-class distributions. Variables outside every effect
// class keep their value. Reports false if the policy has no decision for
// state.
func (m *XDTMC) Successors(state *factored.StateVarTuple) (factored.Action, []Successor, bool) {
	e, ok := m.Entry(state)
	if !ok {
		return nil, nil, false
	}
	out := []Successor{{State: state, Probability: 1}}
	for _, pe := range e.Effects() {
		outcomes := pe.Outcomes()
		next := make([]Successor, 0, len(out)*len(outcomes))
		for _, s := range out {
			for _, o := range outcomes {
				if o.Probability == 0 {
					continue
				}
				next = append(next, Successor{
					State:       s.State.With(o.Effect.Tuple().Vars()...),
					Probability: s.Probability * o.Probability,
				})
			}
		}
		out = next
	}
	return e.Action, out, true
}
