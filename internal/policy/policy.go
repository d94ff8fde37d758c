// Package policy holds explicit state-to-action mappings and their
// persisted record format.
package policy

import (
	"sort"

	"github.com/ashita-ai/xplan/internal/factored"
)

// Decision is one (state, action) pair of a policy.
type Decision struct {
	State  *factored.StateVarTuple
	Action factored.Action
}

// Policy maps states to actions. Putting a decision for a state that
// already has one replaces it.
type Policy struct {
	decisions map[string]Decision
}

func New() *Policy {
	return &Policy{decisions: make(map[string]Decision)}
}

// Put records the decision for state, replacing any earlier one.
func (p *Policy) Put(state *factored.StateVarTuple, a factored.Action) {
	p.decisions[state.Key()] = Decision{State: state, Action: a}
}

func (p *Policy) Remove(state *factored.StateVarTuple) {
	delete(p.decisions, state.Key())
}

// Action returns the action chosen in state.
func (p *Policy) Action(state *factored.StateVarTuple) (factored.Action, bool) {
	d, ok := p.decisions[state.Key()]
	if !ok {
		return nil, false
	}
	return d.Action, true
}

func (p *Policy) Len() int { return len(p.decisions) }

// Decisions returns every decision sorted by state key.
func (p *Policy) Decisions() []Decision {
	keys := make([]string, 0, len(p.decisions))
	for k := range p.decisions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Decision, len(keys))
	for i, k := range keys {
		out[i] = p.decisions[k]
	}
	return out
}

// Equal reports whether both policies choose the same action in the same
// set of states.
func (p *Policy) Equal(other *Policy) bool {
	if len(p.decisions) != len(other.decisions) {
		return false
	}
	for k, d := range p.decisions {
		o, ok := other.decisions[k]
		if !ok || factored.ActionKey(d.Action) != factored.ActionKey(o.Action) {
			return false
		}
	}
	return true
}
