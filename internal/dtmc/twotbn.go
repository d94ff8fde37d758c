package dtmc

import (
	"sort"

	"github.com/ashita-ai/xplan/internal/factored"
)

// Entry is the policy-selected action in one source state and the
// distribution of every effect class it touches.
type Entry struct {
	State   *factored.StateVarTuple
	Action  factored.Action
	effects map[string]*factored.ProbabilisticEffect
	order   []string
}

// Effect returns the distribution over ec's next values.
func (e *Entry) Effect(ec factored.EffectClass) (*factored.ProbabilisticEffect, bool) {
	pe, ok := e.effects[ec.Key()]
	return pe, ok
}

// Effects returns one distribution per effect class, sorted by class key.
func (e *Entry) Effects() []*factored.ProbabilisticEffect {
	keys := append([]string(nil), e.order...)
	sort.Strings(keys)
	out := make([]*factored.ProbabilisticEffect, len(keys))
	for i, k := range keys {
		out[i] = e.effects[k]
	}
	return out
}

// EffectClasses returns the classes of Effects, in the same order.
func (e *Entry) EffectClasses() []factored.EffectClass {
	effects := e.Effects()
	out := make([]factored.EffectClass, len(effects))
	for i, pe := range effects {
		out[i] = pe.Class()
	}
	return out
}

func (e *Entry) equal(other *Entry) bool {
	if factored.ActionKey(e.Action) != factored.ActionKey(other.Action) || len(e.effects) != len(other.effects) {
		return false
	}
	for k, pe := range e.effects {
		o, ok := other.effects[k]
		if !ok || !pe.Equal(o) {
			return false
		}
	}
	return true
}

// TwoTBN is the two-step Bayesian network of one action type restricted to
// the states where a policy selects an action of that type.
type TwoTBN struct {
	def     *factored.ActionDefinition
	entries map[string]*Entry
}

func NewTwoTBN(def *factored.ActionDefinition) *TwoTBN {
	return &TwoTBN{def: def, entries: make(map[string]*Entry)}
}

func (t *TwoTBN) ActionDefinition() *factored.ActionDefinition { return t.def }

// Add records the distribution of one effect class for (state, a). If state
// already holds a different action, its entry is replaced.
func (t *TwoTBN) Add(state *factored.StateVarTuple, a factored.Action, pe *factored.ProbabilisticEffect) {
	k := state.Key()
	e, ok := t.entries[k]
	if !ok || factored.ActionKey(e.Action) != factored.ActionKey(a) {
		e = &Entry{State: state, Action: a, effects: make(map[string]*factored.ProbabilisticEffect)}
		t.entries[k] = e
	}
	ck := pe.Class().Key()
	if _, seen := e.effects[ck]; !seen {
		e.order = append(e.order, ck)
	}
	e.effects[ck] = pe
}

// Entry returns the entry for state.
func (t *TwoTBN) Entry(state *factored.StateVarTuple) (*Entry, bool) {
	e, ok := t.entries[state.Key()]
	return e, ok
}

func (t *TwoTBN) Len() int { return len(t.entries) }

// Entries returns every entry sorted by state key.
func (t *TwoTBN) Entries() []*Entry {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Entry, len(keys))
	for i, k := range keys {
		out[i] = t.entries[k]
	}
	return out
}

// Equal reports structural equality: same states, actions and per-class
// distributions.
func (t *TwoTBN) Equal(other *TwoTBN) bool {
	if t.def.Name() != other.def.Name() || len(t.entries) != len(other.entries) {
		return false
	}
	for k, e := range t.entries {
		o, ok := other.entries[k]
		if !ok || !e.equal(o) {
			return false
		}
	}
	return true
}
