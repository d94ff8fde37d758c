package factored

import (
	"fmt"
	"sync"
)

// ProbabilisticTransitionFormula computes the distribution over one effect
// class's next values given a discriminant and an action.
//
// The discriminant is guaranteed by the caller to satisfy the action's
// precondition. Implementations must be pure: results are memoized per
// (discriminant, action).
type ProbabilisticTransitionFormula interface {
	Formula(d *Discriminant, a Action) (*ProbabilisticEffect, error)
}

// FormulaFunc adapts a function to ProbabilisticTransitionFormula.
type FormulaFunc func(d *Discriminant, a Action) (*ProbabilisticEffect, error)

func (f FormulaFunc) Formula(d *Discriminant, a Action) (*ProbabilisticEffect, error) {
	return f(d, a)
}

// ProbabilisticTransition is one (discriminant, action, effect distribution)
// triple enumerated for solver export.
type ProbabilisticTransition struct {
	Discriminant *Discriminant
	Action       Action
	Effect       *ProbabilisticEffect
}

// ActionDescription resolves the effect of one action type on one effect
// class.
type ActionDescription interface {
	ActionDefinition() *ActionDefinition
	EffectClass() EffectClass
	DiscriminantClass() DiscriminantClass
	ProbabilisticEffect(d *Discriminant, a Action) (*ProbabilisticEffect, error)
	ProbabilisticTransitions(a Action) ([]ProbabilisticTransition, error)
}

// FormulaActionDescription is an ActionDescription backed by a formula.
// Results are cached and handed out as copies, so a description can be
// shared by concurrent readers.
type FormulaActionDescription struct {
	def          *ActionDefinition
	precondition *Precondition
	discrClass   DiscriminantClass
	effectClass  EffectClass
	formula      ProbabilisticTransitionFormula

	mu    sync.RWMutex
	cache map[string]*ProbabilisticEffect
}

// NewFormulaActionDescription creates a description of def's effect on
// effectClass, reading discrClass.
func NewFormulaActionDescription(def *ActionDefinition, precondition *Precondition, discrClass DiscriminantClass, effectClass EffectClass, formula ProbabilisticTransitionFormula) *FormulaActionDescription {
	return &FormulaActionDescription{
		def:          def,
		precondition: precondition,
		discrClass:   discrClass,
		effectClass:  effectClass,
		formula:      formula,
		cache:        make(map[string]*ProbabilisticEffect),
	}
}

func (f *FormulaActionDescription) ActionDefinition() *ActionDefinition { return f.def }
func (f *FormulaActionDescription) EffectClass() EffectClass { return f.effectClass }
func (f *FormulaActionDescription) DiscriminantClass() DiscriminantClass { return f.discrClass }

// ProbabilisticEffect evaluates the formula for (d, a).
func (f *FormulaActionDescription) ProbabilisticEffect(d *Discriminant, a Action) (*ProbabilisticEffect, error) {
	if !f.def.Contains(a) {
		return nil, &IncompatibleActionError{Action: ActionKey(a), Definition: f.def.name}
	}
	if d.class.Key() != f.discrClass.Key() {
		return nil, &IncompatibleVarError{Var: d.Key(), Scope: "discriminant class " + f.discrClass.Key()}
	}
	key := ActionKey(a) + "|" + d.Key()

	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	effect, err := f.formula.Formula(d, a)
	if err != nil {
		return nil, fmt.Errorf("factored: formula %s on %s: %w", f.effectClass.Key(), ActionKey(a), err)
	}
	if effect.class.Key() != f.effectClass.Key() {
		return nil, &IncompatibleVarError{Var: effect.class.Key(), Scope: "effect class " + f.effectClass.Key()}
	}

	f.mu.Lock()
	f.cache[key] = effect
	f.mu.Unlock()
	return effect.Clone(), nil
}

// ProbabilisticTransitions enumerates every discriminant applicable to a and
// its resulting distribution.
func (f *FormulaActionDescription) ProbabilisticTransitions(a Action) ([]ProbabilisticTransition, error) {
	if !f.def.Contains(a) {
		return nil, &IncompatibleActionError{Action: ActionKey(a), Definition: f.def.name}
	}
	defs := f.discrClass.defs
	choices := make([][]*StateVar, len(defs))
	for i, def := range defs {
		choices[i] = f.precondition.ApplicableValues(a, def)
	}

	var out []ProbabilisticTransition
	err := enumerate(choices, nil, func(vars []*StateVar) error {
		d := NewDiscriminant(f.discrClass)
		for _, v := range vars {
			if err := d.Add(v); err != nil {
				return err
			}
		}
		effect, err := f.ProbabilisticEffect(d, a)
		if err != nil {
			return err
		}
		out = append(out, ProbabilisticTransition{Discriminant: d, Action: a, Effect: effect})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func enumerate(choices [][]*StateVar, acc []*StateVar, fn func([]*StateVar) error) error {
	if len(choices) == 0 {
		return fn(acc)
	}
	for _, v := range choices[0] {
		if err := enumerate(choices[1:], append(acc[:len(acc):len(acc)], v), fn); err != nil {
			return err
		}
	}
	return nil
}
