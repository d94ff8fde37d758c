package factored

import "fmt"

// TransitionFunction maps every action type to its factored PSO.
type TransitionFunction struct {
	psos  map[string]*FactoredPSO
	order []string
}

func NewTransitionFunction() *TransitionFunction {
	return &TransitionFunction{psos: make(map[string]*FactoredPSO)}
}

// Add registers PSOs. At most one PSO per action definition.
func (t *TransitionFunction) Add(psos ...*FactoredPSO) error {
	for _, p := range psos {
		name := p.def.name
		if _, dup := t.psos[name]; dup {
			return fmt.Errorf("factored: duplicate PSO for action definition %q", name)
		}
		t.psos[name] = p
		t.order = append(t.order, name)
	}
	return nil
}

// PSO returns the operator of def.
func (t *TransitionFunction) PSO(def *ActionDefinition) (*FactoredPSO, error) {
	p, ok := t.psos[def.name]
	if !ok || p.def != def {
		return nil, fmt.Errorf("%w: %q", ErrPSONotFound, def.name)
	}
	return p, nil
}

func (t *TransitionFunction) HasPSO(def *ActionDefinition) bool {
	p, ok := t.psos[def.name]
	return ok && p.def == def
}

// PSOs returns every operator in registration order.
func (t *TransitionFunction) PSOs() []*FactoredPSO {
	out := make([]*FactoredPSO, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.psos[n])
	}
	return out
}

// Resolve returns every action description that applies to a: first the
// handlers of its parent composite PSO, then those of its own PSO. Parent
// handlers accept any constituent action.
func (t *TransitionFunction) Resolve(space *ActionSpace, a Action) ([]ActionDescription, error) {
	def, err := space.DefinitionOf(a)
	if err != nil {
		return nil, err
	}
	var out []ActionDescription
	if parent, ok := space.ParentComposite(def); ok && t.HasPSO(parent) {
		out = append(out, t.psos[parent.name].ActionDescriptions()...)
	}
	if t.HasPSO(def) {
		out = append(out, t.psos[def.name].ActionDescriptions()...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no effect classes for %s", ErrPSONotFound, ActionKey(a))
	}
	return out, nil
}

// CheckDisjoint verifies that no constituent PSO handles an effect class
// overlapping one of its parent composite PSO's.
func (t *TransitionFunction) CheckDisjoint(space *ActionSpace) error {
	for _, own := range t.PSOs() {
		parent, ok := space.ParentComposite(own.def)
		if !ok {
			continue
		}
		pp, err := t.PSO(parent)
		if err != nil {
			continue
		}
		for _, ec := range own.classes {
			for _, pec := range pp.classes {
				if ec.Overlaps(pec) {
					return fmt.Errorf("%w: %s on %q and %s on %q", ErrOverlappingEffectClass, ec.Key(), own.def.name, pec.Key(), parent.name)
				}
			}
		}
	}
	return nil
}

// CheckApplicable verifies every precondition governing a holds in state.
func (t *TransitionFunction) CheckApplicable(space *ActionSpace, a Action, state *StateVarTuple) error {
	def, err := space.DefinitionOf(a)
	if err != nil {
		return err
	}
	checked := false
	if parent, ok := space.ParentComposite(def); ok {
		if p, err := t.PSO(parent); err == nil {
			if err := p.precondition.Check(a, state); err != nil {
				return err
			}
			checked = true
		}
	}
	if own, ok := t.psos[def.name]; ok && own.def == def {
		if err := own.precondition.Check(a, state); err != nil {
			return err
		}
		checked = true
	}
	if !checked {
		return fmt.Errorf("%w: no precondition for %s", ErrPSONotFound, ActionKey(a))
	}
	return nil
}
