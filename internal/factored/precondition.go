package factored

// Precondition records, per action, the legal values of each restricted
// state variable. Variables without a restriction accept every value.
type Precondition struct {
	def   *ActionDefinition
	legal map[string]map[string]map[string]*StateVar
}

// NewPrecondition creates an unrestricted precondition for def.
func NewPrecondition(def *ActionDefinition) *Precondition {
	return &Precondition{def: def, legal: make(map[string]map[string]map[string]*StateVar)}
}

func (p *Precondition) ActionDefinition() *ActionDefinition { return p.def }

// Add marks vars as legal source values for a. Repeated calls for the same
// definition widen its legal set.
func (p *Precondition) Add(a Action, vars ...*StateVar) error {
	if !p.def.Contains(a) {
		return &IncompatibleActionError{Action: ActionKey(a), Definition: p.def.name}
	}
	k := ActionKey(a)
	byDef, ok := p.legal[k]
	if !ok {
		byDef = make(map[string]map[string]*StateVar)
		p.legal[k] = byDef
	}
	for _, v := range vars {
		set, ok := byDef[v.def.name]
		if !ok {
			set = make(map[string]*StateVar)
			byDef[v.def.name] = set
		}
		set[KeyOf(v.value)] = v
	}
	return nil
}

// Restricted reports whether a has a legal set for def.
func (p *Precondition) Restricted(a Action, def *StateVarDefinition) bool {
	_, ok := p.legal[ActionKey(a)][def.name]
	return ok
}

// ApplicableValues returns the legal values of def for a, in def's
// declaration order. Unrestricted definitions return every possible value.
func (p *Precondition) ApplicableValues(a Action, def *StateVarDefinition) []*StateVar {
	set, restricted := p.legal[ActionKey(a)][def.name]
	out := make([]*StateVar, 0, len(def.values))
	for _, v := range def.values {
		k := KeyOf(v)
		if restricted {
			if _, ok := set[k]; !ok {
				continue
			}
		}
		out = append(out, def.vars[k])
	}
	return out
}

// IsApplicable reports whether a may be taken in state: a belongs to the
// definition and every restricted variable assigned in state holds a legal
// value.
func (p *Precondition) IsApplicable(a Action, state *StateVarTuple) bool {
	if !p.def.Contains(a) {
		return false
	}
	for name, set := range p.legal[ActionKey(a)] {
		v, ok := state.vars[name]
		if !ok {
			continue
		}
		if _, legal := set[KeyOf(v.value)]; !legal {
			return false
		}
	}
	return true
}

// Check is IsApplicable returning a *PreconditionViolationError.
func (p *Precondition) Check(a Action, state *StateVarTuple) error {
	if !p.def.Contains(a) {
		return &IncompatibleActionError{Action: ActionKey(a), Definition: p.def.name}
	}
	if !p.IsApplicable(a, state) {
		return &PreconditionViolationError{Action: ActionKey(a), State: state.Key()}
	}
	return nil
}
