package factored

import "fmt"

// StateSpace is the ordered collection of state-variable definitions.
type StateSpace struct {
	defs   []*StateVarDefinition
	byName map[string]*StateVarDefinition
}

func NewStateSpace() *StateSpace {
	return &StateSpace{byName: make(map[string]*StateVarDefinition)}
}

// Add registers definitions. Names must be unique.
func (s *StateSpace) Add(defs ...*StateVarDefinition) error {
	for _, d := range defs {
		if existing, ok := s.byName[d.name]; ok {
			if existing == d {
				continue
			}
			return fmt.Errorf("factored: duplicate state variable definition %q", d.name)
		}
		s.byName[d.name] = d
		s.defs = append(s.defs, d)
	}
	return nil
}

// Definition looks up a definition by name.
func (s *StateSpace) Definition(name string) (*StateVarDefinition, bool) {
	d, ok := s.byName[name]
	return d, ok
}

func (s *StateSpace) Contains(d *StateVarDefinition) bool {
	existing, ok := s.byName[d.name]
	return ok && existing == d
}

func (s *StateSpace) Definitions() []*StateVarDefinition {
	out := make([]*StateVarDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Size is the number of joint states (product of domain sizes).
func (s *StateSpace) Size() int {
	if len(s.defs) == 0 {
		return 0
	}
	n := 1
	for _, d := range s.defs {
		n *= len(d.values)
	}
	return n
}

// ForEachState calls fn for every joint assignment in lexicographic order of
// definition registration. Returning an error stops the walk.
func (s *StateSpace) ForEachState(fn func(*StateVarTuple) error) error {
	return crossProduct(s.defs, nil, func(vars []*StateVar) error {
		return fn(NewStateVarTuple(vars...))
	})
}

// ActionSpace is the ordered collection of action definitions. It indexes
// each action to its defining (non-composite) definition and each
// constituent definition to its owning composite.
type ActionSpace struct {
	defs     []*ActionDefinition
	byName   map[string]*ActionDefinition
	owner    map[string]*ActionDefinition
	defining map[string]*ActionDefinition
}

func NewActionSpace() *ActionSpace {
	return &ActionSpace{
		byName:   make(map[string]*ActionDefinition),
		owner:    make(map[string]*ActionDefinition),
		defining: make(map[string]*ActionDefinition),
	}
}

// Add registers definitions. A composite's constituents are registered with
// it; a constituent may be owned by exactly one composite, and an action may
// be defined by exactly one primitive definition.
func (s *ActionSpace) Add(defs ...*ActionDefinition) error {
	for _, d := range defs {
		if d.IsComposite() {
			if len(d.constituents) < 2 {
				return fmt.Errorf("factored: composite action definition %q needs at least 2 constituents", d.name)
			}
			for _, c := range d.constituents {
				if c.IsComposite() {
					return fmt.Errorf("factored: composite %q cannot own composite %q", d.name, c.name)
				}
				if err := s.register(c); err != nil {
					return err
				}
				if parent, ok := s.owner[c.name]; ok && parent != d {
					return fmt.Errorf("factored: %q is already a constituent of %q", c.name, parent.name)
				}
				s.owner[c.name] = d
			}
		}
		if err := s.register(d); err != nil {
			return err
		}
	}
	return nil
}

func (s *ActionSpace) register(d *ActionDefinition) error {
	if existing, ok := s.byName[d.name]; ok {
		if existing == d {
			return nil
		}
		return fmt.Errorf("factored: duplicate action definition %q", d.name)
	}
	if !d.IsComposite() {
		for _, a := range d.actions {
			k := ActionKey(a)
			if other, ok := s.defining[k]; ok {
				return fmt.Errorf("factored: action %s defined by both %q and %q", k, other.name, d.name)
			}
			s.defining[k] = d
		}
	}
	s.byName[d.name] = d
	s.defs = append(s.defs, d)
	return nil
}

func (s *ActionSpace) Definitions() []*ActionDefinition {
	out := make([]*ActionDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Definition looks up a definition by name.
func (s *ActionSpace) Definition(name string) (*ActionDefinition, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// DefinitionOf returns the primitive definition that defines a.
func (s *ActionSpace) DefinitionOf(a Action) (*ActionDefinition, error) {
	d, ok := s.defining[ActionKey(a)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, ActionKey(a))
	}
	return d, nil
}

// ParentComposite returns the composite definition owning def, if any.
func (s *ActionSpace) ParentComposite(def *ActionDefinition) (*ActionDefinition, bool) {
	p, ok := s.owner[def.name]
	return p, ok
}

// Action resolves an action by name prefix and parameter keys.
func (s *ActionSpace) Action(prefix string, paramKeys ...string) (Action, error) {
	key := prefix + "(" + joinKeys(paramKeys) + ")"
	d, ok := s.defining[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, key)
	}
	a, _ := d.Action(key)
	return a, nil
}

// Actions returns every primitive action in registration order.
func (s *ActionSpace) Actions() []Action {
	var out []Action
	for _, d := range s.defs {
		if !d.IsComposite() {
			out = append(out, d.actions...)
		}
	}
	return out
}

func crossProduct(defs []*StateVarDefinition, acc []*StateVar, fn func([]*StateVar) error) error {
	if len(defs) == 0 {
		return fn(acc)
	}
	for _, v := range defs[0].values {
		next := append(acc[:len(acc):len(acc)], defs[0].vars[KeyOf(v)])
		if err := crossProduct(defs[1:], next, fn); err != nil {
			return err
		}
	}
	return nil
}
