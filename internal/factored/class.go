package factored

import "sort"

// varSet is an ordered set of state-variable definitions with a stable key.
type varSet struct {
	defs []*StateVarDefinition
	key  string
}

func newVarSet(defs []*StateVarDefinition) varSet {
	seen := make(map[string]*StateVarDefinition, len(defs))
	for _, d := range defs {
		seen[d.name] = d
	}
	names := sortedKeys(seen)
	out := varSet{defs: make([]*StateVarDefinition, 0, len(names))}
	for _, n := range names {
		out.defs = append(out.defs, seen[n])
	}
	out.key = "{" + joinKeys(names) + "}"
	return out
}

// Definitions returns the member definitions sorted by name.
func (s varSet) Definitions() []*StateVarDefinition {
	out := make([]*StateVarDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Contains reports whether d is a member.
func (s varSet) Contains(d *StateVarDefinition) bool {
	i := sort.Search(len(s.defs), func(i int) bool { return s.defs[i].name >= d.name })
	return i < len(s.defs) && s.defs[i] == d
}

func (s varSet) Key() string { return s.key }
func (s varSet) String() string { return s.key }
func (s varSet) Len() int { return len(s.defs) }

// EffectClass identifies the variables whose next values one formula sets.
type EffectClass struct{ varSet }

func NewEffectClass(defs ...*StateVarDefinition) EffectClass {
	return EffectClass{newVarSet(defs)}
}

// Overlaps reports whether the classes share a definition.
func (c EffectClass) Overlaps(other EffectClass) bool {
	for _, d := range other.defs {
		if c.Contains(d) {
			return true
		}
	}
	return false
}

// DiscriminantClass identifies the variables a formula reads.
type DiscriminantClass struct{ varSet }

func NewDiscriminantClass(defs ...*StateVarDefinition) DiscriminantClass {
	return DiscriminantClass{newVarSet(defs)}
}

// classTuple is a tuple restricted to the definitions of one class.
type classTuple struct {
	set   varSet
	scope string
	tuple *StateVarTuple
}

func (t *classTuple) add(v *StateVar) error {
	if !t.set.Contains(v.def) {
		return &IncompatibleVarError{Var: v.def.name, Scope: t.scope + " " + t.set.key}
	}
	t.tuple.add(v)
	return nil
}

// Effect is an assignment to the variables of one effect class.
type Effect struct {
	class EffectClass
	classTuple
}

// NewEffect creates an effect for class from vars.
func NewEffect(class EffectClass, vars ...*StateVar) (*Effect, error) {
	e := &Effect{class: class, classTuple: classTuple{set: class.varSet, scope: "effect class", tuple: NewStateVarTuple()}}
	for _, v := range vars {
		if err := e.Add(v); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// MustEffect is NewEffect for statically known variables.
func MustEffect(class EffectClass, vars ...*StateVar) *Effect {
	e, err := NewEffect(class, vars...)
	if err != nil {
		panic(err)
	}
	return e
}

// Add assigns a variable of the effect class.
func (e *Effect) Add(v *StateVar) error { return e.add(v) }

func (e *Effect) Class() EffectClass { return e.class }
func (e *Effect) Tuple() *StateVarTuple { return e.tuple }
func (e *Effect) Key() string { return e.tuple.Key() }
func (e *Effect) String() string { return e.tuple.Key() }
func (e *Effect) Value(d *StateVarDefinition) (Value, error) { return e.tuple.Value(d) }

// complete reports whether every class definition is assigned.
func (e *Effect) complete() bool { return e.tuple.Len() == e.class.Len() }

// Discriminant is an assignment to the variables of one discriminant class,
// used as formula input.
type Discriminant struct {
	class DiscriminantClass
	classTuple
}

// NewDiscriminant creates an empty discriminant for class.
func NewDiscriminant(class DiscriminantClass) *Discriminant {
	return &Discriminant{class: class, classTuple: classTuple{set: class.varSet, scope: "discriminant class", tuple: NewStateVarTuple()}}
}

// DiscriminantOf projects state onto class. Every class definition must be
// assigned in state.
func DiscriminantOf(class DiscriminantClass, state *StateVarTuple) (*Discriminant, error) {
	d := NewDiscriminant(class)
	for _, def := range class.defs {
		v, ok := state.Get(def)
		if !ok {
			return nil, &IncompatibleVarError{Var: def.name, Scope: "state {" + state.Key() + "}"}
		}
		if err := d.Add(v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add assigns a variable of the discriminant class.
func (d *Discriminant) Add(v *StateVar) error { return d.add(v) }

func (d *Discriminant) Class() DiscriminantClass { return d.class }
func (d *Discriminant) Tuple() *StateVarTuple { return d.tuple }
func (d *Discriminant) Key() string { return d.tuple.Key() }
func (d *Discriminant) String() string { return d.tuple.Key() }

// Value returns the discriminant's value for def.
func (d *Discriminant) Value(def *StateVarDefinition) (Value, error) {
	return d.tuple.Value(def)
}
