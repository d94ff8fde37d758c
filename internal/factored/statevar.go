package factored

import (
	"fmt"
	"strings"
)

// StateVarDefinition is a named state variable and its finite set of
// possible values. It owns the canonical StateVar for each value.
type StateVarDefinition struct {
	name   string
	values []Value
	vars   map[string]*StateVar
}

// NewStateVarDefinition creates a definition over the given values.
// The set must be total: every value ever assigned to a variable of this
// definition has to be listed. Duplicate values are collapsed.
func NewStateVarDefinition(name string, values ...Value) *StateVarDefinition {
	d := &StateVarDefinition{
		name: name,
		vars: make(map[string]*StateVar, len(values)),
	}
	for _, v := range values {
		k := KeyOf(v)
		if _, dup := d.vars[k]; dup {
			continue
		}
		d.values = append(d.values, v)
		d.vars[k] = &StateVar{def: d, value: v}
	}
	return d
}

func (d *StateVarDefinition) Name() string { return d.name }

// PossibleValues returns the values in declaration order.
func (d *StateVarDefinition) PossibleValues() []Value {
	out := make([]Value, len(d.values))
	copy(out, d.values)
	return out
}

// StateVar returns the canonical variable for v, or false if v is not one of
// the definition's possible values.
func (d *StateVarDefinition) StateVar(v Value) (*StateVar, bool) {
	sv, ok := d.vars[KeyOf(v)]
	return sv, ok
}

// StateVarByKey looks up a variable by the canonical key of its value.
func (d *StateVarDefinition) StateVarByKey(key string) (*StateVar, bool) {
	sv, ok := d.vars[key]
	return sv, ok
}

// MustStateVar is StateVar for values known to be registered.
func (d *StateVarDefinition) MustStateVar(v Value) *StateVar {
	sv, ok := d.StateVar(v)
	if !ok {
		panic(fmt.Sprintf("factored: value %v is not a possible value of %q", v.Primitive(), d.name))
	}
	return sv
}

func (d *StateVarDefinition) String() string { return d.name }

// StateVar is an immutable (definition, value) pair.
type StateVar struct {
	def   *StateVarDefinition
	value Value
}

func (v *StateVar) Definition() *StateVarDefinition { return v.def }
func (v *StateVar) Value() Value { return v.value }
func (v *StateVar) Name() string { return v.def.name }

func (v *StateVar) String() string {
	return v.def.name + "=" + KeyOf(v.value)
}

// StateVarTuple is a full or partial assignment with at most one value per
// definition. It is used for states, discriminants, effects and goals.
type StateVarTuple struct {
	vars map[string]*StateVar
}

// NewStateVarTuple builds a tuple from vars. A later var for the same
// definition replaces an earlier one.
func NewStateVarTuple(vars ...*StateVar) *StateVarTuple {
	t := &StateVarTuple{vars: make(map[string]*StateVar, len(vars))}
	for _, v := range vars {
		t.vars[v.def.name] = v
	}
	return t
}

func (t *StateVarTuple) add(v *StateVar) {
	t.vars[v.def.name] = v
}

// Get returns the variable for def, if assigned.
func (t *StateVarTuple) Get(def *StateVarDefinition) (*StateVar, bool) {
	v, ok := t.vars[def.name]
	if !ok || v.def != def {
		return nil, false
	}
	return v, true
}

// Value returns the value assigned to def.
func (t *StateVarTuple) Value(def *StateVarDefinition) (Value, error) {
	v, ok := t.Get(def)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStateVarNotFound, def.name)
	}
	return v.value, nil
}

func (t *StateVarTuple) Len() int { return len(t.vars) }

func (t *StateVarTuple) IsEmpty() bool { return len(t.vars) == 0 }

// Vars returns the variables sorted by definition name.
func (t *StateVarTuple) Vars() []*StateVar {
	out := make([]*StateVar, 0, len(t.vars))
	for _, name := range sortedKeys(t.vars) {
		out = append(out, t.vars[name])
	}
	return out
}

// Key is the canonical string form of the tuple, usable as a map key.
func (t *StateVarTuple) Key() string {
	parts := make([]string, 0, len(t.vars))
	for _, name := range sortedKeys(t.vars) {
		parts = append(parts, t.vars[name].String())
	}
	return strings.Join(parts, ";")
}

func (t *StateVarTuple) String() string { return t.Key() }

// Equal reports whether both tuples hold the same (definition, value) pairs.
func (t *StateVarTuple) Equal(other *StateVarTuple) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.vars) != len(other.vars) {
		return false
	}
	return t.Contains(other)
}

// Contains reports whether every assignment of sub also holds in t.
func (t *StateVarTuple) Contains(sub *StateVarTuple) bool {
	for name, v := range sub.vars {
		mine, ok := t.vars[name]
		if !ok || mine.def != v.def || KeyOf(mine.value) != KeyOf(v.value) {
			return false
		}
	}
	return true
}

// Project returns the sub-tuple over defs. Definitions not assigned in t are
// skipped.
func (t *StateVarTuple) Project(defs ...*StateVarDefinition) *StateVarTuple {
	out := &StateVarTuple{vars: make(map[string]*StateVar, len(defs))}
	for _, d := range defs {
		if v, ok := t.Get(d); ok {
			out.add(v)
		}
	}
	return out
}

// With returns a copy of t with vars overriding existing assignments.
func (t *StateVarTuple) With(vars ...*StateVar) *StateVarTuple {
	out := &StateVarTuple{vars: make(map[string]*StateVar, len(t.vars)+len(vars))}
	for k, v := range t.vars {
		out.vars[k] = v
	}
	for _, v := range vars {
		out.add(v)
	}
	return out
}
