package factored

import "fmt"

// Action is a parameterized action instance. Its canonical key is
// "prefix(p1,p2,...)".
//
// DerivedAttribute returns attributes computed from the action and a set of
// source state variables, e.g. the distance of a move given the robot's
// current location.
type Action interface {
	Value
	NamePrefix() string
	Parameters() []Value
	DerivedAttribute(name string, src ...*StateVar) (Value, error)
}

// ActionKey returns the canonical key of an action.
func ActionKey(a Action) string {
	return formatActionKey(a.NamePrefix(), a.Parameters())
}

func formatActionKey(prefix string, params []Value) string {
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = KeyOf(p)
	}
	return prefix + "(" + joinKeys(keys) + ")"
}

// BaseAction implements Action for embedding in domain action types.
type BaseAction struct {
	prefix  string
	params  []Value
	attrs   Attributes
	derived map[string]map[string]Value
}

// NewBaseAction creates an action named prefix with ordered parameters.
func NewBaseAction(prefix string, params ...Value) BaseAction {
	return BaseAction{
		prefix:  prefix,
		params:  params,
		attrs:   Attributes{},
		derived: make(map[string]map[string]Value),
	}
}

func (a BaseAction) NamePrefix() string { return a.prefix }
func (a BaseAction) Parameters() []Value { return a.params }
func (a BaseAction) Primitive() any { return formatActionKey(a.prefix, a.params) }
func (a BaseAction) String() string { return formatActionKey(a.prefix, a.params) }

// Attribute returns a named attribute of the action itself.
func (a BaseAction) Attribute(name string) (Value, error) {
	return a.attrs.Attribute(name)
}

// PutAttribute sets a named attribute. Call only while building the domain.
func (a BaseAction) PutAttribute(name string, v Value) {
	a.attrs[name] = v
}

// PutDerivedAttribute records the value of a derived attribute for the given
// source variables. Call only while building the domain.
func (a BaseAction) PutDerivedAttribute(name string, v Value, src ...*StateVar) {
	byName, ok := a.derived[name]
	if !ok {
		byName = make(map[string]Value)
		a.derived[name] = byName
	}
	byName[NewStateVarTuple(src...).Key()] = v
}

// DerivedAttribute looks up a value recorded with PutDerivedAttribute.
func (a BaseAction) DerivedAttribute(name string, src ...*StateVar) (Value, error) {
	byName, ok := a.derived[name]
	if !ok {
		return nil, fmt.Errorf("%w: derived %q of %s", ErrAttributeNotFound, name, a)
	}
	v, ok := byName[NewStateVarTuple(src...).Key()]
	if !ok {
		return nil, fmt.Errorf("%w: derived %q of %s given {%s}", ErrAttributeNotFound, name, a, NewStateVarTuple(src...).Key())
	}
	return v, nil
}

// ActionDefinition is a named, immutable set of actions of one action type.
// A composite definition unites the actions of its constituent definitions.
type ActionDefinition struct {
	name         string
	actions      []Action
	byKey        map[string]Action
	constituents []*ActionDefinition
}

// NewActionDefinition creates a primitive action definition.
func NewActionDefinition(name string, actions ...Action) *ActionDefinition {
	d := &ActionDefinition{name: name, byKey: make(map[string]Action, len(actions))}
	for _, a := range actions {
		d.add(a)
	}
	return d
}

// NewCompositeActionDefinition creates a composite definition that owns the
// given constituents. Its actions are the union of the constituents'.
func NewCompositeActionDefinition(name string, constituents ...*ActionDefinition) *ActionDefinition {
	d := &ActionDefinition{name: name, byKey: make(map[string]Action)}
	for _, c := range constituents {
		d.constituents = append(d.constituents, c)
		for _, a := range c.actions {
			d.add(a)
		}
	}
	return d
}

func (d *ActionDefinition) add(a Action) {
	k := ActionKey(a)
	if _, dup := d.byKey[k]; dup {
		return
	}
	d.byKey[k] = a
	d.actions = append(d.actions, a)
}

func (d *ActionDefinition) Name() string { return d.name }
func (d *ActionDefinition) String() string { return d.name }

// Actions returns the member actions in declaration order.
func (d *ActionDefinition) Actions() []Action {
	out := make([]Action, len(d.actions))
	copy(out, d.actions)
	return out
}

// Contains reports whether a is a member of this definition.
func (d *ActionDefinition) Contains(a Action) bool {
	_, ok := d.byKey[ActionKey(a)]
	return ok
}

// Action looks up a member by canonical key.
func (d *ActionDefinition) Action(key string) (Action, bool) {
	a, ok := d.byKey[key]
	return a, ok
}

func (d *ActionDefinition) IsComposite() bool { return len(d.constituents) > 0 }

// Constituents returns the definitions owned by a composite definition.
func (d *ActionDefinition) Constituents() []*ActionDefinition {
	out := make([]*ActionDefinition, len(d.constituents))
	copy(out, d.constituents)
	return out
}
