// Package qa defines quality-attribute metrics evaluated per transition:
// transition structures, typed transitions, events, standard, count and
// event-based (non-standard) QFunctions, and the QSpace that holds them.
package qa

import (
	"errors"
	"fmt"

	"github.com/ashita-ai/xplan/internal/factored"
)

var (
	ErrDuplicateQFunction = errors.New("qa: duplicate QFunction")
	ErrQFunctionNotFound  = errors.New("qa: QFunction not found")
)

// TransitionStructure declares the source and destination variables and the
// action type a metric or event depends on.
type TransitionStructure struct {
	action *factored.ActionDefinition
	src    []*factored.StateVarDefinition
	dest   []*factored.StateVarDefinition
}

// NewTransitionStructure declares a dependency on action, src and dest
// variables. Either variable list may be empty.
func NewTransitionStructure(action *factored.ActionDefinition, src, dest []*factored.StateVarDefinition) *TransitionStructure {
	return &TransitionStructure{action: action, src: src, dest: dest}
}

func (s *TransitionStructure) ActionDefinition() *factored.ActionDefinition { return s.action }

func (s *TransitionStructure) SrcDefinitions() []*factored.StateVarDefinition { return s.src }

func (s *TransitionStructure) DestDefinitions() []*factored.StateVarDefinition { return s.dest }

// Applies reports whether a is a member of the structure's action type.
func (s *TransitionStructure) Applies(a factored.Action) bool {
	return s.action.Contains(a)
}

// Bind projects full source and destination states onto the declared
// variables and builds the transition.
func (s *TransitionStructure) Bind(a factored.Action, src, dest *factored.StateVarTuple) (*Transition, error) {
	return NewTransition(s, a, src.Project(s.src...), dest.Project(s.dest...))
}

func declared(defs []*factored.StateVarDefinition, d *factored.StateVarDefinition) bool {
	for _, x := range defs {
		if x == d {
			return true
		}
	}
	return false
}

// Transition is a concrete (src, action, dest) bound to a structure.
type Transition struct {
	structure *TransitionStructure
	action    factored.Action
	src       *factored.StateVarTuple
	dest      *factored.StateVarTuple
}

// NewTransition fails if the action is not a member of the structure's
// action type or if any supplied variable is not declared by the structure.
func NewTransition(s *TransitionStructure, a factored.Action, src, dest *factored.StateVarTuple) (*Transition, error) {
	if !s.action.Contains(a) {
		return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: s.action.Name()}
	}
	for _, v := range src.Vars() {
		if !declared(s.src, v.Definition()) {
			return nil, &factored.IncompatibleVarError{Var: v.Name(), Scope: "transition source"}
		}
	}
	for _, v := range dest.Vars() {
		if !declared(s.dest, v.Definition()) {
			return nil, &factored.IncompatibleVarError{Var: v.Name(), Scope: "transition destination"}
		}
	}
	return &Transition{structure: s, action: a, src: src, dest: dest}, nil
}

func (t *Transition) Structure() *TransitionStructure { return t.structure }
func (t *Transition) Action() factored.Action { return t.action }
func (t *Transition) Src() *factored.StateVarTuple { return t.src }
func (t *Transition) Dest() *factored.StateVarTuple { return t.dest }

// SrcVar returns the source variable of def.
func (t *Transition) SrcVar(def *factored.StateVarDefinition) (*factored.StateVar, error) {
	v, ok := t.src.Get(def)
	if !ok {
		return nil, fmt.Errorf("%w: source %q", factored.ErrStateVarNotFound, def.Name())
	}
	return v, nil
}

// SrcValue returns the source value of def.
func (t *Transition) SrcValue(def *factored.StateVarDefinition) (factored.Value, error) {
	return t.src.Value(def)
}

// DestValue returns the destination value of def.
func (t *Transition) DestValue(def *factored.StateVarDefinition) (factored.Value, error) {
	return t.dest.Value(def)
}

// QFunction is a scalar quality-attribute metric of a transition.
type QFunction interface {
	Name() string
	Structure() *TransitionStructure
	Value(t *Transition) (float64, error)
}

// Event is a qualitative occurrence whose probability depends on a
// transition.
type Event interface {
	Name() string
	Structure() *TransitionStructure
	Probability(t *Transition) (float64, error)
}

// MetricFunc computes a domain-specific scalar.
type MetricFunc func(t *Transition) (float64, error)

// StandardQFunction is a QFunction computed directly by a metric.
type StandardQFunction struct {
	name      string
	structure *TransitionStructure
	metric    MetricFunc
}

func NewStandardQFunction(name string, structure *TransitionStructure, metric MetricFunc) *StandardQFunction {
	return &StandardQFunction{name: name, structure: structure, metric: metric}
}

func (q *StandardQFunction) Name() string { return q.name }
func (q *StandardQFunction) Structure() *TransitionStructure { return q.structure }

func (q *StandardQFunction) Value(t *Transition) (float64, error) {
	return q.metric(t)
}

// CountQFunction counts occurrences of one event: its value is the event's
// probability.
type CountQFunction struct {
	name  string
	event Event
}

func NewCountQFunction(name string, event Event) *CountQFunction {
	return &CountQFunction{name: name, event: event}
}

func (q *CountQFunction) Name() string { return q.name }
func (q *CountQFunction) Structure() *TransitionStructure { return q.event.Structure() }
func (q *CountQFunction) Event() Event { return q.event }

func (q *CountQFunction) Value(t *Transition) (float64, error) {
	return q.event.Probability(t)
}

// EventBasedQFunction values a transition as the sum over mutually exclusive
// events of probability times penalty weight.
type EventBasedQFunction struct {
	name      string
	structure *TransitionStructure
	events    []Event
	weights   map[string]float64
}

func NewEventBasedQFunction(name string, structure *TransitionStructure) *EventBasedQFunction {
	return &EventBasedQFunction{name: name, structure: structure, weights: make(map[string]float64)}
}

// Put registers an event with its per-occurrence weight.
func (q *EventBasedQFunction) Put(e Event, weight float64) {
	if _, ok := q.weights[e.Name()]; !ok {
		q.events = append(q.events, e)
	}
	q.weights[e.Name()] = weight
}

func (q *EventBasedQFunction) Name() string { return q.name }
func (q *EventBasedQFunction) Structure() *TransitionStructure { return q.structure }
func (q *EventBasedQFunction) Events() []Event { return q.events }
func (q *EventBasedQFunction) Weight(e Event) float64 { return q.weights[e.Name()] }

func (q *EventBasedQFunction) Value(t *Transition) (float64, error) {
	var sum float64
	for _, e := range q.events {
		p, err := e.Probability(t)
		if err != nil {
			return 0, fmt.Errorf("qa: event %q: %w", e.Name(), err)
		}
		sum += p * q.weights[e.Name()]
	}
	return sum, nil
}

// QSpace is an ordered collection of QFunctions, unique by name.
type QSpace struct {
	fns    []QFunction
	byName map[string]QFunction
}

func NewQSpace(fns ...QFunction) (*QSpace, error) {
	s := &QSpace{byName: make(map[string]QFunction)}
	for _, f := range fns {
		if err := s.Add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *QSpace) Add(f QFunction) error {
	if _, dup := s.byName[f.Name()]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateQFunction, f.Name())
	}
	s.byName[f.Name()] = f
	s.fns = append(s.fns, f)
	return nil
}

// Get returns the QFunction named name.
func (s *QSpace) Get(name string) (QFunction, error) {
	f, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQFunctionNotFound, name)
	}
	return f, nil
}

func (s *QSpace) Contains(f QFunction) bool {
	existing, ok := s.byName[f.Name()]
	return ok && existing == f
}

// QFunctions returns the metrics in insertion order.
func (s *QSpace) QFunctions() []QFunction {
	out := make([]QFunction, len(s.fns))
	copy(out, s.fns)
	return out
}

func (s *QSpace) Len() int { return len(s.fns) }

// FuncEvent is an Event whose probability is given by a function.
type FuncEvent struct {
	name        string
	structure   *TransitionStructure
	probability MetricFunc
}

func NewFuncEvent(name string, structure *TransitionStructure, probability MetricFunc) *FuncEvent {
	return &FuncEvent{name: name, structure: structure, probability: probability}
}

func (e *FuncEvent) Name() string { return e.name }
func (e *FuncEvent) Structure() *TransitionStructure { return e.structure }

func (e *FuncEvent) Probability(t *Transition) (float64, error) {
	return e.probability(t)
}
