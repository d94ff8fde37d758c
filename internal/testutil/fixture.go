package testutil

import (
	"fmt"

	"github.com/ashita-ai/xplan/internal/cost"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/qa"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// Move modes of the LineWorld fixture.
const (
	Slow = "slow"
	Fast = "fast"
)

// LineWorld is a small goal-directed problem shared by package tests.
//
// The agent walks a line from loc=0 to the goal loc=3. move(d,slow)
// reaches d with probability 0.8 and stays put otherwise; move(d,fast)
// always reaches d. Each step costs 1 unit of time; slow steps cost 1 unit
// of energy and fast steps 3. Time and energy are weighted equally.
type LineWorld struct {
	XMDP   *xmdp.XMDP
	Loc    *factored.StateVarDefinition
	Move   *factored.ActionDefinition
	Time   *qa.StandardQFunction
	Energy *qa.StandardQFunction
}

// NewLineWorld builds the fixture. Panics on construction errors.
func NewLineWorld() *LineWorld {
	w, err := buildLineWorld()
	if err != nil {
		panic(fmt.Sprintf("testutil: line world: %v", err))
	}
	return w
}

// At returns the state with the agent at loc.
func (w *LineWorld) At(loc int) *factored.StateVarTuple {
	return factored.NewStateVarTuple(w.Loc.MustStateVar(factored.Int{V: loc}))
}

// MoveTo returns the move action to dest in mode.
func (w *LineWorld) MoveTo(dest int, mode string) factored.Action {
	a, ok := w.Move.Action(fmt.Sprintf("move(%d,%s)", dest, mode))
	if !ok {
		panic(fmt.Sprintf("testutil: no move(%d,%s)", dest, mode))
	}
	return a
}

// Policy walks to the goal using mode at every step.
func (w *LineWorld) Policy(mode string) *policy.Policy {
	p := policy.New()
	for loc := 0; loc < 3; loc++ {
		p.Put(w.At(loc), w.MoveTo(loc+1, mode))
	}
	return p
}

func buildLineWorld() (*LineWorld, error) {
	loc := factored.NewStateVarDefinition("loc", factored.Ints(0, 3)...)
	states := factored.NewStateSpace()
	if err := states.Add(loc); err != nil {
		return nil, err
	}

	var moves []factored.Action
	for d := 1; d <= 3; d++ {
		for _, m := range []string{Slow, Fast} {
			moves = append(moves, factored.NewBaseAction("move", factored.Int{V: d}, factored.Category{V: m}))
		}
	}
	move := factored.NewActionDefinition("move", moves...)
	actions := factored.NewActionSpace()
	if err := actions.Add(move); err != nil {
		return nil, err
	}

	pre := factored.NewPrecondition(move)
	for _, a := range moves {
		dest := a.Parameters()[0].(factored.Int).V
		if err := pre.Add(a, loc.MustStateVar(factored.Int{V: dest - 1})); err != nil {
			return nil, err
		}
	}

	ec := factored.NewEffectClass(loc)
	formula := factored.FormulaFunc(func(d *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
		src, err := d.Value(loc)
		if err != nil {
			return nil, err
		}
		dest := a.Parameters()[0]
		pe := factored.NewProbabilisticEffect(ec)
		success := 1.0
		if a.Parameters()[1].(factored.Category).V == Slow {
			success = 0.8
			if err := pe.Put(factored.MustEffect(ec, loc.MustStateVar(src)), 0.2); err != nil {
				return nil, err
			}
		}
		if err := pe.Put(factored.MustEffect(ec, loc.MustStateVar(dest)), success); err != nil {
			return nil, err
		}
		return pe, nil
	})
	desc := factored.NewFormulaActionDescription(move, pre, factored.NewDiscriminantClass(loc), ec, formula)
	pso := factored.NewFactoredPSO(move, pre)
	if err := pso.AddActionDescription(desc); err != nil {
		return nil, err
	}
	transitions := factored.NewTransitionFunction()
	if err := transitions.Add(pso); err != nil {
		return nil, err
	}

	stepStructure := qa.NewTransitionStructure(move, []*factored.StateVarDefinition{loc}, []*factored.StateVarDefinition{loc})
	timeQ := qa.NewStandardQFunction("time", stepStructure, func(*qa.Transition) (float64, error) { return 1, nil })
	energyQ := qa.NewStandardQFunction("energy", stepStructure, func(t *qa.Transition) (float64, error) {
		if t.Action().Parameters()[1].(factored.Category).V == Fast {
			return 3, nil
		}
		return 1, nil
	})
	qspace, err := qa.NewQSpace(timeQ, energyQ)
	if err != nil {
		return nil, err
	}
	costFn := cost.NewCostFunction(0)
	costFn.Put(timeQ, cost.AttributeCostFunction{A: 0, B: 1}, 0.5)
	costFn.Put(energyQ, cost.AttributeCostFunction{A: 0, B: 1}, 0.5)

	x, err := xmdp.NewBuilder().
		StateSpace(states).
		ActionSpace(actions).
		InitialState(factored.NewStateVarTuple(loc.MustStateVar(factored.Int{V: 0}))).
		Goal(factored.NewStateVarTuple(loc.MustStateVar(factored.Int{V: 3}))).
		TransitionFunction(transitions).
		QSpace(qspace).
		CostFunction(costFn).
		Build()
	if err != nil {
		return nil, err
	}
	return &LineWorld{XMDP: x, Loc: loc, Move: move, Time: timeQ, Energy: energyQ}, nil
}
