package factored_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xplan/internal/factored"
)

type move struct {
	factored.BaseAction
}

func newMove(dest string) move {
	return move{factored.NewBaseAction("move", factored.Category{V: dest})}
}

func testVars() (*factored.StateVarDefinition, *factored.StateVarDefinition) {
	loc := factored.NewStateVarDefinition("loc",
		factored.Category{V: "a"}, factored.Category{V: "b"}, factored.Category{V: "c"})
	charge := factored.NewStateVarDefinition("charge", factored.Ints(0, 2)...)
	return loc, charge
}

func TestStateVarDefinition_CanonicalLookup(t *testing.T) {
	loc, charge := testVars()
	for _, def := range []*factored.StateVarDefinition{loc, charge} {
		for _, v := range def.PossibleValues() {
			sv, ok := def.StateVar(v)
			require.True(t, ok)
			assert.Equal(t, factored.KeyOf(v), factored.KeyOf(sv.Value()))
			again, _ := def.StateVar(v)
			assert.Same(t, sv, again, "lookup must return the canonical instance")
		}
	}
	_, ok := charge.StateVar(factored.Int{V: 7})
	assert.False(t, ok)
}

func TestStateVarDefinition_DuplicateValuesCollapse(t *testing.T) {
	d := factored.NewStateVarDefinition("x", factored.Int{V: 1}, factored.Int{V: 1}, factored.Int{V: 2})
	assert.Len(t, d.PossibleValues(), 2)
}

func TestValue_AttributeNotFound(t *testing.T) {
	_, err := factored.Int{V: 3}.Attribute("speed")
	assert.ErrorIs(t, err, factored.ErrAttributeNotFound)

	attrs := factored.Attributes{"area": factored.Category{V: "private"}}
	v, err := attrs.Attribute("area")
	require.NoError(t, err)
	assert.Equal(t, "private", v.Primitive())
}

func TestStateVarTuple_EqualityAndProjection(t *testing.T) {
	loc, charge := testVars()
	a := loc.MustStateVar(factored.Category{V: "a"})
	one := charge.MustStateVar(factored.Int{V: 1})

	s1 := factored.NewStateVarTuple(a, one)
	s2 := factored.NewStateVarTuple(one, a)
	assert.True(t, s1.Equal(s2))
	assert.Equal(t, s1.Key(), s2.Key())
	assert.Equal(t, "charge=1;loc=a", s1.Key())

	goal := factored.NewStateVarTuple(a)
	assert.True(t, s1.Contains(goal))
	assert.False(t, goal.Contains(s1))

	proj := s1.Project(loc)
	assert.True(t, proj.Equal(goal))

	b := loc.MustStateVar(factored.Category{V: "b"})
	next := s1.With(b)
	assert.False(t, next.Equal(s1))
	v, err := next.Value(loc)
	require.NoError(t, err)
	assert.Equal(t, "b", v.Primitive())
	v, err = s1.Value(loc)
	require.NoError(t, err)
	assert.Equal(t, "a", v.Primitive(), "With must not mutate the receiver")
}

func TestDiscriminant_IncompatibleVar(t *testing.T) {
	loc, charge := testVars()
	d := factored.NewDiscriminant(factored.NewDiscriminantClass(loc))
	err := d.Add(charge.MustStateVar(factored.Int{V: 0}))
	var incompatible *factored.IncompatibleVarError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "charge", incompatible.Var)

	_, err = factored.NewEffect(factored.NewEffectClass(loc), charge.MustStateVar(factored.Int{V: 0}))
	require.ErrorAs(t, err, &incompatible)
}

func TestProbabilisticEffect_PutAndValidate(t *testing.T) {
	loc, _ := testVars()
	ec := factored.NewEffectClass(loc)
	pe := factored.NewProbabilisticEffect(ec)
	require.NoError(t, pe.Put(factored.MustEffect(ec, loc.MustStateVar(factored.Category{V: "a"})), 0.25))
	require.NoError(t, pe.Put(factored.MustEffect(ec, loc.MustStateVar(factored.Category{V: "b"})), 0.5))
	assert.ErrorIs(t, pe.Validate(), factored.ErrInvalidDistribution)

	require.NoError(t, pe.Put(factored.MustEffect(ec, loc.MustStateVar(factored.Category{V: "a"})), 0.25))
	require.NoError(t, pe.Validate())
	assert.Equal(t, 2, pe.Len(), "equal effects merge")
	assert.InDelta(t, 0.5, pe.Probability(factored.MustEffect(ec, loc.MustStateVar(factored.Category{V: "a"}))), 1e-12)

	bad := factored.NewProbabilisticEffect(ec)
	require.NoError(t, bad.Put(factored.MustEffect(ec, loc.MustStateVar(factored.Category{V: "a"})), -0.5))
	require.NoError(t, bad.Put(factored.MustEffect(ec, loc.MustStateVar(factored.Category{V: "b"})), 1.5))
	assert.ErrorIs(t, bad.Validate(), factored.ErrInvalidDistribution)
}

func TestPrecondition(t *testing.T) {
	loc, charge := testVars()
	toB, toC := newMove("b"), newMove("c")
	def := factored.NewActionDefinition("move", toB, toC)
	pre := factored.NewPrecondition(def)
	require.NoError(t, pre.Add(toB, loc.MustStateVar(factored.Category{V: "a"}), loc.MustStateVar(factored.Category{V: "c"})))

	atA := factored.NewStateVarTuple(loc.MustStateVar(factored.Category{V: "a"}), charge.MustStateVar(factored.Int{V: 0}))
	atB := factored.NewStateVarTuple(loc.MustStateVar(factored.Category{V: "b"}), charge.MustStateVar(factored.Int{V: 0}))
	assert.True(t, pre.IsApplicable(toB, atA))
	assert.False(t, pre.IsApplicable(toB, atB))
	assert.True(t, pre.IsApplicable(toC, atB), "unrestricted action")
	assert.Len(t, pre.ApplicableValues(toB, loc), 2)
	assert.Len(t, pre.ApplicableValues(toB, charge), 3)

	var violation *factored.PreconditionViolationError
	assert.ErrorAs(t, pre.Check(toB, atB), &violation)

	stranger := newMove("a")
	var incompatible *factored.IncompatibleActionError
	assert.ErrorAs(t, pre.Add(stranger), &incompatible)
}

func TestFormulaActionDescription_TransitionsAndCache(t *testing.T) {
	loc, _ := testVars()
	toB, toC := newMove("b"), newMove("c")
	def := factored.NewActionDefinition("move", toB, toC)
	pre := factored.NewPrecondition(def)
	require.NoError(t, pre.Add(toB, loc.MustStateVar(factored.Category{V: "a"})))
	require.NoError(t, pre.Add(toC, loc.MustStateVar(factored.Category{V: "a"}), loc.MustStateVar(factored.Category{V: "b"})))

	ec := factored.NewEffectClass(loc)
	calls := 0
	desc := factored.NewFormulaActionDescription(def, pre, factored.NewDiscriminantClass(loc), ec,
		factored.FormulaFunc(func(d *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
			calls++
			dest := loc.MustStateVar(a.Parameters()[0])
			src, _ := d.Value(loc)
			pe := factored.NewProbabilisticEffect(ec)
			if err := pe.Put(factored.MustEffect(ec, dest), 0.9); err != nil {
				return nil, err
			}
			if err := pe.Put(factored.MustEffect(ec, loc.MustStateVar(src)), 0.1); err != nil {
				return nil, err
			}
			return pe, nil
		}))

	ts, err := desc.ProbabilisticTransitions(toC)
	require.NoError(t, err)
	assert.Len(t, ts, 2)
	for _, tr := range ts {
		assert.NoError(t, tr.Effect.Validate())
	}

	d, err := factored.DiscriminantOf(desc.DiscriminantClass(), factored.NewStateVarTuple(loc.MustStateVar(factored.Category{V: "a"})))
	require.NoError(t, err)
	before := calls
	_, err = desc.ProbabilisticEffect(d, toC)
	require.NoError(t, err)
	assert.Equal(t, before, calls, "cached result must be reused")

	// Callers get their own copy of the cached distribution.
	got, err := desc.ProbabilisticEffect(d, toC)
	require.NoError(t, err)
	require.NoError(t, got.Put(factored.MustEffect(ec, loc.MustStateVar(factored.Category{V: "a"})), 0.5))
	again, err := desc.ProbabilisticEffect(d, toC)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, again.Sum(), 1e-9)
	assert.NoError(t, again.Validate())

	_, err = desc.ProbabilisticEffect(d, newMove("a"))
	var incompatible *factored.IncompatibleActionError
	assert.ErrorAs(t, err, &incompatible)
}

func TestFactoredPSO_Lookup(t *testing.T) {
	loc, charge := testVars()
	toB := newMove("b")
	def := factored.NewActionDefinition("move", toB)
	pre := factored.NewPrecondition(def)
	pso := factored.NewFactoredPSO(def, pre)

	ec := factored.NewEffectClass(loc)
	desc := factored.NewFormulaActionDescription(def, pre, factored.NewDiscriminantClass(loc), ec, nil)
	require.NoError(t, pso.AddActionDescription(desc))
	assert.Error(t, pso.AddActionDescription(desc), "duplicate effect class")

	got, err := pso.ActionDescription(ec)
	require.NoError(t, err)
	assert.Same(t, desc, got)

	_, err = pso.ActionDescription(factored.NewEffectClass(charge))
	assert.True(t, errors.Is(err, factored.ErrEffectClassNotFound))
	assert.Len(t, pso.IndependentEffectClasses(), 1)
}

func TestActionSpace_CompositeOwnership(t *testing.T) {
	fly := factored.NewActionDefinition("fly", newMove("a"))
	climb := factored.NewActionDefinition("climb", newMove("b"))
	durative := factored.NewCompositeActionDefinition("durative", fly, climb)

	space := factored.NewActionSpace()
	require.NoError(t, space.Add(durative))

	parent, ok := space.ParentComposite(fly)
	require.True(t, ok)
	assert.Same(t, durative, parent)
	_, ok = space.ParentComposite(durative)
	assert.False(t, ok)

	def, err := space.DefinitionOf(newMove("b"))
	require.NoError(t, err)
	assert.Same(t, climb, def)

	a, err := space.Action("move", "a")
	require.NoError(t, err)
	assert.Equal(t, "move(a)", factored.ActionKey(a))
	_, err = space.Action("move", "z")
	assert.ErrorIs(t, err, factored.ErrActionNotFound)

	other := factored.NewCompositeActionDefinition("other", fly, factored.NewActionDefinition("hover", newMove("c")))
	assert.Error(t, space.Add(other), "fly is already owned by durative")
}

func TestStateSpace_ForEachState(t *testing.T) {
	loc, charge := testVars()
	space := factored.NewStateSpace()
	require.NoError(t, space.Add(loc, charge))
	seen := map[string]bool{}
	require.NoError(t, space.ForEachState(func(s *factored.StateVarTuple) error {
		seen[s.Key()] = true
		return nil
	}))
	assert.Len(t, seen, space.Size())
	assert.Equal(t, 9, space.Size())
	assert.Error(t, space.Add(factored.NewStateVarDefinition("loc")))
}

func TestBaseAction_DerivedAttribute(t *testing.T) {
	loc, _ := testVars()
	m := newMove("b")
	a := loc.MustStateVar(factored.Category{V: "a"})
	m.PutDerivedAttribute("distance", factored.Float{V: 4.5}, a)

	v, err := m.DerivedAttribute("distance", a)
	require.NoError(t, err)
	assert.Equal(t, 4.5, v.Primitive())

	_, err = m.DerivedAttribute("distance", loc.MustStateVar(factored.Category{V: "c"}))
	assert.ErrorIs(t, err, factored.ErrAttributeNotFound)
}
