package qa_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/qa"
)

type step struct{ factored.BaseAction }

func fixture() (*factored.StateVarDefinition, *factored.StateVarDefinition, *factored.ActionDefinition, step) {
	pos := factored.NewStateVarDefinition("pos", factored.Ints(0, 3)...)
	area := factored.NewStateVarDefinition("area",
		factored.Category{V: "public"}, factored.Category{V: "private"})
	s := step{factored.NewBaseAction("step", factored.Int{V: 1})}
	return pos, area, factored.NewActionDefinition("step", s), s
}

func TestNewTransition_Incompatible(t *testing.T) {
	pos, area, def, s := fixture()
	structure := qa.NewTransitionStructure(def, []*factored.StateVarDefinition{pos}, nil)

	src := factored.NewStateVarTuple(pos.MustStateVar(factored.Int{V: 0}))
	_, err := qa.NewTransition(structure, s, src, factored.NewStateVarTuple())
	require.NoError(t, err)

	other := step{factored.NewBaseAction("step", factored.Int{V: 2})}
	_, err = qa.NewTransition(structure, other, src, factored.NewStateVarTuple())
	var badAction *factored.IncompatibleActionError
	assert.ErrorAs(t, err, &badAction)

	dest := factored.NewStateVarTuple(area.MustStateVar(factored.Category{V: "public"}))
	_, err = qa.NewTransition(structure, s, src, dest)
	var badVar *factored.IncompatibleVarError
	assert.ErrorAs(t, err, &badVar)
}

func TestTransitionStructure_BindProjects(t *testing.T) {
	pos, area, def, s := fixture()
	structure := qa.NewTransitionStructure(def, []*factored.StateVarDefinition{pos}, []*factored.StateVarDefinition{area})
	full := factored.NewStateVarTuple(pos.MustStateVar(factored.Int{V: 1}), area.MustStateVar(factored.Category{V: "public"}))
	next := factored.NewStateVarTuple(pos.MustStateVar(factored.Int{V: 2}), area.MustStateVar(factored.Category{V: "private"}))

	tr, err := structure.Bind(s, full, next)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Src().Len())
	v, err := tr.DestValue(area)
	require.NoError(t, err)
	assert.Equal(t, "private", v.Primitive())
	_, err = tr.DestValue(pos)
	assert.ErrorIs(t, err, factored.ErrStateVarNotFound)
}

func TestCountAndEventBasedQFunctions(t *testing.T) {
	pos, area, def, s := fixture()
	structure := qa.NewTransitionStructure(def, nil, []*factored.StateVarDefinition{area})
	inArea := func(name string) qa.MetricFunc {
		return func(tr *qa.Transition) (float64, error) {
			v, err := tr.DestValue(area)
			if err != nil {
				return 0, err
			}
			if v.Primitive() == name {
				return 1, nil
			}
			return 0, nil
		}
	}
	public := qa.NewFuncEvent("public", structure, inArea("public"))
	private := qa.NewFuncEvent("private", structure, inArea("private"))

	intrusive := qa.NewEventBasedQFunction("intrusiveness", structure)
	intrusive.Put(public, 0)
	intrusive.Put(private, 3)
	count := qa.NewCountQFunction("privateVisits", private)

	tr, err := structure.Bind(s,
		factored.NewStateVarTuple(pos.MustStateVar(factored.Int{V: 0})),
		factored.NewStateVarTuple(area.MustStateVar(factored.Category{V: "private"})))
	require.NoError(t, err)

	v, err := intrusive.Value(tr)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
	v, err = count.Value(tr)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.Same(t, structure, count.Structure())
}

func TestQSpace_UniqueByName(t *testing.T) {
	_, _, def, _ := fixture()
	structure := qa.NewTransitionStructure(def, nil, nil)
	zero := func(*qa.Transition) (float64, error) { return 0, nil }
	a := qa.NewStandardQFunction("time", structure, zero)
	b := qa.NewStandardQFunction("time", structure, zero)

	space, err := qa.NewQSpace(a)
	require.NoError(t, err)
	assert.ErrorIs(t, space.Add(b), qa.ErrDuplicateQFunction)

	got, err := space.Get("time")
	require.NoError(t, err)
	assert.Same(t, a, got)
	_, err = space.Get("cost")
	assert.ErrorIs(t, err, qa.ErrQFunctionNotFound)
}
