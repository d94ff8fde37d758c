package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/testutil"
)

func TestPolicy_PutOverwrites(t *testing.T) {
	w := testutil.NewLineWorld()
	p := policy.New()

	p.Put(w.At(0), w.MoveTo(1, testutil.Slow))
	p.Put(w.At(0), w.MoveTo(1, testutil.Fast))

	require.Equal(t, 1, p.Len())
	a, ok := p.Action(w.At(0))
	require.True(t, ok)
	assert.Equal(t, "move(1,fast)", factored.ActionKey(a))

	p.Remove(w.At(0))
	_, ok = p.Action(w.At(0))
	assert.False(t, ok)
}

func TestPolicy_DecisionsSorted(t *testing.T) {
	w := testutil.NewLineWorld()
	p := w.Policy(testutil.Slow)

	ds := p.Decisions()
	require.Len(t, ds, 3)
	for i, d := range ds {
		assert.Equal(t, w.At(i).Key(), d.State.Key())
	}
}

func TestPolicy_Equal(t *testing.T) {
	w := testutil.NewLineWorld()

	assert.True(t, w.Policy(testutil.Slow).Equal(w.Policy(testutil.Slow)))
	assert.False(t, w.Policy(testutil.Slow).Equal(w.Policy(testutil.Fast)))

	partial := w.Policy(testutil.Slow)
	partial.Remove(w.At(2))
	assert.False(t, partial.Equal(w.Policy(testutil.Slow)))
}

func TestCodec_RoundTrip(t *testing.T) {
	w := testutil.NewLineWorld()
	p := w.Policy(testutil.Fast)

	data, err := policy.Encode(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"state":{"loc":0},"action":{"type":"move","params":[1,"fast"]}}`)

	got, err := policy.Decode(data, w.XMDP.StateSpace(), w.XMDP.ActionSpace())
	require.NoError(t, err)
	assert.True(t, p.Equal(got))
	for _, d := range got.Decisions() {
		a, ok := p.Action(d.State)
		require.True(t, ok)
		assert.Equal(t, factored.ActionKey(a), factored.ActionKey(d.Action))
	}
}

func TestCodec_MixedPrimitives(t *testing.T) {
	speed := factored.NewStateVarDefinition("speed", factored.Float{V: 0.35}, factored.Float{V: 0.7})
	docked := factored.NewStateVarDefinition("docked", factored.Bools()...)
	states := factored.NewStateSpace()
	require.NoError(t, states.Add(speed, docked))

	setSpeed := factored.NewBaseAction("setSpeed", factored.Float{V: 0.7})
	actions := factored.NewActionSpace()
	require.NoError(t, actions.Add(factored.NewActionDefinition("setSpeed", setSpeed)))

	p := policy.New()
	p.Put(factored.NewStateVarTuple(
		speed.MustStateVar(factored.Float{V: 0.35}),
		docked.MustStateVar(factored.Bool{V: true}),
	), setSpeed)

	data, err := policy.Encode(p)
	require.NoError(t, err)
	got, err := policy.Decode(data, states, actions)
	require.NoError(t, err)
	assert.True(t, p.Equal(got))
}

func TestCodec_FloatsRoundTripOutsideDecimalRange(t *testing.T) {
	values := []float64{0.00001, 1234567, 0.35, 1e21, -2.5e-7}
	fs := make([]factored.Value, len(values))
	for i, v := range values {
		fs[i] = factored.Float{V: v}
	}
	speed := factored.NewStateVarDefinition("speed", fs...)
	states := factored.NewStateSpace()
	require.NoError(t, states.Add(speed))

	var setters []factored.Action
	for _, v := range values {
		setters = append(setters, factored.NewBaseAction("setSpeed", factored.Float{V: v}))
	}
	actions := factored.NewActionSpace()
	require.NoError(t, actions.Add(factored.NewActionDefinition("setSpeed", setters...)))

	p := policy.New()
	for i, v := range values {
		p.Put(factored.NewStateVarTuple(speed.MustStateVar(factored.Float{V: v})), setters[(i+1)%len(setters)])
	}

	data, err := policy.Encode(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1e+21")
	got, err := policy.Decode(data, states, actions)
	require.NoError(t, err)
	assert.True(t, p.Equal(got))
}

func TestCodec_DecodeErrors(t *testing.T) {
	w := testutil.NewLineWorld()
	states, actions := w.XMDP.StateSpace(), w.XMDP.ActionSpace()

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"syntax", `{"policy":[`, policy.ErrMalformedPolicy},
		{"unknown variable", `{"policy":[{"state":{"battery":1},"action":{"type":"move","params":[1,"slow"]}}]}`, policy.ErrUnknownStateVar},
		{"unknown value", `{"policy":[{"state":{"loc":9},"action":{"type":"move","params":[1,"slow"]}}]}`, policy.ErrUnknownStateVar},
		{"unknown action", `{"policy":[{"state":{"loc":0},"action":{"type":"jump","params":[1]}}]}`, policy.ErrUnknownAction},
		{"structured param", `{"policy":[{"state":{"loc":0},"action":{"type":"move","params":[[1]]}}]}`, policy.ErrMalformedPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := policy.Decode([]byte(tt.doc), states, actions)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
