package dart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/domain"
	"github.com/ashita-ai/xplan/internal/domain/dart"
	"github.com/ashita-ai/xplan/internal/dtmc"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/testutil"
)

func build(t *testing.T) *dart.Domain {
	t.Helper()
	d, err := dart.Build(dart.DefaultConfig())
	require.NoError(t, err)
	return d
}

func mustState(t *testing.T, d *dart.Domain, seg, alt int, form string) *factored.StateVarTuple {
	t.Helper()
	s, err := d.State(seg, alt, form)
	require.NoError(t, err)
	return s
}

func mustAction(t *testing.T, d *dart.Domain, m dart.Maneuver) factored.Action {
	t.Helper()
	a, err := d.Action(m)
	require.NoError(t, err)
	return a
}

func classKeys(classes []factored.EffectClass) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = c.Key()
	}
	return out
}

func TestCompositeResolution(t *testing.T) {
	d := build(t)
	space, tf := d.XMDP.ActionSpace(), d.XMDP.TransitionFunction()

	durPSO, err := tf.PSO(d.Durative)
	require.NoError(t, err)
	altPSO, err := tf.PSO(d.IncAlt)
	require.NoError(t, err)
	want := append(classKeys(durPSO.IndependentEffectClasses()), classKeys(altPSO.IndependentEffectClasses())...)

	descs, err := tf.Resolve(space, mustAction(t, d, dart.IncAlt{Delta: 1}))
	require.NoError(t, err)
	got := make([]string, len(descs))
	for i, desc := range descs {
		got[i] = desc.EffectClass().Key()
	}
	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, 2)

	descs, err = tf.Resolve(space, mustAction(t, d, dart.Fly{}))
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, factored.NewEffectClass(d.Segment).Key(), descs[0].EffectClass().Key())

	require.NoError(t, tf.CheckDisjoint(space))
}

func TestAltitudeFormula(t *testing.T) {
	d := build(t)
	f := dart.AltitudeFormula{Altitude: d.Altitude}
	discAt := func(alt int) *factored.Discriminant {
		disc, err := factored.DiscriminantOf(factored.NewDiscriminantClass(d.Altitude), mustState(t, d, 1, alt, dart.Loose))
		require.NoError(t, err)
		return disc
	}
	altitudeAfter := func(pe *factored.ProbabilisticEffect) any {
		v, err := pe.Outcomes()[0].Effect.Value(d.Altitude)
		require.NoError(t, err)
		return v.Primitive()
	}

	pe, err := f.Formula(discAt(1), dart.NewAction(dart.IncAlt{Delta: 1}))
	require.NoError(t, err)
	assert.Equal(t, 2, altitudeAfter(pe))

	pe, err = f.Formula(discAt(2), dart.NewAction(dart.DecAlt{Delta: 1}))
	require.NoError(t, err)
	assert.Equal(t, 1, altitudeAfter(pe))

	_, err = f.Formula(discAt(2), dart.NewAction(dart.Fly{}))
	var iae *factored.IncompatibleActionError
	assert.True(t, errors.As(err, &iae))
}

func missionPolicies(t *testing.T, d *dart.Domain) (flyLow, climb *policy.Policy) {
	t.Helper()
	flyLow = policy.New()
	for seg := 1; seg <= 3; seg++ {
		flyLow.Put(mustState(t, d, seg, 2, dart.Loose), mustAction(t, d, dart.Fly{}))
	}
	climb = policy.New()
	climb.Put(mustState(t, d, 1, 2, dart.Loose), mustAction(t, d, dart.Fly{}))
	climb.Put(mustState(t, d, 2, 2, dart.Loose), mustAction(t, d, dart.Fly{}))
	climb.Put(mustState(t, d, 3, 2, dart.Loose), mustAction(t, d, dart.IncAlt{Delta: 1}))
	return flyLow, climb
}

func TestInduce_ConstituentEffects(t *testing.T) {
	d := build(t)
	_, climb := missionPolicies(t, d)

	m, err := dtmc.Induce(context.Background(), d.XMDP, climb)
	require.NoError(t, err)
	e, ok := m.Entry(mustState(t, d, 3, 2, dart.Loose))
	require.True(t, ok)
	assert.ElementsMatch(t,
		[]string{factored.NewEffectClass(d.Segment).Key(), factored.NewEffectClass(d.Altitude).Key()},
		classKeys(e.EffectClasses()))

	_, succ, ok := m.Successors(mustState(t, d, 3, 2, dart.Loose))
	require.True(t, ok)
	require.Len(t, succ, 1)
	assert.Equal(t, mustState(t, d, 4, 3, dart.Loose).Key(), succ[0].State.Key())
}

func TestInduce_AltitudeOutOfRange(t *testing.T) {
	d := build(t)
	p := policy.New()
	p.Put(mustState(t, d, 1, 3, dart.Loose), mustAction(t, d, dart.IncAlt{Delta: 1}))

	_, err := dtmc.Induce(context.Background(), d.XMDP, p)
	var pve *factored.PreconditionViolationError
	assert.True(t, errors.As(err, &pve))
}

func TestExplain_ClimbOverThreat(t *testing.T) {
	d := build(t)
	flyLow, climb := missionPolicies(t, d)

	exp, err := analysis.NewEvaluator(testutil.TestLogger(), analysis.Options{}).
		Explain(context.Background(), d.XMDP, flyLow, []*policy.Policy{climb})
	require.NoError(t, err)

	// Target on segment 2 searched at altitude 2 of 3: found with 2/3.
	assert.InDelta(t, 1.0/3, exp.Solution.QAValues[dart.MissedTarget], 1e-9)
	assert.InDelta(t, 2.0/3, exp.Solution.QAValues[dart.ThreatExposure], 1e-9)

	alt := exp.Alternatives[0]
	assert.InDelta(t, 1.0/3, alt.Result.QAValues[dart.MissedTarget], 1e-9)
	assert.InDelta(t, 1.0/3, alt.Result.QAValues[dart.ThreatExposure], 1e-9)
	assert.Equal(t, []string{dart.ThreatExposure}, alt.Tradeoff.GainNames())
	assert.Empty(t, alt.Tradeoff.LossNames())
	assert.Negative(t, alt.Tradeoff.CostDifference)
}

func TestEnumerate_DistributionsSumToOne(t *testing.T) {
	d := build(t)

	seen := make(map[string]bool)
	err := d.XMDP.Enumerate(func(pt factored.ProbabilisticTransition) error {
		seen[factored.ActionKey(pt.Action)] = true
		return pt.Effect.Validate()
	})
	require.NoError(t, err)
	assert.True(t, seen[factored.ActionKey(mustAction(t, d, dart.Fly{}))])
	assert.True(t, seen[factored.ActionKey(mustAction(t, d, dart.IncAlt{Delta: 1}))])
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := dart.DefaultConfig()
	cfg.Targets = []int{5}
	_, err := dart.Build(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = dart.LoadConfig([]byte("initial_formation: wedge\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg, err = dart.LoadConfig([]byte("segments: 5\nthreats: [4, 5]\n"))
	require.NoError(t, err)
	d, err := dart.Build(cfg)
	require.NoError(t, err)
	assert.True(t, d.XMDP.IsGoal(mustState(t, d, 6, 1, dart.Tight)))
}
