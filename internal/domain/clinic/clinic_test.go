package clinic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/domain"
	"github.com/ashita-ai/xplan/internal/domain/clinic"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/testutil"
)

func TestBuild_ReferenceClinic(t *testing.T) {
	d, err := clinic.Build(clinic.DefaultConfig())
	require.NoError(t, err)

	initial := d.XMDP.InitialState()
	abp, err := initial.Value(d.ABP)
	require.NoError(t, err)
	assert.Equal(t, 1, abp.Primitive())
	assert.False(t, d.XMDP.HasGoal())
	assert.Equal(t, 2, clinic.NumBookedClients(0, 1, 2, 0))

	// Same queue update through the registered description.
	pso, err := d.XMDP.TransitionFunction().PSO(d.Schedule)
	require.NoError(t, err)
	desc, err := pso.ActionDescription(factored.NewEffectClass(d.Booked))
	require.NoError(t, err)
	discr, err := factored.DiscriminantOf(desc.DiscriminantClass(), initial)
	require.NoError(t, err)
	a, err := d.Action(1, 0)
	require.NoError(t, err)
	pe, err := desc.ProbabilisticEffect(discr, a)
	require.NoError(t, err)
	require.Equal(t, 1, pe.Len())
	booked, err := pe.Outcomes()[0].Effect.Value(d.Booked)
	require.NoError(t, err)
	assert.Equal(t, 2, booked.Primitive())
}

func TestBookedClientCountFormula(t *testing.T) {
	cfg := clinic.DefaultConfig()
	cfg.MaxABP = 3
	cfg.MaxQueueSize = 6
	d, err := clinic.Build(cfg)
	require.NoError(t, err)

	f := &clinic.BookedClientCountFormula{ABP: d.ABP, Booked: d.Booked, New: d.New, MaxQueueSize: cfg.MaxQueueSize}
	state, err := d.State(3, 5, 2)
	require.NoError(t, err)
	discr, err := factored.DiscriminantOf(factored.NewDiscriminantClass(d.ABP, d.Booked, d.New), state)
	require.NoError(t, err)

	pe, err := f.Formula(discr, clinic.NewSchedule(3, 1))
	require.NoError(t, err)
	booked, err := pe.Outcomes()[0].Effect.Value(d.Booked)
	require.NoError(t, err)
	assert.Equal(t, 3, booked.Primitive())

	// A full queue with many arrivals is capped.
	state, err = d.State(0, 6, 3)
	require.NoError(t, err)
	discr, err = factored.DiscriminantOf(factored.NewDiscriminantClass(d.ABP, d.Booked, d.New), state)
	require.NoError(t, err)
	pe, err = f.Formula(discr, clinic.NewSchedule(0, 0))
	require.NoError(t, err)
	booked, err = pe.Outcomes()[0].Effect.Value(d.Booked)
	require.NoError(t, err)
	assert.Equal(t, 6, booked.Primitive())
}

func TestNewClientCountFormula_Truncation(t *testing.T) {
	tests := []struct {
		name     string
		maxNew   int
		branch   int
		outcomes int
	}{
		{"full branching", 3, 3, 4},
		{"merged into range maximum", 2, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := factored.NewStateVarDefinition("newClientCount", factored.Ints(0, tt.maxNew)...)
			f := &clinic.NewClientCountFormula{New: def, Rate: 2, BranchFactor: tt.branch}

			pe, err := f.Formula(factored.NewDiscriminant(factored.NewDiscriminantClass()), clinic.NewSchedule(0, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.outcomes, pe.Len())
			assert.InDelta(t, 1.0, pe.Sum(), 1e-6)
			require.NoError(t, pe.Validate())
		})
	}
}

func TestNewClientCountFormula_PoissonMass(t *testing.T) {
	def := factored.NewStateVarDefinition("newClientCount", factored.Ints(0, 3)...)
	f := &clinic.NewClientCountFormula{New: def, Rate: 2, BranchFactor: 3}

	pe, err := f.Formula(factored.NewDiscriminant(factored.NewDiscriminantClass()), clinic.NewSchedule(0, 0))
	require.NoError(t, err)

	// Poisson(2): e^-2, 2e^-2, 2e^-2, and the remaining tail on the last outcome.
	want := []float64{0.1353352832, 0.2706705665, 0.2706705665, 0.3233235838}
	for k, p := range want {
		e, err := factored.NewEffect(pe.Class(), def.MustStateVar(factored.Int{V: k}))
		require.NoError(t, err)
		assert.InDelta(t, p, pe.Probability(e), 1e-9, "k=%d", k)
	}
}

func TestEnumerate_DistributionsSumToOne(t *testing.T) {
	d, err := clinic.Build(clinic.DefaultConfig())
	require.NoError(t, err)

	var n int
	err = d.XMDP.Enumerate(func(pt factored.ProbabilisticTransition) error {
		n++
		return pt.Effect.Validate()
	})
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestEvaluate_StationaryPolicy(t *testing.T) {
	d, err := clinic.Build(clinic.DefaultConfig())
	require.NoError(t, err)

	// Keep ABP at 1 and see one new client same-day when there is one.
	p := policy.New()
	err = d.XMDP.StateSpace().ForEachState(func(s *factored.StateVarTuple) error {
		v, err := s.Value(d.New)
		if err != nil {
			return err
		}
		a, err := d.Action(1, min(v.Primitive().(int), 1))
		if err != nil {
			return err
		}
		p.Put(s, a)
		return nil
	})
	require.NoError(t, err)

	res, err := analysis.NewEvaluator(testutil.TestLogger(), analysis.Options{Discount: 0.9, Tolerance: 1e-6}).
		Evaluate(context.Background(), d.XMDP, p)
	require.NoError(t, err)
	assert.Zero(t, res.MissingStates)
	assert.Positive(t, res.ReachableStates)
	assert.Len(t, res.QAValues, 5)
	assert.GreaterOrEqual(t, res.QAValues[clinic.RevenueLoss], 0.0)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := clinic.LoadConfig([]byte("capacity: 3\narrival_rate: 1.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Capacity)
	assert.Equal(t, 1.5, cfg.ArrivalRate)
	assert.Equal(t, 4, cfg.MaxQueueSize)

	_, err = clinic.LoadConfig([]byte("initial_abp: 5\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = clinic.LoadConfig([]byte("capacity: [\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
