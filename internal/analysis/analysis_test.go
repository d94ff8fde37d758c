package analysis_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/testutil"
)

func newEvaluator() *analysis.Evaluator {
	return analysis.NewEvaluator(testutil.TestLogger(), analysis.Options{})
}

func TestEvaluate_SlowAndFast(t *testing.T) {
	w := testutil.NewLineWorld()
	e := newEvaluator()

	slow, err := e.Evaluate(context.Background(), w.XMDP, w.Policy(testutil.Slow))
	require.NoError(t, err)
	// Three steps, each succeeding with probability 0.8.
	assert.InDelta(t, 3.75, slow.QAValues["time"], 1e-6)
	assert.InDelta(t, 3.75, slow.QAValues["energy"], 1e-6)
	assert.InDelta(t, 3.75, slow.Cost, 1e-6)
	assert.Equal(t, 4, slow.ReachableStates)
	assert.Zero(t, slow.MissingStates)

	fast, err := e.Evaluate(context.Background(), w.XMDP, w.Policy(testutil.Fast))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, fast.QAValues["time"], 1e-6)
	assert.InDelta(t, 9.0, fast.QAValues["energy"], 1e-6)
	assert.InDelta(t, 6.0, fast.Cost, 1e-6)
}

func TestEvaluate_MissingDecisionIsAbsorbing(t *testing.T) {
	w := testutil.NewLineWorld()
	p := w.Policy(testutil.Slow)
	p.Remove(w.At(2))

	res, err := newEvaluator().Evaluate(context.Background(), w.XMDP, p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MissingStates)
	assert.Equal(t, 3, res.ReachableStates)
	assert.InDelta(t, 2.5, res.QAValues["time"], 1e-6)
}

func TestEvaluate_NotConverged(t *testing.T) {
	w := testutil.NewLineWorld()
	e := analysis.NewEvaluator(testutil.TestLogger(), analysis.Options{MaxIterations: 1})

	_, err := e.Evaluate(context.Background(), w.XMDP, w.Policy(testutil.Slow))
	assert.ErrorIs(t, err, analysis.ErrNotConverged)
}

func TestEvaluate_InvalidPolicy(t *testing.T) {
	w := testutil.NewLineWorld()
	p := policy.New()
	p.Put(w.At(0), w.MoveTo(2, testutil.Slow))

	_, err := newEvaluator().Evaluate(context.Background(), w.XMDP, p)
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	sol := &analysis.Result{QAValues: map[string]float64{"time": 3.75, "energy": 3.75, "noise": 1}, Cost: 3.75}
	alt := &analysis.Result{QAValues: map[string]float64{"time": 3, "energy": 9, "noise": 1}, Cost: 6}

	tr := analysis.Compare(sol, alt)
	assert.Equal(t, []string{"time"}, tr.GainNames())
	assert.Equal(t, []string{"energy"}, tr.LossNames())
	assert.InDelta(t, 0.75, tr.Gains["time"], 1e-9)
	assert.InDelta(t, 5.25, tr.Losses["energy"], 1e-9)
	assert.InDelta(t, 2.25, tr.CostDifference, 1e-9)
}

func TestExplain(t *testing.T) {
	w := testutil.NewLineWorld()
	mixed := w.Policy(testutil.Slow)
	mixed.Put(w.At(2), w.MoveTo(3, testutil.Fast))
	alts := []*policy.Policy{w.Policy(testutil.Fast), mixed}

	exp, err := analysis.NewEvaluator(testutil.TestLogger(), analysis.Options{Workers: 2}).
		Explain(context.Background(), w.XMDP, w.Policy(testutil.Slow), alts)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, exp.ID)
	require.Len(t, exp.Alternatives, 2)
	assert.Same(t, alts[0], exp.Alternatives[0].Policy)
	assert.InDelta(t, 6.0, exp.Alternatives[0].Result.Cost, 1e-6)
	assert.Equal(t, []string{"time"}, exp.Alternatives[0].Tradeoff.GainNames())

	// Slow for two steps then fast: time 2.5+1, energy 2.5+3.
	assert.InDelta(t, 3.5, exp.Alternatives[1].Result.QAValues["time"], 1e-6)
	assert.InDelta(t, 5.5, exp.Alternatives[1].Result.QAValues["energy"], 1e-6)
}

func TestExplain_AlternativeFails(t *testing.T) {
	w := testutil.NewLineWorld()
	bad := policy.New()
	bad.Put(w.At(0), w.MoveTo(3, testutil.Fast))

	_, err := newEvaluator().Explain(context.Background(), w.XMDP, w.Policy(testutil.Slow), []*policy.Policy{bad})
	assert.ErrorContains(t, err, "alternative 0")
}
