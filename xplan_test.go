package xplan_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xplan"
	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/storage"
	"github.com/ashita-ai/xplan/internal/testutil"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

type fixedSolver struct{ p *policy.Policy }

func (s fixedSolver) Solve(context.Context, *xmdp.XMDP) (*policy.Policy, error) { return s.p, nil }

type summaryVerbalizer struct{}

func (summaryVerbalizer) Verbalize(_ context.Context, _ *xmdp.XMDP, r xplan.Report) (string, error) {
	return fmt.Sprintf("solution cost %.2f, %d alternatives", r.Solution.Cost, len(r.Alternatives)), nil
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(ctx, storage.DriverSQLite, ":memory:", testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(ctx) })
	return s
}

func TestPlanner_SolveExplainVerbalize(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewLineWorld()

	planner, err := xplan.New(
		xplan.WithLogger(testutil.TestLogger()),
		xplan.WithSolver(fixedSolver{p: w.Policy(testutil.Slow)}),
		xplan.WithVerbalizer(summaryVerbalizer{}),
		xplan.WithWorkers(2),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, planner.EvaluationOptions().Workers)

	solution, err := planner.Solve(ctx, w.XMDP)
	require.NoError(t, err)

	exp, err := planner.Explain(ctx, w.XMDP, solution, []*policy.Policy{w.Policy(testutil.Fast)})
	require.NoError(t, err)

	text, err := planner.Verbalize(ctx, w.XMDP, exp)
	require.NoError(t, err)
	assert.Equal(t, "solution cost 3.75, 1 alternatives", text)

	report, err := xplan.NewReport(exp)
	require.NoError(t, err)
	require.Len(t, report.Alternatives, 1)
	alt := report.Alternatives[0]
	assert.InDelta(t, 0.75, alt.Gains["time"], 1e-6)
	assert.InDelta(t, 5.25, alt.Losses["energy"], 1e-6)
	assert.InDelta(t, 2.25, alt.CostDifference, 1e-6)
	assert.JSONEq(t,
		`{"policy":[
			{"state":{"loc":0},"action":{"type":"move","params":[1,"fast"]}},
			{"state":{"loc":1},"action":{"type":"move","params":[2,"fast"]}},
			{"state":{"loc":2},"action":{"type":"move","params":[3,"fast"]}}]}`,
		string(alt.Policy))

	doc, err := report.MarshalIndent()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(doc, &decoded))
	assert.Equal(t, exp.ID.String(), decoded["id"])
	assert.NotContains(t, decoded["solution"], "missing_states")
}

func TestPlanner_MissingCollaborators(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewLineWorld()

	planner, err := xplan.New(xplan.WithLogger(testutil.TestLogger()))
	require.NoError(t, err)

	_, err = planner.Solve(ctx, w.XMDP)
	assert.ErrorIs(t, err, xplan.ErrNoSolver)

	_, err = planner.Verbalize(ctx, w.XMDP, &analysis.Explanation{})
	assert.ErrorIs(t, err, xplan.ErrNoVerbalizer)

	_, err = planner.SavePolicy(ctx, "line", "slow", w.Policy(testutil.Slow))
	assert.ErrorIs(t, err, xplan.ErrNoStore)
}

func TestPlanner_InvalidDiscount(t *testing.T) {
	_, err := xplan.New(xplan.WithEvaluationOptions(analysis.Options{Discount: 1}))
	assert.ErrorContains(t, err, "discount")
}

func TestPlanner_PolicyRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewLineWorld()
	store := newStore(t)

	planner, err := xplan.New(xplan.WithLogger(testutil.TestLogger()), xplan.WithStore(store))
	require.NoError(t, err)

	slow := w.Policy(testutil.Slow)
	rec, err := planner.SavePolicy(ctx, "line", "solution", slow)
	require.NoError(t, err)

	got, _, err := planner.GetPolicy(ctx, w.XMDP, rec.ID)
	require.NoError(t, err)
	assert.True(t, slow.Equal(got))

	latest, latestRec, err := planner.LatestPolicy(ctx, w.XMDP, "line", "solution")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, latestRec.ID)
	assert.True(t, slow.Equal(latest))

	exp, err := planner.Explain(ctx, w.XMDP, got, []*policy.Policy{w.Policy(testutil.Fast)})
	require.NoError(t, err)
	expRec, err := planner.SaveExplanation(ctx, "line", rec.ID, exp)
	require.NoError(t, err)
	assert.Equal(t, exp.ID, expRec.ID)

	stored, err := store.GetExplanation(ctx, exp.ID)
	require.NoError(t, err)
	var report xplan.Report
	require.NoError(t, json.Unmarshal(stored.Document, &report))
	assert.InDelta(t, 3.75, report.Solution.Cost, 1e-6)
}

func TestPlanner_FingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewLineWorld()
	store := newStore(t)

	doc, err := policy.Encode(w.Policy(testutil.Fast))
	require.NoError(t, err)
	tampered := &storage.PolicyRecord{Domain: "line", Name: "tampered", Document: doc, Fingerprint: "v1:deadbeef"}
	require.NoError(t, store.SavePolicy(ctx, tampered))

	planner, err := xplan.New(xplan.WithLogger(testutil.TestLogger()), xplan.WithStore(store))
	require.NoError(t, err)

	_, _, err = planner.GetPolicy(ctx, w.XMDP, tampered.ID)
	assert.ErrorIs(t, err, xplan.ErrFingerprintMismatch)
}
