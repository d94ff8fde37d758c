package xplan

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/xplan/internal/analysis"
	"github.com/ashita-ai/xplan/internal/policy"
)

// Evaluation is the serialized form of an analysis.Result.
type Evaluation struct {
	QAValues        map[string]float64 `json:"qa_values"`
	Cost            float64            `json:"cost"`
	ReachableStates int                `json:"reachable_states"`
	MissingStates   int                `json:"missing_states,omitempty"`
}

// AlternativeReport is one alternative with its tradeoff against the solution.
type AlternativeReport struct {
	Evaluation
	Policy         json.RawMessage    `json:"policy"`
	Gains          map[string]float64 `json:"gains"`
	Losses         map[string]float64 `json:"losses"`
	CostDifference float64            `json:"cost_difference"`
}

// Report is the JSON document handed to verbalizers and persisted with an
// explanation.
type Report struct {
	ID           uuid.UUID           `json:"id"`
	Solution     Evaluation          `json:"solution"`
	Alternatives []AlternativeReport `json:"alternatives"`
}

// NewReport flattens exp into its serialized form.
func NewReport(exp *analysis.Explanation) (Report, error) {
	r := Report{
		ID:           exp.ID,
		Solution:     NewEvaluation(exp.Solution),
		Alternatives: make([]AlternativeReport, len(exp.Alternatives)),
	}
	for i, alt := range exp.Alternatives {
		doc, err := policy.Encode(alt.Policy)
		if err != nil {
			return Report{}, fmt.Errorf("xplan: encode alternative %d: %w", i, err)
		}
		r.Alternatives[i] = AlternativeReport{
			Evaluation:     NewEvaluation(alt.Result),
			Policy:         doc,
			Gains:          alt.Tradeoff.Gains,
			Losses:         alt.Tradeoff.Losses,
			CostDifference: alt.Tradeoff.CostDifference,
		}
	}
	return r, nil
}

// MarshalIndent encodes the report for humans and storage.
func (r Report) MarshalIndent() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("xplan: encode report: %w", err)
	}
	return b, nil
}

// NewEvaluation flattens one evaluation result.
func NewEvaluation(r *analysis.Result) Evaluation {
	return Evaluation{
		QAValues:        r.QAValues,
		Cost:            r.Cost,
		ReachableStates: r.ReachableStates,
		MissingStates:   r.MissingStates,
	}
}
