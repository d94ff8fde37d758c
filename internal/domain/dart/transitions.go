package dart

import (
	"fmt"

	"github.com/ashita-ai/xplan/internal/domain"
	"github.com/ashita-ai/xplan/internal/factored"
)

func maneuverOf(a factored.Action) (Maneuver, error) {
	ua, ok := a.(Action)
	if !ok {
		return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: "durative"}
	}
	return ua.Maneuver, nil
}

func deterministic(ec factored.EffectClass, v *factored.StateVar) (*factored.ProbabilisticEffect, error) {
	e, err := factored.NewEffect(ec, v)
	if err != nil {
		return nil, err
	}
	return factored.Deterministic(e), nil
}

// buildTransitions registers the shared segment advance on the durative
// PSO, and altitude and formation changes on their own constituents' PSOs.
func (d *Domain) buildTransitions() (*factored.TransitionFunction, error) {
	cfg := d.Config
	flying := make([]*factored.StateVar, 0, cfg.Segments)
	for _, s := range domain.Interval(1, cfg.Segments) {
		flying = append(flying, d.Segment.MustStateVar(factored.Int{V: s}))
	}

	durPre := factored.NewPrecondition(d.Durative)
	for _, a := range d.Durative.Actions() {
		if err := durPre.Add(a, flying...); err != nil {
			return nil, err
		}
	}
	segEC := factored.NewEffectClass(d.Segment)
	durPSO := factored.NewFactoredPSO(d.Durative, durPre)
	err := durPSO.AddActionDescription(factored.NewFormulaActionDescription(d.Durative, durPre,
		factored.NewDiscriminantClass(d.Segment), segEC,
		factored.FormulaFunc(func(disc *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
			if _, err := maneuverOf(a); err != nil {
				return nil, err
			}
			v, err := disc.Value(d.Segment)
			if err != nil {
				return nil, err
			}
			seg, err := factored.IntValue(v)
			if err != nil {
				return nil, err
			}
			return deterministic(segEC, d.Segment.MustStateVar(factored.Int{V: min(seg+1, cfg.Segments+1)}))
		})))
	if err != nil {
		return nil, err
	}

	altPSOs, err := d.altitudePSOs()
	if err != nil {
		return nil, err
	}
	formPSO, err := d.formationPSO()
	if err != nil {
		return nil, err
	}

	transitions := factored.NewTransitionFunction()
	if err := transitions.Add(append([]*factored.FactoredPSO{durPSO, formPSO}, altPSOs...)...); err != nil {
		return nil, err
	}
	return transitions, nil
}

// AltitudeFormula moves the altitude by the maneuver's delta: up for
// IncAlt, down for DecAlt.
type AltitudeFormula struct {
	Altitude *factored.StateVarDefinition
}

func (f AltitudeFormula) EffectClass() factored.EffectClass {
	return factored.NewEffectClass(f.Altitude)
}

func (f AltitudeFormula) Formula(disc *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
	m, err := maneuverOf(a)
	if err != nil {
		return nil, err
	}
	var delta int
	switch m := m.(type) {
	case IncAlt:
		delta = m.Delta
	case DecAlt:
		delta = -m.Delta
	default:
		return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: "incAlt|decAlt"}
	}
	v, err := disc.Value(f.Altitude)
	if err != nil {
		return nil, err
	}
	alt, err := factored.IntValue(v)
	if err != nil {
		return nil, err
	}
	next, ok := f.Altitude.StateVar(factored.Int{V: alt + delta})
	if !ok {
		return nil, fmt.Errorf("%w: altitude=%d", factored.ErrStateVarNotFound, alt+delta)
	}
	return deterministic(f.EffectClass(), next)
}

func (d *Domain) altitudePSOs() ([]*factored.FactoredPSO, error) {
	formula := AltitudeFormula{Altitude: d.Altitude}
	var out []*factored.FactoredPSO
	for _, def := range []*factored.ActionDefinition{d.IncAlt, d.DecAlt} {
		pre := factored.NewPrecondition(def)
		for _, a := range def.Actions() {
			var legal []*factored.StateVar
			for _, v := range d.Altitude.PossibleValues() {
				alt := v.(factored.Int).V
				var target int
				switch m := a.(Action).Maneuver.(type) {
				case IncAlt:
					target = alt + m.Delta
				case DecAlt:
					target = alt - m.Delta
				}
				if target >= 1 && target <= d.Config.MaxAltitude {
					legal = append(legal, d.Altitude.MustStateVar(v))
				}
			}
			if err := pre.Add(a, legal...); err != nil {
				return nil, err
			}
		}
		pso := factored.NewFactoredPSO(def, pre)
		err := pso.AddActionDescription(factored.NewFormulaActionDescription(def, pre,
			factored.NewDiscriminantClass(d.Altitude), formula.EffectClass(), formula))
		if err != nil {
			return nil, err
		}
		out = append(out, pso)
	}
	return out, nil
}

func (d *Domain) formationPSO() (*factored.FactoredPSO, error) {
	ec := factored.NewEffectClass(d.Formation)
	pre := factored.NewPrecondition(d.ChangeForm)
	for _, a := range d.ChangeForm.Actions() {
		target := a.(Action).Maneuver.(ChangeForm).Formation
		for _, v := range d.Formation.PossibleValues() {
			if v.Primitive() != target {
				if err := pre.Add(a, d.Formation.MustStateVar(v)); err != nil {
					return nil, err
				}
			}
		}
	}
	pso := factored.NewFactoredPSO(d.ChangeForm, pre)
	err := pso.AddActionDescription(factored.NewFormulaActionDescription(d.ChangeForm, pre,
		factored.NewDiscriminantClass(), ec,
		factored.FormulaFunc(func(_ *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
			m, err := maneuverOf(a)
			if err != nil {
				return nil, err
			}
			cf, ok := m.(ChangeForm)
			if !ok {
				return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: d.ChangeForm.Name()}
			}
			v, ok := d.Formation.StateVar(factored.Category{V: cf.Formation})
			if !ok {
				return nil, fmt.Errorf("%w: formation=%s", factored.ErrStateVarNotFound, cf.Formation)
			}
			return deterministic(ec, v)
		})))
	if err != nil {
		return nil, err
	}
	return pso, nil
}
