package dart

import (
	"github.com/ashita-ai/xplan/internal/cost"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/qa"
)

// segmentFlight is what the QAs read from one durative transition: the
// segment flown and the configuration the team flew it in.
type segmentFlight struct {
	segment   int
	altitude  int
	formation string
	maneuver  Maneuver
}

func (d *Domain) readFlight(t *qa.Transition) (segmentFlight, error) {
	var f segmentFlight
	v, err := t.SrcValue(d.Segment)
	if err != nil {
		return f, err
	}
	if f.segment, err = factored.IntValue(v); err != nil {
		return f, err
	}
	if v, err = t.DestValue(d.Altitude); err != nil {
		return f, err
	}
	if f.altitude, err = factored.IntValue(v); err != nil {
		return f, err
	}
	if v, err = t.DestValue(d.Formation); err != nil {
		return f, err
	}
	f.formation = v.Primitive().(string)
	f.maneuver, err = maneuverOf(t.Action())
	return f, err
}

// lowness is 1 at the lowest altitude and 1/MaxAltitude at the highest.
func (d *Domain) lowness(altitude int) float64 {
	return float64(d.Config.MaxAltitude-altitude+1) / float64(d.Config.MaxAltitude)
}

// DetectionProbability is the probability of finding a target while
// searching at altitude in formation.
func (d *Domain) DetectionProbability(altitude int, formation string) float64 {
	p := d.lowness(altitude)
	if formation == Tight {
		p *= d.Config.TightSensingFactor
	}
	return p
}

// ExposureProbability is the probability of being engaged by a threat at
// altitude in formation.
func (d *Domain) ExposureProbability(altitude int, formation string) float64 {
	p := d.lowness(altitude)
	if formation == Tight {
		p *= d.Config.TightThreatFactor
	}
	return p
}

func (d *Domain) buildQAs() (*qa.QSpace, *cost.CostFunction, error) {
	structure := qa.NewTransitionStructure(d.Durative,
		[]*factored.StateVarDefinition{d.Segment},
		[]*factored.StateVarDefinition{d.Altitude, d.Formation})

	missed := qa.NewCountQFunction(MissedTarget, qa.NewFuncEvent("targetMissed", structure, func(t *qa.Transition) (float64, error) {
		f, err := d.readFlight(t)
		if err != nil || !d.targets[f.segment] {
			return 0, err
		}
		// Only a searching flight can find the target.
		if _, searching := f.maneuver.(Fly); !searching {
			return 1, nil
		}
		return 1 - d.DetectionProbability(f.altitude, f.formation), nil
	}))
	exposed := qa.NewCountQFunction(ThreatExposure, qa.NewFuncEvent("threatEngaged", structure, func(t *qa.Transition) (float64, error) {
		f, err := d.readFlight(t)
		if err != nil || !d.threats[f.segment] {
			return 0, err
		}
		return d.ExposureProbability(f.altitude, f.formation), nil
	}))

	qspace, err := qa.NewQSpace(missed, exposed)
	if err != nil {
		return nil, nil, err
	}
	costFn := cost.NewCostFunction(d.Config.CostOffset)
	for _, f := range []qa.QFunction{missed, exposed} {
		costFn.Put(f, cost.AttributeCostFunction{A: 0, B: 1}, d.Config.Weights[f.Name()])
	}
	return qspace, costFn, nil
}
