package mobilerobot

import (
	"fmt"

	"github.com/ashita-ai/xplan/internal/cost"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/qa"
)

// collisionRate is the collision probability at unsafe speed per path
// occlusion.
var collisionRate = map[Occlusion]float64{
	Clear:             0.0,
	PartiallyOccluded: 0.2,
	Occluded:          0.4,
}

// intrusionPenalty weighs entering each area.
var intrusionPenalty = map[Area]float64{
	Public:      0,
	SemiPrivate: 1,
	Private:     3,
}

// CollisionEvent is a collision during a move. It can only happen above
// the speed threshold, with a probability set by the path's occlusion.
type CollisionEvent struct {
	structure *qa.TransitionStructure
	loc       *factored.StateVarDefinition
	speed     *factored.StateVarDefinition
	Threshold float64
}

func (e *CollisionEvent) Name() string { return "collisionEvent" }
func (e *CollisionEvent) Structure() *qa.TransitionStructure { return e.structure }

// CollisionProbability is the probability of a collision moving at speed
// along a path with occlusion occ.
func (e *CollisionEvent) CollisionProbability(speed float64, occ Occlusion) float64 {
	if speed <= e.Threshold {
		return 0
	}
	return collisionRate[occ]
}

func (e *CollisionEvent) Probability(t *qa.Transition) (float64, error) {
	v, err := t.SrcValue(e.speed)
	if err != nil {
		return 0, err
	}
	speed, err := factored.FloatValue(v)
	if err != nil {
		return 0, err
	}
	occ, err := pathOcclusion(t, e.loc)
	if err != nil {
		return 0, err
	}
	return e.CollisionProbability(speed, occ), nil
}

func pathOcclusion(t *qa.Transition, loc *factored.StateVarDefinition) (Occlusion, error) {
	src, err := t.SrcVar(loc)
	if err != nil {
		return "", err
	}
	v, err := t.Action().DerivedAttribute(attrOcclusion, src)
	if err != nil {
		return "", err
	}
	c, ok := v.(factored.Category)
	if !ok {
		return "", fmt.Errorf("mobilerobot: occlusion of %s is %T", factored.ActionKey(t.Action()), v)
	}
	return Occlusion(c.V), nil
}

// delay is the travel-time multiplier of a path.
func (d *Domain) delay(occ Occlusion) float64 {
	switch occ {
	case PartiallyOccluded:
		return d.Config.PartialDelay
	case Occluded:
		return d.Config.OccludedDelay
	default:
		return 1
	}
}

// travelTime is distance/speed scaled by the path's occlusion delay.
func (d *Domain) travelTime(t *qa.Transition) (float64, error) {
	src, err := t.SrcVar(d.Loc)
	if err != nil {
		return 0, err
	}
	dv, err := t.Action().DerivedAttribute(attrDistance, src)
	if err != nil {
		return 0, err
	}
	distance, err := factored.FloatValue(dv)
	if err != nil {
		return 0, err
	}
	sv, err := t.SrcValue(d.Speed)
	if err != nil {
		return 0, err
	}
	speed, err := factored.FloatValue(sv)
	if err != nil {
		return 0, err
	}
	occ, err := pathOcclusion(t, d.Loc)
	if err != nil {
		return 0, err
	}
	return distance / speed * d.delay(occ), nil
}

// areaEvent returns the event "the move enters a location in area".
func (d *Domain) areaEvent(area Area, structure *qa.TransitionStructure) *qa.FuncEvent {
	return qa.NewFuncEvent("intrusion:"+string(area), structure, func(t *qa.Transition) (float64, error) {
		v, err := t.DestValue(d.Loc)
		if err != nil {
			return 0, err
		}
		a, err := v.Attribute(attrArea)
		if err != nil {
			return 0, err
		}
		if a.Primitive() == string(area) {
			return 1, nil
		}
		return 0, nil
	})
}

func (d *Domain) buildQAs() (*qa.QSpace, *cost.CostFunction, error) {
	both := []*factored.StateVarDefinition{d.Loc, d.Speed}
	travel := qa.NewStandardQFunction(TravelTime, qa.NewTransitionStructure(d.MoveTo, both, nil), d.travelTime)

	collision := qa.NewCountQFunction(Collision, d.NewCollisionEvent())

	entering := qa.NewTransitionStructure(d.MoveTo, nil, []*factored.StateVarDefinition{d.Loc})
	intrusive := qa.NewEventBasedQFunction(Intrusiveness, entering)
	for _, area := range []Area{Public, SemiPrivate, Private} {
		intrusive.Put(d.areaEvent(area, entering), intrusionPenalty[area])
	}

	fns := []qa.QFunction{travel, collision, intrusive}
	qspace, err := qa.NewQSpace(fns...)
	if err != nil {
		return nil, nil, err
	}
	costFn := cost.NewCostFunction(d.Config.CostOffset)
	for _, f := range fns {
		costFn.Put(f, cost.AttributeCostFunction{A: 0, B: 1}, d.Config.Weights[f.Name()])
	}
	return qspace, costFn, nil
}

// NewCollisionEvent returns the event counted by the collision QA.
func (d *Domain) NewCollisionEvent() *CollisionEvent {
	return &CollisionEvent{
		structure: qa.NewTransitionStructure(d.MoveTo, []*factored.StateVarDefinition{d.Loc, d.Speed}, nil),
		loc:       d.Loc,
		speed:     d.Speed,
		Threshold: d.Config.CollisionThreshold,
	}
}
