package clinic

import (
	"github.com/ashita-ai/xplan/internal/cost"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/qa"
)

// day is the per-transition bookkeeping every clinic QA derives from.
type day struct {
	queue, abp, arrivals int
	action               Schedule
}

func (d *Domain) readDay(t *qa.Transition) (day, error) {
	c, err := intsOf(t.SrcValue, d.Booked, d.ABP, d.New)
	if err != nil {
		return day{}, err
	}
	s, ok := t.Action().(Schedule)
	if !ok {
		return day{}, &factored.IncompatibleActionError{Action: factored.ActionKey(t.Action()), Definition: d.Schedule.Name()}
	}
	return day{queue: c[0], abp: c[1], arrivals: c[2], action: s}, nil
}

// seen is the number of clients serviced today: booked clients up to the
// ABP plus same-day clients.
func (dy day) seen() int {
	return min(dy.queue, dy.abp) + dy.action.Serviced()
}

func (d *Domain) buildQAs() (*qa.QSpace, *cost.CostFunction, error) {
	cfg := d.Config
	src := []*factored.StateVarDefinition{d.ABP, d.Booked, d.New}
	today := qa.NewTransitionStructure(d.Schedule, src, nil)
	tomorrow := qa.NewTransitionStructure(d.Schedule, src, []*factored.StateVarDefinition{d.Booked})

	metric := func(fn func(day, *qa.Transition) (float64, error)) qa.MetricFunc {
		return func(t *qa.Transition) (float64, error) {
			dy, err := d.readDay(t)
			if err != nil {
				return 0, err
			}
			return fn(dy, t)
		}
	}

	fns := []qa.QFunction{
		qa.NewStandardQFunction(RevenueLoss, today, metric(func(dy day, _ *qa.Transition) (float64, error) {
			overflow := NumBookedClients(dy.queue, dy.abp, dy.arrivals, dy.action.Serviced()) - cfg.MaxQueueSize
			return cfg.Revenue * float64(max(overflow, 0)), nil
		})),
		qa.NewStandardQFunction(Overtime, today, metric(func(dy day, _ *qa.Transition) (float64, error) {
			return cfg.OvertimeCost * float64(max(dy.seen()-cfg.Capacity, 0)), nil
		})),
		qa.NewStandardQFunction(IdleTime, today, metric(func(dy day, _ *qa.Transition) (float64, error) {
			return cfg.IdleTimeCost * float64(max(cfg.Capacity-dy.seen(), 0)), nil
		})),
		qa.NewStandardQFunction(LeadTime, tomorrow, metric(func(dy day, t *qa.Transition) (float64, error) {
			v, err := t.DestValue(d.Booked)
			if err != nil {
				return 0, err
			}
			queue, err := factored.IntValue(v)
			if err != nil {
				return 0, err
			}
			// Waiting clients are seen at the new ABP rate.
			return cfg.LeadTimeFactor * float64(queue) / float64(max(dy.action.ABP(), 1)), nil
		})),
		qa.NewStandardQFunction(SwitchABP, today, metric(func(dy day, _ *qa.Transition) (float64, error) {
			diff := dy.action.ABP() - dy.abp
			if diff < 0 {
				diff = -diff
			}
			return cfg.SwitchCostFactor * float64(diff), nil
		})),
	}

	qspace, err := qa.NewQSpace(fns...)
	if err != nil {
		return nil, nil, err
	}
	costFn := cost.NewCostFunction(0)
	for _, f := range fns {
		costFn.Put(f, cost.AttributeCostFunction{A: 0, B: 1}, cfg.Weights[f.Name()])
	}
	return qspace, costFn, nil
}
