// Package clinic models outpatient clinic scheduling. Each day the clinic
// picks an appointment-booking policy (ABP, the number of booked clients
// seen per day) and how many of today's new clients to see same-day; the
// remaining new clients join the booking queue.
package clinic

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ashita-ai/xplan/internal/domain"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// QA names.
const (
	RevenueLoss = "revenueLoss"
	Overtime    = "overtime"
	IdleTime    = "idleTime"
	LeadTime    = "leadTime"
	SwitchABP   = "switchABP"
)

// Config holds the clinic parameters.
type Config struct {
	Capacity         int     `yaml:"capacity" validate:"gt=0"`
	MaxABP           int     `yaml:"max_abp" validate:"gt=0"`
	MaxQueueSize     int     `yaml:"max_queue_size" validate:"gt=0"`
	Revenue          float64 `yaml:"revenue" validate:"gte=0"`
	OvertimeCost     float64 `yaml:"overtime_cost" validate:"gte=0"`
	IdleTimeCost     float64 `yaml:"idle_time_cost" validate:"gte=0"`
	LeadTimeFactor   float64 `yaml:"lead_time_factor" validate:"gte=0"`
	SwitchCostFactor float64 `yaml:"switch_cost_factor" validate:"gte=0"`
	ArrivalRate      float64 `yaml:"arrival_rate" validate:"gt=0"`
	BranchFactor     int     `yaml:"branch_factor" validate:"gt=0"`

	InitialABP    int `yaml:"initial_abp" validate:"gte=0,ltefield=MaxABP"`
	InitialBooked int `yaml:"initial_booked" validate:"gte=0,ltefield=MaxQueueSize"`
	InitialNew    int `yaml:"initial_new" validate:"gte=0,ltefield=BranchFactor"`

	// Weights are the scaling constants of the five QAs, keyed by QA name.
	Weights map[string]float64 `yaml:"weights" validate:"len=5,dive,keys,oneof=revenueLoss overtime idleTime leadTime switchABP,endkeys,gte=0,lte=1"`
}

// DefaultConfig returns the parameters of the reference clinic.
func DefaultConfig() Config {
	return Config{
		Capacity:         2,
		MaxABP:           2,
		MaxQueueSize:     4,
		Revenue:          20,
		OvertimeCost:     10,
		IdleTimeCost:     0,
		LeadTimeFactor:   0,
		SwitchCostFactor: 10,
		ArrivalRate:      2,
		BranchFactor:     3,
		InitialABP:       1,
		InitialBooked:    0,
		InitialNew:       2,
		Weights: map[string]float64{
			RevenueLoss: 0.2, Overtime: 0.2, IdleTime: 0.2, LeadTime: 0.2, SwitchABP: 0.2,
		},
	}
}

// LoadConfig overlays a YAML parameter file onto the defaults.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := domain.Decode(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Schedule sets tomorrow's ABP and sees serviced of today's new clients
// same-day.
type Schedule struct {
	factored.BaseAction
	abp      int
	serviced int
}

func NewSchedule(abp, serviced int) Schedule {
	return Schedule{
		BaseAction: factored.NewBaseAction("schedule", factored.Int{V: abp}, factored.Int{V: serviced}),
		abp:        abp,
		serviced:   serviced,
	}
}

func (s Schedule) ABP() int { return s.abp }
func (s Schedule) Serviced() int { return s.serviced }

// Domain is a built clinic problem.
type Domain struct {
	Config   Config
	XMDP     *xmdp.XMDP
	ABP      *factored.StateVarDefinition
	Booked   *factored.StateVarDefinition
	New      *factored.StateVarDefinition
	Schedule *factored.ActionDefinition
}

// State returns the state with the given ABP, booked and new client counts.
func (d *Domain) State(abp, booked, newClients int) (*factored.StateVarTuple, error) {
	var vars []*factored.StateVar
	for _, p := range []struct {
		def *factored.StateVarDefinition
		v   int
	}{{d.ABP, abp}, {d.Booked, booked}, {d.New, newClients}} {
		sv, ok := p.def.StateVar(factored.Int{V: p.v})
		if !ok {
			return nil, fmt.Errorf("%w: %s=%d", factored.ErrStateVarNotFound, p.def.Name(), p.v)
		}
		vars = append(vars, sv)
	}
	return factored.NewStateVarTuple(vars...), nil
}

// Action returns schedule(abp, serviced).
func (d *Domain) Action(abp, serviced int) (factored.Action, error) {
	a, ok := d.Schedule.Action(factored.ActionKey(NewSchedule(abp, serviced)))
	if !ok {
		return nil, fmt.Errorf("%w: schedule(%d,%d)", factored.ErrActionNotFound, abp, serviced)
	}
	return a, nil
}

// Build validates cfg and assembles the clinic XMDP. The problem has no
// goal; it is evaluated as a discounted infinite-horizon chain.
func Build(cfg Config) (*Domain, error) {
	if err := domain.Validate(cfg); err != nil {
		return nil, fmt.Errorf("clinic: %w", err)
	}
	maxNew := min(cfg.BranchFactor, cfg.MaxQueueSize)
	if cfg.InitialNew > maxNew {
		return nil, fmt.Errorf("clinic: %w: initial_new %d exceeds %d", domain.ErrInvalidConfig, cfg.InitialNew, maxNew)
	}

	d := &Domain{
		Config: cfg,
		ABP:    factored.NewStateVarDefinition("abp", factored.Ints(0, cfg.MaxABP)...),
		Booked: factored.NewStateVarDefinition("bookedClientCount", factored.Ints(0, cfg.MaxQueueSize)...),
		New:    factored.NewStateVarDefinition("newClientCount", factored.Ints(0, maxNew)...),
	}
	states := factored.NewStateSpace()
	if err := states.Add(d.ABP, d.Booked, d.New); err != nil {
		return nil, fmt.Errorf("clinic: %w", err)
	}

	var actions []factored.Action
	for _, abp := range domain.Interval(0, cfg.MaxABP) {
		for _, b := range domain.Interval(0, maxNew) {
			actions = append(actions, NewSchedule(abp, b))
		}
	}
	d.Schedule = factored.NewActionDefinition("schedule", actions...)
	actionSpace := factored.NewActionSpace()
	if err := actionSpace.Add(d.Schedule); err != nil {
		return nil, fmt.Errorf("clinic: %w", err)
	}

	// Same-day service cannot exceed today's new clients.
	pre := factored.NewPrecondition(d.Schedule)
	for _, a := range actions {
		var legal []*factored.StateVar
		for _, y := range domain.Interval(a.(Schedule).Serviced(), maxNew) {
			legal = append(legal, d.New.MustStateVar(factored.Int{V: y}))
		}
		if err := pre.Add(a, legal...); err != nil {
			return nil, fmt.Errorf("clinic: %w", err)
		}
	}

	pso, err := d.buildPSO(pre)
	if err != nil {
		return nil, fmt.Errorf("clinic: %w", err)
	}
	transitions := factored.NewTransitionFunction()
	if err := transitions.Add(pso); err != nil {
		return nil, fmt.Errorf("clinic: %w", err)
	}

	qspace, costFn, err := d.buildQAs()
	if err != nil {
		return nil, fmt.Errorf("clinic: %w", err)
	}

	initial, err := d.State(cfg.InitialABP, cfg.InitialBooked, cfg.InitialNew)
	if err != nil {
		return nil, fmt.Errorf("clinic: initial state: %w", err)
	}
	x, err := xmdp.NewBuilder().
		StateSpace(states).
		ActionSpace(actionSpace).
		InitialState(initial).
		TransitionFunction(transitions).
		QSpace(qspace).
		CostFunction(costFn).
		Build()
	if err != nil {
		return nil, fmt.Errorf("clinic: %w", err)
	}
	d.XMDP = x
	return d, nil
}

func (d *Domain) buildPSO(pre *factored.Precondition) (*factored.FactoredPSO, error) {
	pso := factored.NewFactoredPSO(d.Schedule, pre)

	abpEC := factored.NewEffectClass(d.ABP)
	abpDesc := factored.NewFormulaActionDescription(d.Schedule, pre, factored.NewDiscriminantClass(), abpEC,
		factored.FormulaFunc(func(_ *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
			s, ok := a.(Schedule)
			if !ok {
				return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: d.Schedule.Name()}
			}
			e, err := factored.NewEffect(abpEC, d.ABP.MustStateVar(factored.Int{V: s.ABP()}))
			if err != nil {
				return nil, err
			}
			return factored.Deterministic(e), nil
		}))

	booked := &BookedClientCountFormula{ABP: d.ABP, Booked: d.Booked, New: d.New, MaxQueueSize: d.Config.MaxQueueSize}
	bookedDesc := factored.NewFormulaActionDescription(d.Schedule, pre,
		factored.NewDiscriminantClass(d.ABP, d.Booked, d.New), booked.EffectClass(), booked)

	arrivals := &NewClientCountFormula{New: d.New, Rate: d.Config.ArrivalRate, BranchFactor: d.Config.BranchFactor}
	newDesc := factored.NewFormulaActionDescription(d.Schedule, pre,
		factored.NewDiscriminantClass(), arrivals.EffectClass(), arrivals)

	for _, desc := range []factored.ActionDescription{abpDesc, bookedDesc, newDesc} {
		if err := pso.AddActionDescription(desc); err != nil {
			return nil, err
		}
	}
	return pso, nil
}

// BookedClientCountFormula computes tomorrow's booking queue
// x' = x − min(x, w) + y − b, capped at the queue size, where x is the
// queue, w the ABP in effect, y today's new clients and b those seen
// same-day.
type BookedClientCountFormula struct {
	ABP, Booked, New *factored.StateVarDefinition
	MaxQueueSize     int
}

func (f *BookedClientCountFormula) EffectClass() factored.EffectClass {
	return factored.NewEffectClass(f.Booked)
}

// NumBookedClients is the uncapped queue update.
func NumBookedClients(x, w, y, b int) int {
	return x - min(x, w) + y - b
}

func (f *BookedClientCountFormula) Formula(d *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
	s, ok := a.(Schedule)
	if !ok {
		return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: "schedule"}
	}
	c, err := intsOf(d.Value, f.Booked, f.ABP, f.New)
	if err != nil {
		return nil, err
	}
	next := min(NumBookedClients(c[0], c[1], c[2], s.Serviced()), f.MaxQueueSize)
	v, ok := f.Booked.StateVar(factored.Int{V: next})
	if !ok {
		return nil, fmt.Errorf("%w: %s=%d", factored.ErrStateVarNotFound, f.Booked.Name(), next)
	}
	e, err := factored.NewEffect(f.EffectClass(), v)
	if err != nil {
		return nil, err
	}
	return factored.Deterministic(e), nil
}

// NewClientCountFormula draws tomorrow's new clients from a Poisson
// distribution truncated to BranchFactor+1 outcomes, the last carrying the
// tail mass. Outcomes beyond the variable's range merge into its maximum.
type NewClientCountFormula struct {
	New          *factored.StateVarDefinition
	Rate         float64
	BranchFactor int
}

func (f *NewClientCountFormula) EffectClass() factored.EffectClass {
	return factored.NewEffectClass(f.New)
}

func (f *NewClientCountFormula) Formula(*factored.Discriminant, factored.Action) (*factored.ProbabilisticEffect, error) {
	ec := f.EffectClass()
	values := f.New.PossibleValues()
	top := values[len(values)-1].(factored.Int).V

	arrivals := distuv.Poisson{Lambda: f.Rate}
	pe := factored.NewProbabilisticEffect(ec)
	var mass float64
	for k := 0; k <= f.BranchFactor; k++ {
		p := arrivals.Prob(float64(k))
		if k == f.BranchFactor {
			p = 1 - mass
		}
		mass += p
		e, err := factored.NewEffect(ec, f.New.MustStateVar(factored.Int{V: min(k, top)}))
		if err != nil {
			return nil, err
		}
		if err := pe.Put(e, p); err != nil {
			return nil, err
		}
	}
	return pe, nil
}

// intsOf reads defs as ints through get.
func intsOf(get func(*factored.StateVarDefinition) (factored.Value, error), defs ...*factored.StateVarDefinition) ([]int, error) {
	out := make([]int, len(defs))
	for i, def := range defs {
		v, err := get(def)
		if err != nil {
			return nil, err
		}
		if out[i], err = factored.IntValue(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
