// Package dart models a UAV team flying a fixed route of segments. Every
// action is durative: it takes one segment to complete. While flying a
// segment the team may search for targets, change altitude or change
// formation; flying low and loose finds targets but exposes the team to
// threats.
package dart

import (
	"fmt"

	"github.com/ashita-ai/xplan/internal/domain"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// QA names.
const (
	MissedTarget   = "missedTarget"
	ThreatExposure = "threatExposure"
)

// Formations.
const (
	Loose = "loose"
	Tight = "tight"
)

// Maneuver is what the team does during one segment. It is one of Fly,
// Tick, IncAlt, DecAlt or ChangeForm.
type Maneuver interface {
	maneuver()
}

// Fly flies the segment searching for targets.
type Fly struct{}

// Tick flies the segment without searching.
type Tick struct{}

// IncAlt climbs Delta altitude levels.
type IncAlt struct{ Delta int }

// DecAlt descends Delta altitude levels.
type DecAlt struct{ Delta int }

// ChangeForm switches to Formation.
type ChangeForm struct{ Formation string }

func (Fly) maneuver()        {}
func (Tick) maneuver()       {}
func (IncAlt) maneuver()     {}
func (DecAlt) maneuver()     {}
func (ChangeForm) maneuver() {}

// Action is a UAV team action carrying its maneuver.
type Action struct {
	factored.BaseAction
	Maneuver Maneuver
}

// NewAction builds the action performing m.
func NewAction(m Maneuver) Action {
	var base factored.BaseAction
	switch m := m.(type) {
	case Fly:
		base = factored.NewBaseAction("fly")
	case Tick:
		base = factored.NewBaseAction("tick")
	case IncAlt:
		base = factored.NewBaseAction("incAlt", factored.Int{V: m.Delta})
	case DecAlt:
		base = factored.NewBaseAction("decAlt", factored.Int{V: m.Delta})
	case ChangeForm:
		base = factored.NewBaseAction("changeForm", factored.Category{V: m.Formation})
	}
	return Action{BaseAction: base, Maneuver: m}
}

// Config holds the mission parameters. Segments are numbered from 1;
// altitude levels run from 1 (lowest) to MaxAltitude.
type Config struct {
	Segments           int                `yaml:"segments" validate:"gt=0"`
	MaxAltitude        int                `yaml:"max_altitude" validate:"gt=1"`
	MaxAltitudeChange  int                `yaml:"max_altitude_change" validate:"gt=0,ltfield=MaxAltitude"`
	Targets            []int              `yaml:"targets" validate:"dive,gt=0"`
	Threats            []int              `yaml:"threats" validate:"dive,gt=0"`
	InitialAltitude    int                `yaml:"initial_altitude" validate:"gt=0,ltefield=MaxAltitude"`
	InitialFormation   string             `yaml:"initial_formation" validate:"oneof=loose tight"`
	TightSensingFactor float64            `yaml:"tight_sensing_factor" validate:"gte=0,lte=1"`
	TightThreatFactor  float64            `yaml:"tight_threat_factor" validate:"gte=0,lte=1"`
	CostOffset         float64            `yaml:"cost_offset" validate:"gte=0"`
	Weights            map[string]float64 `yaml:"weights" validate:"len=2,dive,keys,oneof=missedTarget threatExposure,endkeys,gte=0,lte=1"`
}

// DefaultConfig returns a three-segment mission with a target on segment 2
// and a threat on segment 3.
func DefaultConfig() Config {
	return Config{
		Segments:           3,
		MaxAltitude:        3,
		MaxAltitudeChange:  1,
		Targets:            []int{2},
		Threats:            []int{3},
		InitialAltitude:    2,
		InitialFormation:   Loose,
		TightSensingFactor: 0.5,
		TightThreatFactor:  0.5,
		CostOffset:         0.01,
		Weights:            map[string]float64{MissedTarget: 0.5, ThreatExposure: 0.5},
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

// Domain is a built mission.
type Domain struct {
	Config    Config
	XMDP      *xmdp.XMDP
	Segment   *factored.StateVarDefinition
	Altitude  *factored.StateVarDefinition
	Formation *factored.StateVarDefinition

	Durative   *factored.ActionDefinition
	Fly        *factored.ActionDefinition
	Tick       *factored.ActionDefinition
	IncAlt     *factored.ActionDefinition
	DecAlt     *factored.ActionDefinition
	ChangeForm *factored.ActionDefinition

	targets map[int]bool
	threats map[int]bool
}

// State returns the state on segment with the given altitude and formation.
func (d *Domain) State(segment, altitude int, formation string) (*factored.StateVarTuple, error) {
	s, ok := d.Segment.StateVar(factored.Int{V: segment})
	if !ok {
		return nil, fmt.Errorf("%w: segment=%d", factored.ErrStateVarNotFound, segment)
	}
	a, ok := d.Altitude.StateVar(factored.Int{V: altitude})
	if !ok {
		return nil, fmt.Errorf("%w: altitude=%d", factored.ErrStateVarNotFound, altitude)
	}
	f, ok := d.Formation.StateVar(factored.Category{V: formation})
	if !ok {
		return nil, fmt.Errorf("%w: formation=%s", factored.ErrStateVarNotFound, formation)
	}
	return factored.NewStateVarTuple(s, a, f), nil
}

// Action returns the registered action performing m.
func (d *Domain) Action(m Maneuver) (factored.Action, error) {
	key := factored.ActionKey(NewAction(m))
	a, ok := d.Durative.Action(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", factored.ErrActionNotFound, key)
	}
	return a, nil
}

// Build validates cfg and assembles the mission XMDP. The goal is reaching
// the segment past the last one.
func Build(cfg Config) (*Domain, error) {
	if err := domain.Validate(cfg); err != nil {
		return nil, fmt.Errorf("dart: %w", err)
	}
	d := &Domain{Config: cfg, targets: make(map[int]bool), threats: make(map[int]bool)}
	for _, s := range cfg.Targets {
		if s > cfg.Segments {
			return nil, fmt.Errorf("dart: %w: target on segment %d of %d", domain.ErrInvalidConfig, s, cfg.Segments)
		}
		d.targets[s] = true
	}
	for _, s := range cfg.Threats {
		if s > cfg.Segments {
			return nil, fmt.Errorf("dart: %w: threat on segment %d of %d", domain.ErrInvalidConfig, s, cfg.Segments)
		}
		d.threats[s] = true
	}

	d.Segment = factored.NewStateVarDefinition("segment", factored.Ints(1, cfg.Segments+1)...)
	d.Altitude = factored.NewStateVarDefinition("altitude", factored.Ints(1, cfg.MaxAltitude)...)
	d.Formation = factored.NewStateVarDefinition("formation", factored.Category{V: Loose}, factored.Category{V: Tight})
	states := factored.NewStateSpace()
	if err := states.Add(d.Segment, d.Altitude, d.Formation); err != nil {
		return nil, fmt.Errorf("dart: %w", err)
	}

	var incs, decs []factored.Action
	for _, delta := range domain.Interval(1, cfg.MaxAltitudeChange) {
		incs = append(incs, NewAction(IncAlt{Delta: delta}))
		decs = append(decs, NewAction(DecAlt{Delta: delta}))
	}
	d.Fly = factored.NewActionDefinition("fly", NewAction(Fly{}))
	d.Tick = factored.NewActionDefinition("tick", NewAction(Tick{}))
	d.IncAlt = factored.NewActionDefinition("incAlt", incs...)
	d.DecAlt = factored.NewActionDefinition("decAlt", decs...)
	d.ChangeForm = factored.NewActionDefinition("changeForm",
		NewAction(ChangeForm{Formation: Loose}), NewAction(ChangeForm{Formation: Tight}))
	d.Durative = factored.NewCompositeActionDefinition("durative", d.Fly, d.Tick, d.IncAlt, d.DecAlt, d.ChangeForm)
	actions := factored.NewActionSpace()
	if err := actions.Add(d.Durative); err != nil {
		return nil, fmt.Errorf("dart: %w", err)
	}

	transitions, err := d.buildTransitions()
	if err != nil {
		return nil, fmt.Errorf("dart: %w", err)
	}
	qspace, costFn, err := d.buildQAs()
	if err != nil {
		return nil, fmt.Errorf("dart: %w", err)
	}

	initial, err := d.State(1, cfg.InitialAltitude, cfg.InitialFormation)
	if err != nil {
		return nil, fmt.Errorf("dart: initial state: %w", err)
	}
	end := d.Segment.MustStateVar(factored.Int{V: cfg.Segments + 1})
	x, err := xmdp.NewBuilder().
		StateSpace(states).
		ActionSpace(actions).
		InitialState(initial).
		Goal(factored.NewStateVarTuple(end)).
		TransitionFunction(transitions).
		QSpace(qspace).
		CostFunction(costFn).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dart: %w", err)
	}
	d.XMDP = x
	return d, nil
}
