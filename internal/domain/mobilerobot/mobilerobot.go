// Package mobilerobot models a robot navigating an indoor map. Moves
// between adjacent locations take time depending on distance, speed and
// path occlusion; fast moves through occluded paths risk collisions, and
// entering private areas is intrusive.
package mobilerobot

import (
	"fmt"

	"github.com/ashita-ai/xplan/internal/domain"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// QA names.
const (
	TravelTime    = "travelTime"
	Collision     = "collision"
	Intrusiveness = "intrusiveness"
)

const (
	attrArea       = "area"
	attrDistance   = "distance"
	attrOcclusion  = "occlusion"
	varRobotLoc    = "rloc"
	varRobotSpeed  = "rspeed"
	actionMoveTo   = "moveTo"
	actionSetSpeed = "setSpeed"
)

// Area is the privacy class of a location.
type Area string

const (
	Public      Area = "public"
	SemiPrivate Area = "semiprivate"
	Private     Area = "private"
)

// Occlusion is the visibility of the path between two locations.
type Occlusion string

const (
	Clear             Occlusion = "clear"
	PartiallyOccluded Occlusion = "partial"
	Occluded          Occlusion = "occluded"
)

// Location is a map node. Its primitive is its ID.
type Location struct {
	ID   string
	Area Area
}

func (l Location) Primitive() any { return l.ID }

func (l Location) Attribute(name string) (factored.Value, error) {
	if name == attrArea {
		return factored.Category{V: string(l.Area)}, nil
	}
	return nil, fmt.Errorf("%w: %q of location %s", factored.ErrAttributeNotFound, name, l.ID)
}

// MoveTo moves the robot to an adjacent location.
type MoveTo struct {
	factored.BaseAction
	Dest Location
}

func NewMoveTo(dest Location) MoveTo {
	return MoveTo{BaseAction: factored.NewBaseAction(actionMoveTo, dest), Dest: dest}
}

// SetSpeed changes the robot's speed.
type SetSpeed struct {
	factored.BaseAction
	Speed float64
}

func NewSetSpeed(speed float64) SetSpeed {
	return SetSpeed{BaseAction: factored.NewBaseAction(actionSetSpeed, factored.Float{V: speed}), Speed: speed}
}

// NodeConfig is one map location.
type NodeConfig struct {
	ID   string `yaml:"id" validate:"required"`
	Area Area   `yaml:"area" validate:"oneof=public semiprivate private"`
}

// EdgeConfig is one undirected path.
type EdgeConfig struct {
	From      string    `yaml:"from" validate:"required"`
	To        string    `yaml:"to" validate:"required,nefield=From"`
	Distance  float64   `yaml:"distance" validate:"gt=0"`
	Occlusion Occlusion `yaml:"occlusion" validate:"oneof=clear partial occluded"`
}

// Config holds the map and robot parameters.
type Config struct {
	Nodes              []NodeConfig       `yaml:"nodes" validate:"min=2,dive"`
	Edges              []EdgeConfig       `yaml:"edges" validate:"min=1,dive"`
	Speeds             []float64          `yaml:"speeds" validate:"min=1,dive,gt=0"`
	Start              string             `yaml:"start" validate:"required"`
	StartSpeed         float64            `yaml:"start_speed" validate:"gt=0"`
	Goal               string             `yaml:"goal" validate:"required,nefield=Start"`
	CollisionThreshold float64            `yaml:"collision_threshold" validate:"gt=0"`
	PartialDelay       float64            `yaml:"partial_delay" validate:"gte=1"`
	OccludedDelay      float64            `yaml:"occluded_delay" validate:"gte=1"`
	CostOffset         float64            `yaml:"cost_offset" validate:"gte=0"`
	Weights            map[string]float64 `yaml:"weights" validate:"len=3,dive,keys,oneof=travelTime collision intrusiveness,endkeys,gte=0,lte=1"`
}

// DefaultConfig returns a four-location map with a short private route and
// a longer public one.
func DefaultConfig() Config {
	return Config{
		Nodes: []NodeConfig{
			{ID: "L1", Area: Public},
			{ID: "L2", Area: SemiPrivate},
			{ID: "L3", Area: Private},
			{ID: "L4", Area: Public},
		},
		Edges: []EdgeConfig{
			{From: "L1", To: "L2", Distance: 6, Occlusion: Clear},
			{From: "L2", To: "L4", Distance: 6, Occlusion: Clear},
			{From: "L1", To: "L3", Distance: 4, Occlusion: Occluded},
			{From: "L3", To: "L4", Distance: 4, Occlusion: PartiallyOccluded},
		},
		Speeds:             []float64{0.35, 0.7},
		Start:              "L1",
		StartSpeed:         0.35,
		Goal:               "L4",
		CollisionThreshold: 0.6,
		PartialDelay:       1.2,
		OccludedDelay:      1.5,
		CostOffset:         0.01,
		Weights:            map[string]float64{TravelTime: 0.4, Collision: 0.3, Intrusiveness: 0.3},
	}
}

// LoadConfig overlays a YAML parameter file onto the defaults. Lists in
// the file replace the default lists.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := domain.Decode(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Domain is a built navigation problem.
type Domain struct {
	Config    Config
	XMDP      *xmdp.XMDP
	Loc       *factored.StateVarDefinition
	Speed     *factored.StateVarDefinition
	MoveTo    *factored.ActionDefinition
	SetSpeed  *factored.ActionDefinition
	Locations map[string]Location
}

// State returns the state with the robot at loc moving at speed.
func (d *Domain) State(loc string, speed float64) (*factored.StateVarTuple, error) {
	l, ok := d.Loc.StateVarByKey(loc)
	if !ok {
		return nil, fmt.Errorf("%w: %s=%s", factored.ErrStateVarNotFound, varRobotLoc, loc)
	}
	s, ok := d.Speed.StateVar(factored.Float{V: speed})
	if !ok {
		return nil, fmt.Errorf("%w: speed %v", factored.ErrStateVarNotFound, speed)
	}
	return factored.NewStateVarTuple(l, s), nil
}

// Move returns moveTo(dest).
func (d *Domain) Move(dest string) (factored.Action, error) {
	a, ok := d.MoveTo.Action(actionMoveTo + "(" + dest + ")")
	if !ok {
		return nil, fmt.Errorf("%w: %s(%s)", factored.ErrActionNotFound, actionMoveTo, dest)
	}
	return a, nil
}

// Build validates cfg and assembles the navigation XMDP with the goal
// rloc=cfg.Goal.
func Build(cfg Config) (*Domain, error) {
	if err := domain.Validate(cfg); err != nil {
		return nil, fmt.Errorf("mobilerobot: %w", err)
	}
	d := &Domain{Config: cfg, Locations: make(map[string]Location, len(cfg.Nodes))}

	values := make([]factored.Value, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if _, dup := d.Locations[n.ID]; dup {
			return nil, fmt.Errorf("mobilerobot: %w: duplicate location %s", domain.ErrInvalidConfig, n.ID)
		}
		l := Location{ID: n.ID, Area: n.Area}
		d.Locations[n.ID] = l
		values = append(values, l)
	}
	for _, id := range []string{cfg.Start, cfg.Goal} {
		if _, ok := d.Locations[id]; !ok {
			return nil, fmt.Errorf("mobilerobot: %w: unknown location %s", domain.ErrInvalidConfig, id)
		}
	}
	speeds := make([]factored.Value, len(cfg.Speeds))
	for i, s := range cfg.Speeds {
		speeds[i] = factored.Float{V: s}
	}
	d.Loc = factored.NewStateVarDefinition(varRobotLoc, values...)
	d.Speed = factored.NewStateVarDefinition(varRobotSpeed, speeds...)
	states := factored.NewStateSpace()
	if err := states.Add(d.Loc, d.Speed); err != nil {
		return nil, fmt.Errorf("mobilerobot: %w", err)
	}

	moves, err := d.buildMoves()
	if err != nil {
		return nil, err
	}
	var setters []factored.Action
	for _, s := range cfg.Speeds {
		setters = append(setters, NewSetSpeed(s))
	}
	d.SetSpeed = factored.NewActionDefinition(actionSetSpeed, setters...)
	actions := factored.NewActionSpace()
	if err := actions.Add(d.MoveTo, d.SetSpeed); err != nil {
		return nil, fmt.Errorf("mobilerobot: %w", err)
	}

	transitions, err := d.buildTransitions(moves)
	if err != nil {
		return nil, fmt.Errorf("mobilerobot: %w", err)
	}
	qspace, costFn, err := d.buildQAs()
	if err != nil {
		return nil, fmt.Errorf("mobilerobot: %w", err)
	}

	initial, err := d.State(cfg.Start, cfg.StartSpeed)
	if err != nil {
		return nil, fmt.Errorf("mobilerobot: initial state: %w", err)
	}
	goal, _ := d.Loc.StateVarByKey(cfg.Goal)
	x, err := xmdp.NewBuilder().
		StateSpace(states).
		ActionSpace(actions).
		InitialState(initial).
		Goal(factored.NewStateVarTuple(goal)).
		TransitionFunction(transitions).
		QSpace(qspace).
		CostFunction(costFn).
		Build()
	if err != nil {
		return nil, fmt.Errorf("mobilerobot: %w", err)
	}
	d.XMDP = x
	return d, nil
}

// buildMoves creates one moveTo per location reachable by an edge and
// records each edge's distance and occlusion as derived attributes keyed by
// the source location. It returns the legal sources of every move.
func (d *Domain) buildMoves() (map[string][]*factored.StateVar, error) {
	byDest := make(map[string]MoveTo)
	sources := make(map[string][]*factored.StateVar)
	var order []factored.Action
	for _, e := range d.Config.Edges {
		for _, dir := range [][2]string{{e.From, e.To}, {e.To, e.From}} {
			src, dst := dir[0], dir[1]
			destLoc, ok := d.Locations[dst]
			if !ok {
				return nil, fmt.Errorf("mobilerobot: %w: unknown edge endpoint %s", domain.ErrInvalidConfig, dst)
			}
			srcVar, ok := d.Loc.StateVarByKey(src)
			if !ok {
				return nil, fmt.Errorf("mobilerobot: %w: unknown edge endpoint %s", domain.ErrInvalidConfig, src)
			}
			m, ok := byDest[dst]
			if !ok {
				m = NewMoveTo(destLoc)
				byDest[dst] = m
				order = append(order, m)
			}
			m.PutDerivedAttribute(attrDistance, factored.Float{V: e.Distance}, srcVar)
			m.PutDerivedAttribute(attrOcclusion, factored.Category{V: string(e.Occlusion)}, srcVar)
			sources[dst] = append(sources[dst], srcVar)
		}
	}
	d.MoveTo = factored.NewActionDefinition(actionMoveTo, order...)
	return sources, nil
}

func (d *Domain) buildTransitions(sources map[string][]*factored.StateVar) (*factored.TransitionFunction, error) {
	locEC := factored.NewEffectClass(d.Loc)
	movePre := factored.NewPrecondition(d.MoveTo)
	for _, a := range d.MoveTo.Actions() {
		if err := movePre.Add(a, sources[a.(MoveTo).Dest.ID]...); err != nil {
			return nil, err
		}
	}
	movePSO := factored.NewFactoredPSO(d.MoveTo, movePre)
	err := movePSO.AddActionDescription(factored.NewFormulaActionDescription(d.MoveTo, movePre,
		factored.NewDiscriminantClass(d.Loc), locEC,
		factored.FormulaFunc(func(_ *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
			m, ok := a.(MoveTo)
			if !ok {
				return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: d.MoveTo.Name()}
			}
			e, err := factored.NewEffect(locEC, d.Loc.MustStateVar(m.Dest))
			if err != nil {
				return nil, err
			}
			return factored.Deterministic(e), nil
		})))
	if err != nil {
		return nil, err
	}

	speedEC := factored.NewEffectClass(d.Speed)
	speedPre := factored.NewPrecondition(d.SetSpeed)
	speedPSO := factored.NewFactoredPSO(d.SetSpeed, speedPre)
	err = speedPSO.AddActionDescription(factored.NewFormulaActionDescription(d.SetSpeed, speedPre,
		factored.NewDiscriminantClass(), speedEC,
		factored.FormulaFunc(func(_ *factored.Discriminant, a factored.Action) (*factored.ProbabilisticEffect, error) {
			s, ok := a.(SetSpeed)
			if !ok {
				return nil, &factored.IncompatibleActionError{Action: factored.ActionKey(a), Definition: d.SetSpeed.Name()}
			}
			e, err := factored.NewEffect(speedEC, d.Speed.MustStateVar(factored.Float{V: s.Speed}))
			if err != nil {
				return nil, err
			}
			return factored.Deterministic(e), nil
		})))
	if err != nil {
		return nil, err
	}

	transitions := factored.NewTransitionFunction()
	if err := transitions.Add(movePSO, speedPSO); err != nil {
		return nil, err
	}
	return transitions, nil
}
