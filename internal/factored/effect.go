package factored

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ProbabilityTolerance bounds the deviation of a distribution's mass from 1.
const ProbabilityTolerance = 1e-6

// Outcome is one effect with its probability.
type Outcome struct {
	Effect      *Effect
	Probability float64
}

// ProbabilisticEffect is a discrete distribution over the effects of one
// effect class.
type ProbabilisticEffect struct {
	class   EffectClass
	effects map[string]*Effect
	probs   map[string]float64
}

// NewProbabilisticEffect creates an empty distribution for class.
func NewProbabilisticEffect(class EffectClass) *ProbabilisticEffect {
	return &ProbabilisticEffect{
		class:   class,
		effects: make(map[string]*Effect),
		probs:   make(map[string]float64),
	}
}

// Deterministic returns a distribution putting all mass on e.
func Deterministic(e *Effect) *ProbabilisticEffect {
	p := NewProbabilisticEffect(e.class)
	p.effects[e.Key()] = e
	p.probs[e.Key()] = 1
	return p
}

// Clone returns a copy whose mass can be changed without affecting p.
func (p *ProbabilisticEffect) Clone() *ProbabilisticEffect {
	c := NewProbabilisticEffect(p.class)
	for k, e := range p.effects {
		c.effects[k] = e
		c.probs[k] = p.probs[k]
	}
	return c
}

// Put adds prob to the mass of effect. Putting an equal effect twice sums
// the probabilities. The effect must assign every variable of the class.
func (p *ProbabilisticEffect) Put(effect *Effect, prob float64) error {
	if effect.class.Key() != p.class.Key() || !effect.complete() {
		return &IncompatibleVarError{Var: effect.Key(), Scope: "effect class " + p.class.Key()}
	}
	k := effect.Key()
	if _, ok := p.effects[k]; !ok {
		p.effects[k] = effect
	}
	p.probs[k] += prob
	return nil
}

func (p *ProbabilisticEffect) Class() EffectClass { return p.class }

// Len is the number of distinct effects.
func (p *ProbabilisticEffect) Len() int { return len(p.effects) }

// Probability returns the mass of effect, zero if absent.
func (p *ProbabilisticEffect) Probability(effect *Effect) float64 {
	return p.probs[effect.Key()]
}

// Outcomes returns the effects sorted by key.
func (p *ProbabilisticEffect) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(p.effects))
	for _, k := range sortedKeys(p.effects) {
		out = append(out, Outcome{Effect: p.effects[k], Probability: p.probs[k]})
	}
	return out
}

// Sum is the total probability mass.
func (p *ProbabilisticEffect) Sum() float64 {
	var sum float64
	for _, k := range sortedKeys(p.probs) {
		sum += p.probs[k]
	}
	return sum
}

// Validate checks non-negativity and that the mass sums to 1.
func (p *ProbabilisticEffect) Validate() error {
	if len(p.effects) == 0 {
		return fmt.Errorf("%w: empty distribution over %s", ErrInvalidDistribution, p.class.Key())
	}
	for k, prob := range p.probs {
		if prob < 0 || math.IsNaN(prob) {
			return fmt.Errorf("%w: p(%s) = %v", ErrInvalidDistribution, k, prob)
		}
	}
	if sum := p.Sum(); math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("%w: mass over %s sums to %v", ErrInvalidDistribution, p.class.Key(), sum)
	}
	return nil
}

// Equal reports whether both distributions assign the same mass to the same
// effects, within ProbabilityTolerance.
func (p *ProbabilisticEffect) Equal(other *ProbabilisticEffect) bool {
	if p.class.Key() != other.class.Key() || len(p.probs) != len(other.probs) {
		return false
	}
	for k, prob := range p.probs {
		o, ok := other.probs[k]
		if !ok || math.Abs(o-prob) > ProbabilityTolerance {
			return false
		}
	}
	return true
}

func (p *ProbabilisticEffect) String() string {
	outcomes := p.Outcomes()
	parts := make([]string, len(outcomes))
	for i, o := range outcomes {
		parts[i] = fmt.Sprintf("%s:%.4g", o.Effect.Key(), o.Probability)
	}
	sort.Strings(parts)
	return "[" + strings.Join(parts, " ") + "]"
}
