// Package cost combines quality-attribute values into a single scalar
// cost for the planner: linear single-attribute cost functions, weighted
// by scaling constants, plus a positivity offset for SSP solving.
package cost

import (
	"errors"
	"fmt"
	"math"

	"github.com/ashita-ai/xplan/internal/qa"
)

const scalingTolerance = 1e-6

var (
	ErrInvalidScaling = errors.New("cost: invalid scaling constants")
	ErrNoCostFunction = errors.New("cost: QFunction has no attribute cost function")
)

// AttributeCostFunction is the linear cost a + b·x of one QA value. b is
// expected to be positive.
type AttributeCostFunction struct {
	A float64
	B float64
}

func (f AttributeCostFunction) Cost(x float64) float64 {
	return f.A + f.B*x
}

func (f AttributeCostFunction) Inverse(cost float64) float64 {
	return (cost - f.A) / f.B
}

type entry struct {
	qfn     qa.QFunction
	attr    AttributeCostFunction
	scaling float64
}

// CostFunction is the multi-attribute cost Σ kᵢ·fᵢ(xᵢ) + offset. The offset
// keeps every non-goal transition cost positive.
type CostFunction struct {
	offset  float64
	entries []entry
	byName  map[string]int
}

func NewCostFunction(offset float64) *CostFunction {
	return &CostFunction{offset: offset, byName: make(map[string]int)}
}

// Put sets the attribute cost function and scaling constant of qfn.
func (c *CostFunction) Put(qfn qa.QFunction, attr AttributeCostFunction, scaling float64) {
	if i, ok := c.byName[qfn.Name()]; ok {
		c.entries[i] = entry{qfn: qfn, attr: attr, scaling: scaling}
		return
	}
	c.byName[qfn.Name()] = len(c.entries)
	c.entries = append(c.entries, entry{qfn: qfn, attr: attr, scaling: scaling})
}

func (c *CostFunction) Offset() float64 { return c.offset }

// QFunctions returns the QFunctions with a cost term, in insertion order.
func (c *CostFunction) QFunctions() []qa.QFunction {
	out := make([]qa.QFunction, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.qfn
	}
	return out
}

// AttributeCostFunction returns the cost function of the named QFunction.
func (c *CostFunction) AttributeCostFunction(name string) (AttributeCostFunction, error) {
	i, ok := c.byName[name]
	if !ok {
		return AttributeCostFunction{}, fmt.Errorf("%w: %q", ErrNoCostFunction, name)
	}
	return c.entries[i].attr, nil
}

// ScalingConstant returns the scaling constant of the named QFunction.
func (c *CostFunction) ScalingConstant(name string) (float64, error) {
	i, ok := c.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNoCostFunction, name)
	}
	return c.entries[i].scaling, nil
}

// ScaledCost is kᵢ·fᵢ(x) for the named QFunction.
func (c *CostFunction) ScaledCost(name string, x float64) (float64, error) {
	i, ok := c.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNoCostFunction, name)
	}
	e := c.entries[i]
	return e.scaling * e.attr.Cost(x), nil
}

// TransitionCost sums the scaled costs of values (keyed by QFunction name)
// and adds the offset. QFunctions missing from values contribute fᵢ(0).
func (c *CostFunction) TransitionCost(values map[string]float64) float64 {
	total := c.offset
	for _, e := range c.entries {
		total += e.scaling * e.attr.Cost(values[e.qfn.Name()])
	}
	return total
}

// Validate checks that every scaling constant lies in [0,1] and that they
// sum to 1.
func (c *CostFunction) Validate() error {
	if len(c.entries) == 0 {
		return nil
	}
	var sum float64
	for _, e := range c.entries {
		if e.scaling < 0 || e.scaling > 1 || math.IsNaN(e.scaling) {
			return fmt.Errorf("%w: %q has %v", ErrInvalidScaling, e.qfn.Name(), e.scaling)
		}
		sum += e.scaling
	}
	if math.Abs(sum-1) > scalingTolerance {
		return fmt.Errorf("%w: constants sum to %v", ErrInvalidScaling, sum)
	}
	return nil
}
