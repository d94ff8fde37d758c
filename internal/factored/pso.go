package factored

import "fmt"

// FactoredPSO is a factored probabilistic STRIPS operator: one action type's
// precondition plus one action description per independent effect class.
type FactoredPSO struct {
	def          *ActionDefinition
	precondition *Precondition
	classes      []EffectClass
	descs        map[string]ActionDescription
}

// NewFactoredPSO creates an operator with no effect-class handlers.
func NewFactoredPSO(def *ActionDefinition, precondition *Precondition) *FactoredPSO {
	return &FactoredPSO{
		def:          def,
		precondition: precondition,
		descs:        make(map[string]ActionDescription),
	}
}

func (p *FactoredPSO) ActionDefinition() *ActionDefinition { return p.def }
func (p *FactoredPSO) Precondition() *Precondition { return p.precondition }

// AddActionDescription registers the handler of one effect class.
func (p *FactoredPSO) AddActionDescription(desc ActionDescription) error {
	if desc.ActionDefinition() != p.def {
		return fmt.Errorf("factored: description for %q added to PSO of %q", desc.ActionDefinition().name, p.def.name)
	}
	ec := desc.EffectClass()
	for _, existing := range p.classes {
		if existing.Overlaps(ec) {
			return fmt.Errorf("factored: effect class %s overlaps %s on PSO %q", ec.Key(), existing.Key(), p.def.name)
		}
	}
	p.classes = append(p.classes, ec)
	p.descs[ec.Key()] = desc
	return nil
}

// ActionDescription returns the handler of ec.
func (p *FactoredPSO) ActionDescription(ec EffectClass) (ActionDescription, error) {
	d, ok := p.descs[ec.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %q", ErrEffectClassNotFound, ec.Key(), p.def.name)
	}
	return d, nil
}

// IndependentEffectClasses returns this PSO's own effect classes in
// registration order. A constituent PSO does not include its parent's.
func (p *FactoredPSO) IndependentEffectClasses() []EffectClass {
	out := make([]EffectClass, len(p.classes))
	copy(out, p.classes)
	return out
}

// ActionDescriptions returns the handlers in registration order.
func (p *FactoredPSO) ActionDescriptions() []ActionDescription {
	out := make([]ActionDescription, 0, len(p.classes))
	for _, ec := range p.classes {
		out = append(out, p.descs[ec.Key()])
	}
	return out
}

// ProbabilisticTransitions enumerates the transitions of a across all
// effect classes of this PSO.
func (p *FactoredPSO) ProbabilisticTransitions(a Action) ([]ProbabilisticTransition, error) {
	var out []ProbabilisticTransition
	for _, d := range p.ActionDescriptions() {
		ts, err := d.ProbabilisticTransitions(a)
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}
