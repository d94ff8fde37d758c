package factored

import (
	"errors"
	"fmt"
)

// Lookup failures. Callers test with errors.Is.
var (
	ErrAttributeNotFound      = errors.New("factored: attribute not found")
	ErrEffectClassNotFound    = errors.New("factored: effect class not found")
	ErrPSONotFound            = errors.New("factored: factored PSO not found")
	ErrActionNotFound         = errors.New("factored: action not found")
	ErrStateVarNotFound       = errors.New("factored: state variable not found")
	ErrInvalidDistribution    = errors.New("factored: invalid probability distribution")
	ErrOverlappingEffectClass = errors.New("factored: effect class handled by both composite and constituent PSO")
)

// IncompatibleVarError reports a state variable whose definition is not
// part of the class or structure it was added to.
type IncompatibleVarError struct {
	Var   string
	Scope string
}

func (e *IncompatibleVarError) Error() string {
	return fmt.Sprintf("factored: state variable %q is not declared in %s", e.Var, e.Scope)
}

// IncompatibleActionError reports an action that does not belong to the
// action definition it was used with.
type IncompatibleActionError struct {
	Action     string
	Definition string
}

func (e *IncompatibleActionError) Error() string {
	return fmt.Sprintf("factored: action %s is not a member of action definition %q", e.Action, e.Definition)
}

// PreconditionViolationError reports an action used in a state that does not
// satisfy the action's precondition.
type PreconditionViolationError struct {
	Action string
	State  string
}

func (e *PreconditionViolationError) Error() string {
	return fmt.Sprintf("factored: action %s is not applicable in state {%s}", e.Action, e.State)
}
