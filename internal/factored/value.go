// Package factored implements the factored MDP representation: typed
// values, state-variable and action definitions, the effect algebra
// (effects, discriminants, probabilistic effects, preconditions), action
// descriptions, factored PSOs and the transition function.
//
// All definitions are immutable once constructed and may be shared
// read-only across goroutines.
package factored

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is a typed value taken by a state variable or an action parameter.
//
// Primitive returns the underlying int, float64, bool or string. Two values
// with the same primitive are interchangeable within one definition.
type Value interface {
	Primitive() any
	Attribute(name string) (Value, error)
}

// KeyOf returns the canonical key of a value. Floats use FloatKey, other
// primitives their default formatting.
func KeyOf(v Value) string {
	if f, ok := v.Primitive().(float64); ok {
		return FloatKey(f)
	}
	return fmt.Sprint(v.Primitive())
}

// FloatKey formats f as the shortest decimal that parses back to f, never
// in exponent form, so 1e-05 and 0.00001 share a key.
func FloatKey(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NoAttributes is embedded by values without named attributes.
type NoAttributes struct{}

// Attribute always fails.
func (NoAttributes) Attribute(name string) (Value, error) {
	return nil, fmt.Errorf("%w: %q", ErrAttributeNotFound, name)
}

// Attributes is a map-backed attribute set for values that carry named
// sub-attributes (e.g. a location's area type).
type Attributes map[string]Value

// Attribute returns the named sub-attribute.
func (a Attributes) Attribute(name string) (Value, error) {
	v, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAttributeNotFound, name)
	}
	return v, nil
}

// Int is an integer value.
type Int struct {
	NoAttributes
	V int
}

func (i Int) Primitive() any { return i.V }

// Float is a real-valued value.
type Float struct {
	NoAttributes
	V float64
}

func (f Float) Primitive() any { return f.V }

// Bool is a boolean value.
type Bool struct {
	NoAttributes
	V bool
}

func (b Bool) Primitive() any { return b.V }

// Category is a named categorical value.
type Category struct {
	NoAttributes
	V string
}

func (c Category) Primitive() any { return c.V }

// IntValue extracts an int primitive.
func IntValue(v Value) (int, error) {
	switch p := v.Primitive().(type) {
	case int:
		return p, nil
	default:
		return 0, fmt.Errorf("factored: value %v is %T, not int", p, p)
	}
}

// FloatValue extracts a float64 primitive, widening ints.
func FloatValue(v Value) (float64, error) {
	switch p := v.Primitive().(type) {
	case float64:
		return p, nil
	case int:
		return float64(p), nil
	default:
		return 0, fmt.Errorf("factored: value %v is %T, not numeric", p, p)
	}
}

// BoolValue extracts a bool primitive.
func BoolValue(v Value) (bool, error) {
	p, ok := v.Primitive().(bool)
	if !ok {
		return false, fmt.Errorf("factored: value %v is %T, not bool", v.Primitive(), v.Primitive())
	}
	return p, nil
}

// Ints returns Int values lo..hi inclusive.
func Ints(lo, hi int) []Value {
	out := make([]Value, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, Int{V: i})
	}
	return out
}

// Bools returns the two boolean values.
func Bools() []Value {
	return []Value{Bool{V: false}, Bool{V: true}}
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinKeys(parts []string) string {
	return strings.Join(parts, ",")
}
