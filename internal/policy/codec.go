package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashita-ai/xplan/internal/factored"
)

// Decode failures.
var (
	ErrMalformedPolicy = errors.New("policy: malformed policy document")
	ErrUnknownStateVar = errors.New("policy: unknown state variable")
	ErrUnknownAction   = errors.New("policy: unknown action")
)

type document struct {
	Policy []record `json:"policy"`
}

type record struct {
	State  map[string]any `json:"state"`
	Action actionRecord   `json:"action"`
}

type actionRecord struct {
	Type   string `json:"type"`
	Params []any  `json:"params"`
}

// Encode writes p in the persisted record format: an ordered list of
// {state, action} records where a state is a flat map of variable name to
// primitive and an action is its name prefix with ordered primitive
// parameters.
func Encode(p *Policy) ([]byte, error) {
	doc := document{Policy: make([]record, 0, p.Len())}
	for _, d := range p.Decisions() {
		state := make(map[string]any, d.State.Len())
		for _, v := range d.State.Vars() {
			state[v.Name()] = v.Value().Primitive()
		}
		params := make([]any, 0, len(d.Action.Parameters()))
		for _, v := range d.Action.Parameters() {
			params = append(params, v.Primitive())
		}
		doc.Policy = append(doc.Policy, record{
			State:  state,
			Action: actionRecord{Type: d.Action.NamePrefix(), Params: params},
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("policy: encode: %w", err)
	}
	return data, nil
}

// Decode reads a policy in the persisted record format, resolving variable
// names, values and actions against the given spaces.
func Decode(data []byte, states *factored.StateSpace, actions *factored.ActionSpace) (*Policy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPolicy, err)
	}

	p := New()
	for i, r := range doc.Policy {
		state, err := decodeState(r.State, states)
		if err != nil {
			return nil, fmt.Errorf("policy: record %d: %w", i, err)
		}
		keys := make([]string, len(r.Action.Params))
		for j, prim := range r.Action.Params {
			k, err := primitiveKey(prim)
			if err != nil {
				return nil, fmt.Errorf("policy: record %d: action %q: %w", i, r.Action.Type, err)
			}
			keys[j] = k
		}
		a, err := actions.Action(r.Action.Type, keys...)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrUnknownAction, i, err)
		}
		p.Put(state, a)
	}
	return p, nil
}

func decodeState(m map[string]any, states *factored.StateSpace) (*factored.StateVarTuple, error) {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)

	vars := make([]*factored.StateVar, 0, len(names))
	for _, n := range names {
		def, ok := states.Definition(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStateVar, n)
		}
		k, err := primitiveKey(m[n])
		if err != nil {
			return nil, fmt.Errorf("state variable %q: %w", n, err)
		}
		v, ok := def.StateVarByKey(k)
		if !ok {
			return nil, fmt.Errorf("%w: %s=%s", ErrUnknownStateVar, n, k)
		}
		vars = append(vars, v)
	}
	return factored.NewStateVarTuple(vars...), nil
}

// primitiveKey converts a decoded JSON primitive to the canonical value key.
// Numbers with a fraction or exponent are re-keyed through
// factored.FloatKey; integer text is already canonical for ints and
// integral floats alike.
func primitiveKey(v any) (string, error) {
	switch t := v.(type) {
	case json.Number:
		text := t.String()
		if !strings.ContainsAny(text, ".eE") {
			return text, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return "", fmt.Errorf("%w: number %s: %w", ErrMalformedPolicy, text, err)
		}
		return factored.FloatKey(f), nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("%w: unsupported primitive %T", ErrMalformedPolicy, v)
	}
}
