package packet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sealed interface over parameter values.
// Only Null, String, Number and Bool implement it; parameters are scalars.
type Value interface {
	paramValue() // Sealed - only these types implement it
	fmt.Stringer
}

// Null is the sentinel for an absent or JSON-null value.
// Comparisons against Null are always false.
type Null struct{}

func (Null) paramValue() {}

func (Null) String() string { return "null" }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string parameter value.
type String string

func (String) paramValue() {}

func (s String) String() string { return strconv.Quote(string(s)) }

// Number is a numeric parameter value. Integers and floats are not
// distinguished: comparisons are numeric.
type Number float64

func (Number) paramValue() {}

func (n Number) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }

// Bool is a boolean parameter value.
type Bool bool

func (Bool) paramValue() {}

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// ValueOf converts a decoded JSON scalar into a Value.
// Accepts nil, string, bool, float64, json.Number and Go integer types.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case float64:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Number(f), nil
	default:
		return nil, fmt.Errorf("parameter values must be scalars, got %T", v)
	}
}

// Parameters maps parameter names to scalar values.
type Parameters map[string]Value

// Get returns the named value, or Null if absent.
func (p Parameters) Get(key string) Value {
	if v, ok := p[key]; ok && v != nil {
		return v
	}
	return Null{}
}

// UnmarshalJSON decodes a JSON object of scalars. JSON null decodes to a
// nil map.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := make(Parameters, len(raw))
	for k, v := range raw {
		val, err := ValueOf(v)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = val
	}
	*p = out
	return nil
}

// MarshalJSON encodes parameters as a JSON object. Encoding a nil map
// produces null.
func (p Parameters) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	plain := make(map[string]any, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case nil, Null:
			plain[k] = nil
		case String:
			plain[k] = string(val)
		case Number:
			plain[k] = float64(val)
		case Bool:
			plain[k] = bool(val)
		}
	}
	return json.Marshal(plain)
}
