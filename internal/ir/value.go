package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is the constrained value model for canonical serialization.
//
// This is a sealed interface - only types in this package implement it.
// The model deliberately excludes floats and null: certificates must be
// byte-stable across runs and implementations, and neither floats nor null
// have a canonical form worth arguing about.
//
// Value types:
//   - String: UTF-8 text (NFC-normalized at serialization)
//   - Int: 64-bit signed integer
//   - Bool: true/false
//   - Array: ordered list of Values
//   - Object: string-keyed map of Values (keys sorted when serialized)
type Value interface {
	valueNode() // Marker method - seals interface to this package
}

// String is a canonical string value.
type String string

// Int is a canonical 64-bit integer value.
type Int int64

// Bool is a canonical boolean value.
type Bool bool

// Array is an ordered list of canonical values.
type Array []Value

// Object is a string-keyed map of canonical values.
type Object map[string]Value

func (String) valueNode() {}
func (Int) valueNode()    {}
func (Bool) valueNode()   {}
func (Array) valueNode()  {}
func (Object) valueNode() {}

// ToValue converts plain Go data (as produced by yaml/json decoding) into the
// constrained Value model. Floats and nil are rejected.
func ToValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical values")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %q is forbidden in canonical values", val.String())
		}
		return Int(n), nil
	case bool:
		return Bool(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical values: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			cv, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = cv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			cv, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = cv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type for canonical value: %T", v)
	}
}

// MustValue is like ToValue but panics on error. Use only in tests or when
// inputs are known to be valid.
func MustValue(v any) Value {
	cv, err := ToValue(v)
	if err != nil {
		panic(err)
	}
	return cv
}

// UnmarshalValue parses JSON bytes into the constrained Value model.
// Numbers are decoded via json.Number to avoid float64 precision loss.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal canonical value: %w", err)
	}
	return ToValue(raw)
}
