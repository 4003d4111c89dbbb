package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface representing constrained value types.
// Only IRNull, IRString, IRInt, IRBool, IRArray, and IRObject implement this.
// There is no IRFloat: amounts are carried as integer minor units.
type IRValue interface {
	irValue()
}

// IRNull represents a JSON null value, e.g. a field whose data has not loaded.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRPair represents a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is a shorthand for IRPair.
// Example: Obj(O("number", IRString("F-7")), O("discount", IRInt(0)))
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// Obj creates an IRObject from typed key-value pairs.
func Obj(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Arr creates an IRArray from values.
func Arr(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for astral characters.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Clone returns a deep copy of the object. Snapshots handed to a tracker
// are cloned so later form mutations cannot reach the stored baseline.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a single value.
func CloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRObject:
		return val.Clone()
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// IsEmpty reports whether v carries no usable data: missing, null, an empty
// string, an empty array or an empty object. Zero integers and false are data.
func IsEmpty(v IRValue) bool {
	switch val := v.(type) {
	case nil, IRNull:
		return true
	case IRString:
		return strings.TrimSpace(string(val)) == ""
	case IRArray:
		return len(val) == 0
	case IRObject:
		return len(val) == 0
	default:
		return false
	}
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// FromAny converts a decoded YAML or JSON value into an IRValue.
//
// Accepted inputs are nil, string, bool, the Go integer kinds, float64
// values that are whole numbers (YAML and encoding/json decode numbers as
// float64), json.Number, []any and map[string]any. Fractional numbers are
// rejected.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(int64(val)), nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return IRInt(int64(val)), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return nil, fmt.Errorf("floats are forbidden in snapshots: %v", val)
		}
		return IRInt(int64(val)), nil
	case json.Number:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("floats are forbidden in snapshots: %s", val)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		return ObjectFromMap(val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromMap converts a decoded map into an IRObject.
func ObjectFromMap(m map[string]any) (IRObject, error) {
	obj := make(IRObject, len(m))
	for k, elem := range m {
		irElem, err := FromAny(elem)
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		obj[k] = irElem
	}
	return obj, nil
}

// ToAny converts an IRValue back to plain Go values (for YAML/JSON output
// and assertion matching).
func ToAny(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	converted, err := ObjectFromMap(raw)
	if err != nil {
		return err
	}
	*obj = converted
	return nil
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// The output is the canonical encoding.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}
