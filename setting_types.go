package settings

import (
	"fmt"
	"strconv"
	"strings"
)

// ToValueFunc converts the string form of a setting into a typed value.
type ToValueFunc func(s string) (any, error)

// ToStringFunc converts a typed setting value into its canonical string form.
type ToStringFunc func(value any) (string, error)

type settingType struct {
	toValue  ToValueFunc
	toString ToStringFunc
}

// TypeRegistry maps setting type names to their string conversion functions.
// Either conversion function may be nil, in which case values pass through
// unchanged.
type TypeRegistry struct {
	types map[string]settingType
}

// NewTypeRegistry constructs an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: map[string]settingType{}}
}

// Register adds or replaces the conversion pair for name.
func (r *TypeRegistry) Register(name string, toValue ToValueFunc, toString ToStringFunc) {
	r.types[name] = settingType{toValue: toValue, toString: toString}
}

// Has reports whether name is a registered setting type.
func (r *TypeRegistry) Has(name string) bool {
	_, ok := r.types[name]
	return ok
}

// ValueFromString converts s into a value of the named type.
func (r *TypeRegistry) ValueFromString(typeName, s string) (any, error) {
	t, ok := r.types[typeName]
	if !ok {
		return nil, &UnknownTypeError{Type: typeName}
	}
	if t.toValue == nil {
		return s, nil
	}
	return t.toValue(s)
}

// ValueToString converts value into the canonical string form of the named
// type.
func (r *TypeRegistry) ValueToString(typeName string, value any) (string, error) {
	t, ok := r.types[typeName]
	if !ok {
		return "", &UnknownTypeError{Type: typeName}
	}
	if t.toString == nil {
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	}
	return t.toString(value)
}

// DefaultTypeRegistry returns a registry pre-populated with the standard
// setting types.
func DefaultTypeRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	r.Register("int", intFromString, plainToString)
	r.Register("bool", boolFromString, plainToString)
	r.Register("float", floatFromString, floatToString)
	r.Register("str", nil, nil)
	r.Register("enum", nil, nil)
	// Display-only grouping node, carries no value.
	r.Register("category", nil, nil)
	r.Register("polygon", nil, nil)
	r.Register("polygons", nil, nil)
	r.Register("vec3", nil, nil)
	return r
}

func intFromString(s string) (any, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("settings: parse int %q: %w", s, err)
	}
	return v, nil
}

func boolFromString(s string) (any, error) {
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return nil, fmt.Errorf("settings: parse bool %q: %w", s, err)
	}
	return v, nil
}

// floatFromString tolerates a comma decimal separator so values written under
// a different locale still parse.
func floatFromString(s string) (any, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return nil, fmt.Errorf("settings: parse float %q: %w", s, err)
	}
	return v, nil
}

func floatToString(value any) (string, error) {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

func plainToString(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	return fmt.Sprint(value), nil
}
