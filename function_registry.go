package settings

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Function is a callable available to setting expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry is the closed vocabulary of functions setting expressions
// may call. Compilers reject calls to any name not registered here, so the
// registry doubles as the allow-list of the expression trust boundary.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("settings: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("settings: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := name
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("settings: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Has reports whether name is a registered function.
func (r *FunctionRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[name]
	return ok
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{functions: make(map[string]Function, len(r.functions))}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("settings: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("settings: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFunctionRegistry returns the standard expression vocabulary: pure
// numeric helpers plus defaultTo for absent-value guards. Hosts may extend it
// before the first expression is compiled.
func DefaultFunctionRegistry() *FunctionRegistry {
	r := NewFunctionRegistry()
	numeric := map[string]func(float64) float64{
		"abs":   math.Abs,
		"ceil":  math.Ceil,
		"floor": math.Floor,
		"round": math.Round,
		"sqrt":  math.Sqrt,
	}
	for name, fn := range numeric {
		fn := fn
		_ = r.Register(name, func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("settings: function expects one argument, got %d", len(args))
			}
			v, err := asFloat(args[0])
			if err != nil {
				return nil, err
			}
			return fn(v), nil
		})
	}
	_ = r.Register("min", variadicPick(func(best, next float64) bool { return next < best }))
	_ = r.Register("max", variadicPick(func(best, next float64) bool { return next > best }))
	_ = r.Register("len", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("settings: len expects one argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case nil:
			return 0, nil
		case string:
			return len(v), nil
		case []any:
			return len(v), nil
		default:
			return nil, fmt.Errorf("settings: len does not support %T", args[0])
		}
	})
	_ = r.Register("defaultTo", func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("settings: defaultTo expects two arguments, got %d", len(args))
		}
		if args[0] == nil {
			return args[1], nil
		}
		return args[0], nil
	})
	return r
}

func variadicPick(better func(best, next float64) bool) Function {
	return func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("settings: at least one argument required")
		}
		best, err := asFloat(args[0])
		if err != nil {
			return nil, err
		}
		for _, arg := range args[1:] {
			v, err := asFloat(arg)
			if err != nil {
				return nil, err
			}
			if better(best, v) {
				best = v
			}
		}
		return best, nil
	}
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("settings: value %v (%T) is not numeric", value, value)
	}
}
