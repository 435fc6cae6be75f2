package settings

// Expression is a compiled setting expression. Expressions are pull-based:
// every Evaluate call resolves the referenced settings through the supplied
// Resolver, and no result is ever cached by the expression itself. Caching,
// keyed by stack state, is the caller's concern.
type Expression interface {
	// Text returns the source text of the expression.
	Text() string
	// UsedKeys returns the setting keys the expression references, fixed
	// at compile time, sorted alphabetically.
	UsedKeys() []string
	// Evaluate computes the expression against the resolver. A used key
	// the resolver does not know yields an UnknownSettingReferenceError;
	// keys resolving to an explicit nil evaluate normally.
	Evaluate(r Resolver) (any, error)
}

// Compiler turns expression text into an Expression, rejecting malformed
// input and any construct outside the closed operator/function set with an
// ExpressionSyntaxError. Compilation fails closed: disallowed constructs are
// compile-time errors, never evaluation-time surprises.
type Compiler interface {
	Compile(text string) (Expression, error)
}

// ProgramCache stores compiled expression programs keyed by expression text.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapProgramCache is a trivial ProgramCache for single-threaded use.
type MapProgramCache map[string]any

// Get implements ProgramCache.
func (c MapProgramCache) Get(key string) (any, bool) {
	value, ok := c[key]
	return value, ok
}

// Set implements ProgramCache.
func (c MapProgramCache) Set(key string, value any) {
	c[key] = value
}
