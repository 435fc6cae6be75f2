package settings

import (
	"fmt"
	"sort"
	"time"

	celgo "github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELCompilerOption configures the CEL-backed compiler.
type CELCompilerOption func(*celCompiler)

// CELWithProgramCache wires a ProgramCache into the CEL compiler.
func CELWithProgramCache(cache ProgramCache) CELCompilerOption {
	return func(c *celCompiler) {
		c.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL compiler.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELCompilerOption {
	return func(c *celCompiler) {
		if registry == nil {
			return
		}
		c.registry = registry.Clone()
	}
}

// CELWithLogger attaches an evaluator logger to the CEL compiler.
func CELWithLogger(logger EvaluatorLogger) CELCompilerOption {
	return func(c *celCompiler) {
		if logger == nil {
			c.logger = noopEvaluatorLogger{}
			return
		}
		c.logger = logger
	}
}

// celCompiler compiles setting expressions using google/cel-go. The text is
// parsed once against a bare environment to collect referenced identifiers
// and screen constructs, then checked against an environment that declares
// exactly those identifiers, so anything outside the allow-list fails closed
// at compile time.
type celCompiler struct {
	cache    ProgramCache
	registry *FunctionRegistry
	logger   EvaluatorLogger
}

// NewCELCompiler constructs an expression Compiler backed by cel-go.
func NewCELCompiler(opts ...CELCompilerOption) Compiler {
	c := &celCompiler{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.registry == nil {
		c.registry = DefaultFunctionRegistry()
	}
	if c.logger == nil {
		c.logger = noopEvaluatorLogger{}
	}
	return c
}

// allowedOperators is the operator subset setting expressions may use.
var allowedOperators = map[string]struct{}{
	operators.LogicalAnd:    {},
	operators.LogicalOr:     {},
	operators.LogicalNot:    {},
	operators.Equals:        {},
	operators.NotEquals:     {},
	operators.Less:          {},
	operators.LessEquals:    {},
	operators.Greater:       {},
	operators.GreaterEquals: {},
	operators.Add:           {},
	operators.Subtract:      {},
	operators.Multiply:      {},
	operators.Divide:        {},
	operators.Modulo:        {},
	operators.Negate:        {},
	operators.Conditional:   {},
	operators.In:            {},
}

// Compile implements Compiler.
func (c *celCompiler) Compile(text string) (Expression, error) {
	if text == "" {
		return nil, wrapSyntaxError(text, fmt.Errorf("expression must not be empty"))
	}
	if c.cache != nil {
		if cached, ok := c.cache.Get(text); ok {
			if compiled, ok := cached.(*celExpression); ok {
				return compiled, nil
			}
		}
	}

	bare, err := celgo.NewEnv()
	if err != nil {
		return nil, wrapSyntaxError(text, err)
	}
	parsed, issues := bare.Parse(text)
	if issues != nil && issues.Err() != nil {
		return nil, wrapSyntaxError(text, issues.Err())
	}

	keys, err := c.screen(parsed.NativeRep().Expr())
	if err != nil {
		return nil, wrapSyntaxError(text, err)
	}

	env, err := c.buildEnv(keys)
	if err != nil {
		return nil, wrapSyntaxError(text, err)
	}
	checked, issues := env.Compile(text)
	if issues != nil && issues.Err() != nil {
		return nil, wrapSyntaxError(text, issues.Err())
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, wrapSyntaxError(text, err)
	}

	compiled := &celExpression{
		compiler: c,
		text:     text,
		keys:     keys,
		program:  program,
	}
	if c.cache != nil {
		c.cache.Set(text, compiled)
	}
	return compiled, nil
}

// screen walks the parsed expression collecting identifier references and
// rejecting member access, map/struct construction, comprehensions and calls
// outside the operator set and function vocabulary.
func (c *celCompiler) screen(root celast.Expr) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	var walkErr error
	reject := func(format string, args ...any) {
		if walkErr == nil {
			walkErr = fmt.Errorf(format, args...)
		}
	}
	celast.PreOrderVisit(root, celast.NewExprVisitor(func(e celast.Expr) {
		switch e.Kind() {
		case celast.IdentKind:
			keys[e.AsIdent()] = struct{}{}
		case celast.CallKind:
			call := e.AsCall()
			if call.IsMemberFunction() {
				reject("method calls are not allowed in setting expressions")
				return
			}
			name := call.FunctionName()
			if _, ok := allowedOperators[name]; ok {
				return
			}
			if !c.registry.Has(name) {
				reject("call to function %q is not allowed", name)
			}
		case celast.SelectKind:
			reject("member access is not allowed in setting expressions")
		case celast.MapKind, celast.StructKind:
			reject("map and struct construction is not allowed in setting expressions")
		case celast.ComprehensionKind:
			reject("comprehensions are not allowed in setting expressions")
		case celast.LiteralKind, celast.ListKind, celast.UnspecifiedExprKind:
		}
	}))
	if walkErr != nil {
		return nil, walkErr
	}
	return keys, nil
}

func (c *celCompiler) buildEnv(keys map[string]struct{}) (*celgo.Env, error) {
	opts := make([]celgo.EnvOption, 0, len(keys)+len(c.registry.Names()))
	for key := range keys {
		opts = append(opts, celgo.Variable(key, celgo.DynType))
	}
	for _, name := range c.registry.Names() {
		name := name
		overloads := make([]celgo.FunctionOpt, 0, 3)
		for arity := 1; arity <= 3; arity++ {
			args := make([]*celgo.Type, arity)
			for i := range args {
				args[i] = celgo.DynType
			}
			overloads = append(overloads, celgo.Overload(
				fmt.Sprintf("%s_dyn_%d", name, arity),
				args,
				celgo.DynType,
				celgo.FunctionBinding(c.binding(name)),
			))
		}
		opts = append(opts, celgo.Function(name, overloads...))
	}
	return celgo.NewEnv(opts...)
}

func (c *celCompiler) binding(name string) func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		args := make([]any, 0, len(values))
		for _, val := range values {
			args = append(args, nativeValue(val))
		}
		result, err := c.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

type celExpression struct {
	compiler *celCompiler
	text     string
	keys     map[string]struct{}
	program  celgo.Program
}

// Text implements Expression.
func (e *celExpression) Text() string {
	return e.text
}

// UsedKeys implements Expression.
func (e *celExpression) UsedKeys() []string {
	keys := make([]string, 0, len(e.keys))
	for key := range e.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Evaluate implements Expression.
func (e *celExpression) Evaluate(r Resolver) (any, error) {
	start := time.Now()
	value, err := e.evaluate(r)
	e.compiler.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   "cel",
		Expr:     e.text,
		Duration: time.Since(start),
		Err:      err,
	})
	return value, err
}

func (e *celExpression) evaluate(r Resolver) (any, error) {
	if r == nil {
		return nil, wrapEvaluationError("cel", e.text, "", fmt.Errorf("resolver must not be nil"))
	}
	activation := make(map[string]any, len(e.keys))
	for key := range e.keys {
		value, ok := r.Resolve(key)
		if !ok {
			return nil, &UnknownSettingReferenceError{Expr: e.text, Key: key}
		}
		activation[key] = value
	}
	out, _, err := e.program.Eval(activation)
	if err != nil {
		return nil, wrapEvaluationError("cel", e.text, "", err)
	}
	return nativeValue(out), nil
}

func nativeValue(val ref.Val) any {
	if val == nil || val == types.NullValue {
		return nil
	}
	return val.Value()
}
