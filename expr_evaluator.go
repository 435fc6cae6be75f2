package settings

import (
	"fmt"
	"sort"
	"time"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprCompilerOption configures an expr-backed compiler instance.
type ExprCompilerOption func(*exprCompiler)

// ExprWithProgramCache wires a ProgramCache into the expr compiler.
func ExprWithProgramCache(cache ProgramCache) ExprCompilerOption {
	return func(c *exprCompiler) {
		c.cache = cache
	}
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr compiler.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprCompilerOption {
	return func(c *exprCompiler) {
		if registry == nil {
			return
		}
		c.registry = registry.Clone()
	}
}

// ExprWithLogger attaches an evaluator logger to the expr compiler.
func ExprWithLogger(logger EvaluatorLogger) ExprCompilerOption {
	return func(c *exprCompiler) {
		if logger == nil {
			c.logger = noopEvaluatorLogger{}
			return
		}
		c.logger = logger
	}
}

// exprCompiler compiles setting expressions using github.com/expr-lang/expr.
// Before handing the text to the expr compiler it walks the parsed syntax
// tree rejecting every construct outside the closed allow-list, so member
// access, closures and calls to unregistered names fail at compile time.
type exprCompiler struct {
	cache    ProgramCache
	registry *FunctionRegistry
	logger   EvaluatorLogger
}

// NewExprCompiler constructs the default expression Compiler, backed by
// expr-lang/expr and the default function vocabulary.
func NewExprCompiler(opts ...ExprCompilerOption) Compiler {
	c := &exprCompiler{}
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

// Compile implements Compiler.
func (c *exprCompiler) Compile(text string) (Expression, error) {
	if text == "" {
		return nil, wrapSyntaxError(text, fmt.Errorf("expression must not be empty"))
	}
	if c.cache != nil {
		if cached, ok := c.cache.Get(text); ok {
			if compiled, ok := cached.(*exprExpression); ok {
				return compiled, nil
			}
		}
	}

	tree, err := parser.Parse(text)
	if err != nil {
		return nil, wrapSyntaxError(text, err)
	}
	keys, err := c.inspect(tree.Node)
	if err != nil {
		return nil, wrapSyntaxError(text, err)
	}

	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range c.registry.Names() {
		name := name
		options = append(options, exprlang.Function(name, func(args ...any) (any, error) {
			return c.registry.Call(name, args...)
		}))
	}
	program, err := exprlang.Compile(text, options...)
	if err != nil {
		return nil, wrapSyntaxError(text, err)
	}

	compiled := &exprExpression{
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

// inspect walks the syntax tree, collecting referenced setting keys and
// rejecting disallowed constructs. Unknown node kinds are rejected so new
// parser features stay outside the trust boundary until reviewed.
func (c *exprCompiler) inspect(node ast.Node) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	if err := c.walk(node, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *exprCompiler) walk(node ast.Node, keys map[string]struct{}) error {
	switch n := node.(type) {
	case *ast.NilNode, *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.StringNode, *ast.ConstantNode:
		return nil
	case *ast.IdentifierNode:
		keys[n.Value] = struct{}{}
		return nil
	case *ast.UnaryNode:
		return c.walk(n.Node, keys)
	case *ast.BinaryNode:
		if err := c.walk(n.Left, keys); err != nil {
			return err
		}
		return c.walk(n.Right, keys)
	case *ast.ConditionalNode:
		if err := c.walk(n.Cond, keys); err != nil {
			return err
		}
		if err := c.walk(n.Exp1, keys); err != nil {
			return err
		}
		return c.walk(n.Exp2, keys)
	case *ast.ArrayNode:
		for _, item := range n.Nodes {
			if err := c.walk(item, keys); err != nil {
				return err
			}
		}
		return nil
	case *ast.CallNode:
		callee, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return fmt.Errorf("only calls to named functions are allowed")
		}
		if !c.registry.Has(callee.Value) {
			return fmt.Errorf("call to function %q is not allowed", callee.Value)
		}
		for _, arg := range n.Arguments {
			if err := c.walk(arg, keys); err != nil {
				return err
			}
		}
		return nil
	case *ast.BuiltinNode:
		// Builtin names the parser recognizes (len, abs, min, ...) are
		// accepted only when they are part of the registered vocabulary.
		if !c.registry.Has(n.Name) {
			return fmt.Errorf("builtin %q is not allowed", n.Name)
		}
		for _, arg := range n.Arguments {
			if err := c.walk(arg, keys); err != nil {
				return err
			}
		}
		return nil
	case *ast.MemberNode, *ast.ChainNode, *ast.SliceNode, *ast.PredicateNode, *ast.PointerNode, *ast.MapNode, *ast.PairNode, *ast.VariableDeclaratorNode:
		return fmt.Errorf("construct %T is not allowed in setting expressions", node)
	default:
		return fmt.Errorf("construct %T is not allowed in setting expressions", node)
	}
}

type exprExpression struct {
	compiler *exprCompiler
	text     string
	keys     map[string]struct{}
	program  *exprvm.Program
}

// Text implements Expression.
func (e *exprExpression) Text() string {
	return e.text
}

// UsedKeys implements Expression.
func (e *exprExpression) UsedKeys() []string {
	keys := make([]string, 0, len(e.keys))
	for key := range e.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Evaluate implements Expression.
func (e *exprExpression) Evaluate(r Resolver) (any, error) {
	start := time.Now()
	value, err := e.evaluate(r)
	e.compiler.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   "expr",
		Expr:     e.text,
		Duration: time.Since(start),
		Err:      err,
	})
	return value, err
}

func (e *exprExpression) evaluate(r Resolver) (any, error) {
	if r == nil {
		return nil, wrapEvaluationError("expr", e.text, "", fmt.Errorf("resolver must not be nil"))
	}
	env := make(map[string]any, len(e.keys))
	for key := range e.keys {
		value, ok := r.Resolve(key)
		if !ok {
			return nil, &UnknownSettingReferenceError{Expr: e.text, Key: key}
		}
		env[key] = value
	}
	result, err := exprlang.Run(e.program, env)
	if err != nil {
		return nil, wrapEvaluationError("expr", e.text, "", err)
	}
	return result, nil
}
