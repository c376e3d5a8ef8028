// Package expr implements the sandboxed expression evaluator the
// conversation engine consults for show/enable conditions, point formulas and
// content templates. Expressions are CEL with a fixed grammar: arithmetic,
// comparisons, boolean logic and variable lookup. There is no general-purpose
// code evaluation surface.
package expr

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	celenv "github.com/google/cel-go/common/env"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/pocketcoach/converse/internal/logging"
)

var (
	templateExpr = regexp.MustCompile(`\$\{(.*?)\}`)
	templateVar  = regexp.MustCompile(`\[(.*?)\]`)
)

// Evaluator compiles and evaluates CEL expressions against a variable scope.
// Parsed programs are cached per expression text. Evaluation never panics and
// never raises to the caller: a failure yields nil, which conditions treat as
// falsy. Identifiers the scope does not bind evaluate as null rather than
// erroring, so a condition like X != 'Done' holds before X is ever written.
type Evaluator struct {
	env    *cel.Env
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*compiled
}

// compiled pairs a planned program with the identifiers it references, so
// evaluation can null-fill the ones the scope is missing.
type compiled struct {
	prg    cel.Program
	idents []string
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithLogger enables diagnostic logging of failed evaluations.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// New creates an Evaluator.
func New(opts ...Option) (*Evaluator, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	e := &Evaluator{
		env:    env,
		logger: logging.NewNop(),
		cache:  make(map[string]*compiled),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// newEnv builds the evaluation environment. The standard arithmetic overloads
// are strict about operand types, but worksheet content mixes numeric strings
// and integer literals freely, so the arithmetic operators are replaced with
// bindings that promote a mixed Int/Uint/Double pair to double before
// delegating to the standard behavior.
func newEnv() (*cel.Env, error) {
	subset := celenv.NewLibrarySubset()
	subset.ExcludeFunctions = []*celenv.Function{
		celenv.NewFunction(operators.Add),
		celenv.NewFunction(operators.Subtract),
		celenv.NewFunction(operators.Multiply),
		celenv.NewFunction(operators.Divide),
		celenv.NewFunction(operators.Modulo),
	}
	return cel.NewCustomEnv(
		cel.StdLib(cel.StdLibSubset(subset)),
		promoting(operators.Add, "add_promoting", func(lhs, rhs ref.Val) ref.Val {
			if a, ok := lhs.(traits.Adder); ok {
				return a.Add(rhs)
			}
			return types.MaybeNoSuchOverloadErr(lhs)
		}),
		promoting(operators.Subtract, "subtract_promoting", func(lhs, rhs ref.Val) ref.Val {
			if s, ok := lhs.(traits.Subtractor); ok {
				return s.Subtract(rhs)
			}
			return types.MaybeNoSuchOverloadErr(lhs)
		}),
		promoting(operators.Multiply, "multiply_promoting", func(lhs, rhs ref.Val) ref.Val {
			if m, ok := lhs.(traits.Multiplier); ok {
				return m.Multiply(rhs)
			}
			return types.MaybeNoSuchOverloadErr(lhs)
		}),
		promoting(operators.Divide, "divide_promoting", func(lhs, rhs ref.Val) ref.Val {
			if d, ok := lhs.(traits.Divider); ok {
				return d.Divide(rhs)
			}
			return types.MaybeNoSuchOverloadErr(lhs)
		}),
		promoting(operators.Modulo, "modulo_promoting", func(lhs, rhs ref.Val) ref.Val {
			if m, ok := lhs.(traits.Modder); ok {
				return m.Modulo(rhs)
			}
			return types.MaybeNoSuchOverloadErr(lhs)
		}),
	)
}

// promoting declares op with a binding that aligns mixed numeric operands
// before applying the standard trait behavior. Same-type pairs pass through
// untouched, so integer arithmetic stays integral.
func promoting(op, id string, apply func(ref.Val, ref.Val) ref.Val) cel.EnvOption {
	return cel.Function(op,
		cel.Overload(id, []*cel.Type{cel.DynType, cel.DynType}, cel.DynType),
		cel.SingletonBinaryBinding(func(lhs, rhs ref.Val) ref.Val {
			if lhs.Type() != rhs.Type() {
				if l, ok := asDouble(lhs); ok {
					if r, ok := asDouble(rhs); ok {
						lhs, rhs = l, r
					}
				}
			}
			return apply(lhs, rhs)
		}),
	)
}

func asDouble(v ref.Val) (types.Double, bool) {
	switch t := v.(type) {
	case types.Double:
		return t, true
	case types.Int:
		return types.Double(t), true
	case types.Uint:
		return types.Double(t), true
	}
	return 0, false
}

// Evaluate returns the expression's value as a primitive (string, bool,
// int64, uint64 or float64), or nil when the expression is empty, fails to
// parse, fails to evaluate, or yields a non-primitive.
//
// Programs are parsed without type checking so that identifiers resolve
// against the scope at evaluation time; a variable the user never set binds
// as null, making equality against it false and inequality true, the way the
// worksheet conditions expect of an unanswered prompt.
func (e *Evaluator) Evaluate(expression string, scope map[string]any) any {
	if expression == "" {
		return nil
	}

	c, err := e.program(expression)
	if err != nil {
		e.logger.Debug("expression did not parse", "expr", expression, "err", err)
		return nil
	}

	bindings := coerceScope(scope)
	for _, name := range c.idents {
		if _, ok := bindings[name]; !ok {
			bindings[name] = types.NullValue
		}
	}

	val, _, err := c.prg.Eval(bindings)
	if err != nil {
		e.logger.Debug("expression did not evaluate", "expr", expression, "err", err)
		return nil
	}

	switch v := val.Value().(type) {
	case string, bool, int64, uint64, float64:
		return v
	default:
		// Only primitive results leave the evaluator.
		return nil
	}
}

// Truthy evaluates a condition expression. Empty expressions are true (no
// condition); failed evaluations are false.
func (e *Evaluator) Truthy(expression string, scope map[string]any) bool {
	if strings.TrimSpace(expression) == "" {
		return true
	}
	return truthy(e.Evaluate(expression, scope))
}

// Number evaluates an expression to a number, returning 0 when it is empty or
// non-numeric. Point formulas go through here.
func (e *Evaluator) Number(expression string, scope map[string]any) float64 {
	switch v := e.Evaluate(expression, scope).(type) {
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// EvaluateText resolves a content template against the scope: ${expr} spans
// are replaced by their expression result, [name] spans by the named
// variable's value. Unresolvable spans become empty strings.
func (e *Evaluator) EvaluateText(text string, scope map[string]any) string {
	if text == "" {
		return text
	}
	out := templateExpr.ReplaceAllStringFunc(text, func(m string) string {
		inner := templateExpr.FindStringSubmatch(m)[1]
		return formatPrimitive(e.Evaluate(inner, scope))
	})
	out = templateVar.ReplaceAllStringFunc(out, func(m string) string {
		name := templateVar.FindStringSubmatch(m)[1]
		return formatPrimitive(scope[name])
	})
	return out
}

func (e *Evaluator) program(expression string) (*compiled, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.cache[expression]; ok {
		return c, nil
	}

	ast, issues := e.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	c := &compiled{prg: prg, idents: identifiers(ast)}
	e.cache[expression] = c
	return c, nil
}

// identifiers lists the distinct variable references in a parsed expression.
func identifiers(ast *cel.Ast) []string {
	seen := make(map[string]struct{})
	var names []string
	nodes := celast.MatchDescendants(celast.NavigateAST(ast.NativeRep()), celast.KindMatcher(celast.IdentKind))
	for _, node := range nodes {
		name := node.AsIdent()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// coerceScope binds numeric-looking string variables as numbers as well, so
// comparisons like "Mood > 3" work against values the variable store only
// knows as strings.
func coerceScope(scope map[string]any) map[string]any {
	out := make(map[string]any, len(scope))
	for k, v := range scope {
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				out[k] = f
				continue
			}
		}
		out[k] = v
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	}
	return false
}

func formatPrimitive(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprintf("%v", v)
}
