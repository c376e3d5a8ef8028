package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/expr"
)

func newEvaluator(t *testing.T) *expr.Evaluator {
	t.Helper()
	e, err := expr.New()
	require.NoError(t, err)
	return e
}

func TestEvaluate_Arithmetic(t *testing.T) {
	e := newEvaluator(t)
	assert.Equal(t, int64(7), e.Evaluate("3 + 4", nil))
	assert.Equal(t, true, e.Evaluate("2 * 3 > 5", nil))
}

func TestEvaluate_VariableLookup(t *testing.T) {
	e := newEvaluator(t)
	scope := map[string]any{"Mood": "4", "Name": "Ada"}

	// Numeric-looking strings compare as numbers.
	assert.Equal(t, true, e.Evaluate("Mood > 3", scope))
	assert.Equal(t, false, e.Evaluate("Mood > 10", scope))
	assert.Equal(t, true, e.Evaluate("Name == 'Ada'", scope))
}

func TestEvaluate_UnsetIdentifierIsNull(t *testing.T) {
	e := newEvaluator(t)

	// An identifier the user never set compares as null: equality against a
	// value is false, inequality true. Negated gates like "only show if not
	// done" depend on this before the variable's first write.
	assert.Equal(t, false, e.Evaluate("NeverSet == 'x'", map[string]any{}))
	assert.Equal(t, true, e.Evaluate("NeverSet != 'x'", map[string]any{}))
	assert.True(t, e.Truthy("NeverSet != 'Selected'", map[string]any{}))

	// A bare unset identifier is still nil and falsy.
	assert.Nil(t, e.Evaluate("NeverSet", map[string]any{}))
	assert.False(t, e.Truthy("NeverSet", map[string]any{}))
}

func TestEvaluate_MixedNumericArithmetic(t *testing.T) {
	e := newEvaluator(t)
	scope := map[string]any{"Base": "10", "Half": "2.5"}

	// Store values arrive as numeric strings and bind as doubles; literals in
	// the expression are integers. The pair still computes.
	assert.Equal(t, float64(15), e.Evaluate("Base + 5", scope))
	assert.Equal(t, float64(20), e.Evaluate("Base * 2", scope))
	assert.Equal(t, float64(5), e.Evaluate("Base - 5", scope))
	assert.Equal(t, float64(2), e.Evaluate("Base / 5", scope))
	assert.Equal(t, float64(7), e.Evaluate("5 + Half - 0.5", scope))

	// Same-type pairs keep their native arithmetic.
	assert.Equal(t, int64(1), e.Evaluate("7 % 2", nil))
	assert.Equal(t, "ab", e.Evaluate("'a' + 'b'", nil))

	// Non-numeric mixes still fail into nil.
	assert.Nil(t, e.Evaluate("'a' + 1", nil))
}

func TestEvaluate_GarbageIsNil(t *testing.T) {
	e := newEvaluator(t)
	assert.Nil(t, e.Evaluate(")(", nil))
	assert.Nil(t, e.Evaluate("'unterminated", nil))
}

func TestEvaluate_NonPrimitiveIsNil(t *testing.T) {
	e := newEvaluator(t)
	assert.Nil(t, e.Evaluate("[1, 2, 3]", nil))
}

func TestTruthy(t *testing.T) {
	e := newEvaluator(t)
	scope := map[string]any{"Done": "Selected"}
	assert.True(t, e.Truthy("", scope), "empty condition is no condition")
	assert.True(t, e.Truthy("Done == 'Selected'", scope))
	assert.False(t, e.Truthy("Done == 'Deselected'", scope))
	assert.False(t, e.Truthy("Missing == 'Selected'", scope))
}

func TestNumber(t *testing.T) {
	e := newEvaluator(t)
	scope := map[string]any{"Base": "10"}
	assert.Equal(t, float64(15), e.Number("Base + 5", scope))
	assert.Equal(t, float64(0), e.Number("", scope))
	assert.Equal(t, float64(0), e.Number("Missing + 5", scope))
}

func TestEvaluateText(t *testing.T) {
	e := newEvaluator(t)
	scope := map[string]any{"Name": "Ada", "Points": "12"}

	got := e.EvaluateText("Hi [Name], you have ${Points * 2} stars", scope)
	assert.Equal(t, "Hi Ada, you have 24 stars", got)

	// Unresolvable spans vanish rather than erroring.
	got = e.EvaluateText("Hello [Nobody]${Broken +}", scope)
	assert.Equal(t, "Hello ", got)

	// Text without templates passes through untouched.
	assert.Equal(t, "plain", e.EvaluateText("plain", scope))
}
