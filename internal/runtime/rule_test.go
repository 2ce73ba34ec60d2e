package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]float64) func(string) (float64, bool) {
	return func(path string) (float64, bool) {
		v, ok := values[path]
		return v, ok
	}
}

func TestParseRuleSimpleAddition(t *testing.T) {
	r, err := ParseRule("⟨q0.freq⟩ = ⟨q0.base⟩ + 1.25e9")
	require.NoError(t, err)
	assert.Equal(t, "q0.freq", r.Target)

	v, err := r.Expr.Eval(lookupFrom(map[string]float64{"q0.base": 1e6}))
	require.NoError(t, err)
	assert.InDelta(t, 1e6+1.25e9, v, 1e-6)
}

func TestParseRuleOperatorPrecedenceAndParens(t *testing.T) {
	r, err := ParseRule("⟨out⟩ = (⟨a⟩ + ⟨b⟩) * 2 - 1")
	require.NoError(t, err)

	v, err := r.Expr.Eval(lookupFrom(map[string]float64{"a": 3, "b": 4}))
	require.NoError(t, err)
	assert.Equal(t, float64((3+4)*2-1), v)
}

func TestParseRuleUnaryMinus(t *testing.T) {
	r, err := ParseRule("⟨out⟩ = -⟨a⟩ / 2")
	require.NoError(t, err)

	v, err := r.Expr.Eval(lookupFrom(map[string]float64{"a": 10}))
	require.NoError(t, err)
	assert.Equal(t, -5.0, v)
}

func TestParseRuleMissingEquals(t *testing.T) {
	_, err := ParseRule("⟨a⟩ + 1")
	assert.Error(t, err)
}

func TestParseRuleMalformedLeftHandSide(t *testing.T) {
	_, err := ParseRule("a.b = 1")
	assert.Error(t, err)
}

func TestEvalUnknownPathErrors(t *testing.T) {
	r, err := ParseRule("⟨out⟩ = ⟨missing⟩")
	require.NoError(t, err)

	_, err = r.Expr.Eval(lookupFrom(nil))
	assert.Error(t, err)
}

func TestEvalDivisionByZero(t *testing.T) {
	r, err := ParseRule("⟨out⟩ = ⟨a⟩ / 0")
	require.NoError(t, err)

	_, err = r.Expr.Eval(lookupFrom(map[string]float64{"a": 1}))
	assert.Error(t, err)
}
