package pulse

import (
	"strconv"
	"strings"

	"github.com/qlab-core/qcore/internal/value"
)

// evalExpr evaluates a minimal pulse grammar at time t. It supports the
// handful of forms the original waveform DSL uses in device
// configuration: "zero()", "const(amp)", and "square(amp)". Anything
// else evaluates to 0, matching the Adapter's "zero every channel"
// autoclear prepend, which only ever emits "zero()".
func evalExpr(expr value.PulseExpr, t float64) float64 {
	name, args := parseCall(string(expr))
	switch name {
	case "zero":
		return 0
	case "const":
		if len(args) > 0 {
			return args[0]
		}
		return 0
	case "square":
		if len(args) > 0 {
			return args[0]
		}
		return 1
	default:
		return 0
	}
}

// parseCall splits "name(a, b, c)" into name and the numeric arguments.
// Malformed input yields an empty name and nil args rather than an
// error: the grammar is best-effort since full waveform expression
// parsing is out of scope (spec.md §1 Non-goals: waveform math).
func parseCall(s string) (string, []float64) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return "", nil
	}
	name := s[:open]
	inner := s[open+1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil
	}
	parts := strings.Split(inner, ",")
	args := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			continue
		}
		args = append(args, v)
	}
	return name, args
}

// FromString parses a pulse expression string into a PulseObject, used
// by the Assembler's channel-merge step when a cached string value must
// be combined with a freshly compiled one (spec.md §4.4 step 5:
// "parse any string value via the pulse grammar, then add").
func FromString(s string) *value.PulseObject {
	return &value.PulseObject{Terms: []value.PulseExpr{value.PulseExpr(s)}}
}

// String renders a PulseObject back to its "term + term + ..." textual
// form, the inverse of FromString for the common single/few-term case.
func String(p *value.PulseObject) string {
	if p == nil {
		return "zero()"
	}
	parts := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		parts[i] = string(t)
	}
	if len(parts) == 0 {
		return "zero()"
	}
	return strings.Join(parts, " + ")
}
