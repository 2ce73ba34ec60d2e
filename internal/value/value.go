// Package value implements the tagged Value variant that instruction
// payloads carry through the pipeline (spec.md §9, "Dynamic-typed value
// cells"). Rather than reproduce the source's dynamically-typed cells,
// each concrete kind is its own Go type implementing the marker Value
// interface, and components dispatch on it with a type switch.
package value

// Value is anything that can flow through Instruction/Command payloads:
// a Number, an Array of samples, a symbolic PulseExpr, a sampled
// PulseObject, a Str (unit-less string setting), a Bool, or a
// CommandHandle (a shared-memory descriptor substituted for a large
// array by the pre-processor, spec.md §4.4.1).
type Value interface {
	isValue()
}

// Number is a scalar numeric setting (e.g. a frequency in Hz).
type Number float64

func (Number) isValue() {}

// Array is a raw sample array, e.g. a calibration record's input samples.
type Array []float64

func (Array) isValue() {}

// PulseExpr is a symbolic pulse expression string understood by the
// pulse grammar (e.g. "square(0.8)"), not yet sampled.
type PulseExpr string

func (PulseExpr) isValue() {}

// PulseObject is a pulse-algebra value: a sum of symbolic terms plus an
// optional pre-sampled waveform, carrying its own timing window. Two
// PulseObjects combine under Add (the "waveform addition" of spec.md
// §4.4 step 5); Sample realizes it against a sampling rate.
type PulseObject struct {
	Terms   []PulseExpr
	Samples []float64 // non-nil if this is a raw-sample object (vstack)
	Shift   float64   // time shift applied to every term, seconds
	Start   float64   // window start, seconds
	End     float64   // window end, seconds
	SRate   float64   // sampling rate, Hz (0 if not yet stamped)
}

func (*PulseObject) isValue() {}

// Add implements pulse algebra: concatenating terms and unioning the
// window. Raw-sample objects (vstacks) cannot be merged; Add panics if
// either operand carries raw Samples, since the caller (Assembler
// channel-merge) must never be presented with one.
func (p *PulseObject) Add(other *PulseObject) *PulseObject {
	if p == nil {
		return other
	}
	if other == nil {
		return p
	}
	if p.Samples != nil || other.Samples != nil {
		panic("value: cannot Add a raw-sample PulseObject")
	}
	out := &PulseObject{
		Terms: append(append([]PulseExpr{}, p.Terms...), other.Terms...),
		Shift: p.Shift,
		Start: minf(p.Start, other.Start),
		End:   maxf(p.End, other.End),
		SRate: p.SRate,
	}
	if out.SRate == 0 {
		out.SRate = other.SRate
	}
	return out
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Str is a unit-less string setting, e.g. a capture mode name.
type Str string

func (Str) isValue() {}

// Bool is a boolean setting.
type Bool bool

func (Bool) isValue() {}

// CommandHandle is a shared-memory descriptor substituted for a large
// array value by the pre-processor when shared-memory handoff is
// enabled (spec.md §4.4.1, §9 "Shared-memory data handoff").
type CommandHandle struct {
	Name  string
	Shape []int
	Dtype string
}

func (CommandHandle) isValue() {}

// Equal is a loose structural equality used by callers that only need
// to know whether two Values are the "same" for bypass-cache purposes.
// PulseObject equality is NOT handled here — that predicate lives in
// internal/pulse as Kernel.Equal, since it requires the window-strip
// rule from spec.md §4.2.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case PulseExpr:
		bv, ok := b.(PulseExpr)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}
