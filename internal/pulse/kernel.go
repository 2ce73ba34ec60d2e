// Package pulse implements the Pulse/Calibration Kernel (spec.md §4.2):
// converting a symbolic pulse expression, a pulse object, or a raw
// sample array into a corrected, sampled byte buffer for one hardware
// channel, plus the equality predicate the Assembler's BypassCache
// relies on.
//
// Waveform math itself is an explicit Non-goal (spec.md §1); this
// package implements exactly the two contracts spec.md §4.2 names —
// Sample and Equal — over a minimal representation, not a full
// waveform-algebra library. No third-party DSP dependency covers this
// in the retrieval pack, so the filter cascade below is hand-rolled
// (see DESIGN.md).
package pulse

import (
	"fmt"
	"math"

	"github.com/qlab-core/qcore/internal/value"
)

// Distortion describes the output-side correction chain applied during
// Sample (spec.md §4.2 "distortion:{decay:[(amp,τ)…]}}").
type Distortion struct {
	Decay []DecayTerm
	FIR   []float64 // optional FIR kernel, applied after the IIR cascade
}

// DecayTerm is one first-order IIR decay-correction stage.
type DecayTerm struct {
	Amp float64
	Tau float64
}

// CalibrationRecord is the calibration context accompanying a raw
// sample array or symbolic expression (spec.md §4.2).
type CalibrationRecord struct {
	SRate      float64
	Delay      float64
	Offset     float64
	Start      float64
	End        float64
	Distortion Distortion
}

// Kernel realizes Value inputs into sampled output. It carries no
// mutable state: applying Sample to the same input and record twice
// yields bit-identical output (spec.md §4.2 contract).
type Kernel struct{}

// New returns a stateless Kernel.
func New() *Kernel {
	return &Kernel{}
}

// Sample converts v into (samples, delay, offset, srate). v may be a
// *value.PulseObject (symbolic terms, or raw Samples for a vstack) or a
// value.PulseExpr (bare symbolic expression, evaluated with zero
// terms-shift). The sample count equals round((end-start)*srate)
// (spec.md §8 invariant 4).
func (k *Kernel) Sample(v value.Value, cal CalibrationRecord) (samples []float64, delay, offset, srate float64, err error) {
	if cal.SRate <= 0 {
		return nil, 0, 0, 0, fmt.Errorf("pulse: sample rate must be positive, got %v", cal.SRate)
	}

	n := int(math.Round((cal.End - cal.Start) * cal.SRate))
	if n < 0 {
		n = 0
	}

	var raw []float64
	switch pv := v.(type) {
	case *value.PulseObject:
		if pv.Samples != nil {
			raw = resample(pv.Samples, n)
		} else {
			raw = evaluateTerms(pv.Terms, pv.Shift, cal.Start, cal.End, n)
		}
	case value.PulseExpr:
		raw = evaluateTerms([]value.PulseExpr{pv}, 0, cal.Start, cal.End, n)
	case value.Array:
		raw = resample([]float64(pv), n)
	default:
		return nil, 0, 0, 0, fmt.Errorf("pulse: unsupported value type %T", v)
	}

	corrected, err := applyDistortion(raw, cal.Distortion)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	return corrected, cal.Delay, cal.Offset, cal.SRate, nil
}

// resample stretches or truncates samples to exactly n points using
// nearest-neighbour lookup, deterministic and allocation-stable.
func resample(samples []float64, n int) []float64 {
	out := make([]float64, n)
	if len(samples) == 0 || n == 0 {
		return out
	}
	for i := range out {
		src := i * len(samples) / n
		if src >= len(samples) {
			src = len(samples) - 1
		}
		out[i] = samples[src]
	}
	return out
}

// evaluateTerms evaluates the sum of symbolic terms over n samples
// between start and end, each term shifted by shift seconds.
func evaluateTerms(terms []value.PulseExpr, shift, start, end float64, n int) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	dt := (end - start) / float64(n)
	for i := 0; i < n; i++ {
		t := start + dt*float64(i) - shift
		sum := 0.0
		for _, term := range terms {
			sum += evalExpr(term, t)
		}
		out[i] = sum
	}
	return out
}
