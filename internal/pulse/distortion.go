package pulse

import "math"

// applyDistortion runs the first-order IIR decay cascade (one stage per
// DecayTerm) followed by the optional FIR kernel (spec.md §4.2). The
// last input sample is used as the steady-state seed for each IIR
// stage to avoid an edge transient at the start of the buffer. If the
// direct filter pass produces a non-finite value (the "naive filter
// path fails numerically" case), the input is pre-padded with that
// seed, filtered, and the pad discarded.
func applyDistortion(samples []float64, d Distortion) ([]float64, error) {
	out := samples
	for _, term := range d.Decay {
		filtered, ok := iirDecayStage(out, term)
		if !ok {
			padded := prepadWithSeed(out, seed(out))
			filtered, ok = iirDecayStage(padded, term)
			if !ok {
				return nil, errNonFinite
			}
			filtered = filtered[len(padded)-len(out):]
		}
		out = filtered
	}
	if len(d.FIR) > 0 {
		out = applyFIR(out, d.FIR)
	}
	return out, nil
}

var errNonFinite = errorString("pulse: distortion correction produced non-finite samples")

type errorString string

func (e errorString) Error() string { return string(e) }

// seed returns the steady-state value used to prime a decay filter: the
// last sample of the input, per spec.md §4.2.
func seed(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[len(samples)-1]
}

// prepadWithSeed prepends one period's worth of constant seed samples
// ahead of the real input so the filter's initial transient settles
// before the real data begins.
func prepadWithSeed(samples []float64, s float64) []float64 {
	pad := len(samples)
	if pad == 0 {
		pad = 1
	}
	out := make([]float64, pad+len(samples))
	for i := 0; i < pad; i++ {
		out[i] = s
	}
	copy(out[pad:], samples)
	return out
}

// iirDecayStage applies a single first-order decay-correction filter:
//
//	y[n] = x[n] + amp*tau*(x[n] - x[n-1]) + (1 - 1/tau)*y[n-1]
//
// a direct-form pre-emphasis correcting for a first-order exponential
// decay of time constant tau and relative amplitude amp in the
// hardware signal chain. Returns ok=false if any output sample is
// non-finite.
func iirDecayStage(x []float64, term DecayTerm) ([]float64, bool) {
	y := make([]float64, len(x))
	alpha := 1.0
	if term.Tau != 0 {
		alpha = 1.0 / term.Tau
	}
	// Start from the filter's steady state for a constant input equal to
	// the seed: prevX = s and prevY = s/alpha (the fixed point of the
	// recurrence below).
	s := seed(x)
	prevX, prevY := s, s
	if alpha != 0 {
		prevY = s / alpha
	}
	for n := range x {
		yn := x[n] + term.Amp*term.Tau*(x[n]-prevX) + (1-alpha)*prevY
		if math.IsNaN(yn) || math.IsInf(yn, 0) {
			return nil, false
		}
		y[n] = yn
		prevX = x[n]
		prevY = yn
	}
	return y, true
}

// applyFIR convolves samples with kernel, same-length ("same" mode),
// zero-padding the kernel's look-back at the start of the buffer.
func applyFIR(samples []float64, kernel []float64) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		var acc float64
		for k, coef := range kernel {
			j := i - k
			if j < 0 {
				continue
			}
			acc += coef * samples[j]
		}
		out[i] = acc
	}
	return out
}
