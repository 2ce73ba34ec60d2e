package pulse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlab-core/qcore/internal/value"
)

func TestSampleCountMatchesWindowAndRate(t *testing.T) {
	k := New()
	cal := CalibrationRecord{SRate: 1e9, Start: 0, End: 100e-9}

	samples, _, _, srate, err := k.Sample(value.PulseExpr("const(1)"), cal)
	require.NoError(t, err)
	assert.Equal(t, 1e9, srate)
	assert.Equal(t, int(math.Round((cal.End-cal.Start)*cal.SRate)), len(samples))
}

func TestSampleIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	k := New()
	cal := CalibrationRecord{
		SRate:      1e9,
		Start:      0,
		End:        50e-9,
		Distortion: Distortion{Decay: []DecayTerm{{Amp: 0.05, Tau: 3}}},
	}
	input := value.PulseExpr("square(0.8)")

	s1, d1, o1, r1, err := k.Sample(input, cal)
	require.NoError(t, err)
	s2, d2, o2, r2, err := k.Sample(input, cal)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, o1, o2)
	assert.Equal(t, r1, r2)
}

func TestSampleRejectsNonPositiveRate(t *testing.T) {
	k := New()
	_, _, _, _, err := k.Sample(value.PulseExpr("zero()"), CalibrationRecord{SRate: 0, Start: 0, End: 1})
	assert.Error(t, err)
}

func TestSampleResamplesRawVstack(t *testing.T) {
	k := New()
	cal := CalibrationRecord{SRate: 1e9, Start: 0, End: 10e-9}
	raw := &value.PulseObject{Samples: []float64{1, 2, 3, 4, 5}}

	samples, _, _, _, err := k.Sample(raw, cal)
	require.NoError(t, err)
	assert.Len(t, samples, 10)
}

func TestEqualVstackIsAlwaysUnequal(t *testing.T) {
	k := New()
	v := &value.PulseObject{Samples: []float64{1, 2, 3}}
	assert.False(t, k.Equal(v, v))
}

func TestEqualSymbolicPulseObjectsIgnoreWindow(t *testing.T) {
	k := New()
	a := &value.PulseObject{Terms: []value.PulseExpr{"const(1)"}, Start: 0, End: 10}
	b := &value.PulseObject{Terms: []value.PulseExpr{"const(1)"}, Start: 5, End: 500}
	assert.True(t, k.Equal(a, b))

	c := &value.PulseObject{Terms: []value.PulseExpr{"const(2)"}, Start: 0, End: 10}
	assert.False(t, k.Equal(a, c))
}

func TestEqualArraysElementwise(t *testing.T) {
	k := New()
	assert.True(t, k.Equal(value.Array{1, 2, 3}, value.Array{1, 2, 3}))
	assert.False(t, k.Equal(value.Array{1, 2, 3}, value.Array{1, 2, 4}))
	assert.False(t, k.Equal(value.Array{1, 2}, value.Array{1, 2, 3}))
}

func TestDistortionCascadeHandlesZeroTau(t *testing.T) {
	// A zero Tau must not divide by zero or produce NaN/Inf output.
	out, err := applyDistortion([]float64{1, 1, 1, 1}, Distortion{Decay: []DecayTerm{{Amp: 0.1, Tau: 0}}})
	require.NoError(t, err)
	for _, v := range out {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestDistortionFIRIsAppliedAfterDecay(t *testing.T) {
	out, err := applyDistortion([]float64{1, 0, 0, 0}, Distortion{FIR: []float64{1, 1}})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, 1.0, out[0])
	assert.Equal(t, 1.0, out[1])
	assert.Equal(t, 0.0, out[2])
}
