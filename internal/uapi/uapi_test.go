package uapi

import (
	"testing"

	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/runtime"
	"github.com/qlab-core/qcore/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireValueRoundTrip(t *testing.T) {
	cases := []value.Value{
		value.Number(3.5),
		value.Array{1, 2, 3},
		value.Str("IQ"),
		value.Bool(true),
		value.PulseExpr("square(1e-6) >> 2e-8"),
	}
	for _, v := range cases {
		w := ToWireValue(v)
		got, err := w.ToValue()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestWireValueNilRoundTrip(t *testing.T) {
	w := ToWireValue(nil)
	assert.Equal(t, "none", w.Kind)
	got, err := w.ToValue()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWireValueUnrepresentableKind(t *testing.T) {
	w := ToWireValue(&value.PulseObject{Terms: []value.PulseExpr{"square(1e-6)"}})
	assert.Equal(t, "unrepresentable", w.Kind)
	_, err := w.ToValue()
	assert.Error(t, err)
}

func TestTaskSpecRoundTrip(t *testing.T) {
	spec := runtime.TaskSpec{
		Name:     "ramsey",
		Priority: 5,
		Backend:  "AWG1",
		Session:  "labA",
		Shots:    1024,
		Signal:   "IQ",
		Steps: []runtime.StepDef{
			{Name: "set_freq", Command: interfaces.Command{Type: interfaces.Write, Target: "AWG1.CH1.Frequency", Value: value.Number(5e9), Unit: "Hz"}},
		},
		Circuit: []interfaces.GateOp{
			{Op: "X", Targets: []string{"Q1"}, Args: map[string]value.Value{"theta": value.Number(3.14)}},
		},
		Rules: []string{"<AWG1.CH1.Frequency> = <AWG1.CH1.Frequency> + 1e6"},
		Loop: []runtime.LoopAxis{
			{Name: "delay", Path: "AWG1.CH1.TriggerDelay", Values: []value.Value{value.Number(0), value.Number(1e-6)}, Unit: "s"},
		},
	}

	data, err := MarshalTaskSpec(spec)
	require.NoError(t, err)

	got, err := UnmarshalTaskSpec(data)
	require.NoError(t, err)
	assert.Equal(t, spec, got)
}

func TestMarshalPointsRoundTrip(t *testing.T) {
	points := [][]complex128{
		{complex(1, 2), complex(3, 4)},
		{complex(0.5, -0.5), complex(-1, 1)},
	}

	data, err := MarshalPoints(points)
	require.NoError(t, err)

	got, err := UnmarshalPoints(data)
	require.NoError(t, err)
	assert.Equal(t, points, got)
}

func TestMarshalPointsRejectsRaggedWidths(t *testing.T) {
	_, err := MarshalPoints([][]complex128{
		{complex(1, 0)},
		{complex(1, 0), complex(2, 0)},
	})
	assert.Error(t, err)
}

func TestMarshalPointsEmpty(t *testing.T) {
	data, err := MarshalPoints(nil)
	require.NoError(t, err)
	got, err := UnmarshalPoints(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnmarshalPointsRejectsWrongVersion(t *testing.T) {
	data, err := MarshalPoints([][]complex128{{complex(1, 1)}})
	require.NoError(t, err)
	data[0] = byte(WireFormatVersion + 1)
	_, err = UnmarshalPoints(data)
	assert.Error(t, err)
}

func TestWireDataMapUsesStringKeysForCBits(t *testing.T) {
	dm := interfaces.DataMap{
		Arch: "superconducting",
		CBits: map[int]interfaces.CBit{
			0: {Source: "AWG1.CH1.IQ", Frequency: 5e9},
		},
	}
	w := ToWireDataMap(dm)
	assert.Equal(t, "superconducting", w.Arch)
	require.Contains(t, w.CBits, "0")
	assert.Equal(t, "AWG1.CH1.IQ", w.CBits["0"].Source)
}
