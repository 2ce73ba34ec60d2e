package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/registry"
	"github.com/qlab-core/qcore/internal/value"
)

type stubCompiler struct {
	calls    int
	commands map[string][]interfaces.Command
	dataMap  interfaces.DataMap
	err      error
}

func (s *stubCompiler) Compile(_ interfaces.CompileContext, _ []interfaces.GateOp) (map[string][]interfaces.Command, interfaces.DataMap, error) {
	s.calls++
	return s.commands, s.dataMap, s.err
}

func TestCompileSplitsSetGetFromRealGateOps(t *testing.T) {
	stub := &stubCompiler{commands: map[string][]interfaces.Command{}}
	a := NewAdapter(stub)
	ctx := NewContext(registry.New().Snapshot(""), "baqis")

	circuit := []interfaces.GateOp{
		{Op: "SET", Targets: []string{"Q0.setting.LO"}, Args: map[string]value.Value{"value": value.Number(5e9)}},
		{Op: "GET", Targets: []string{"Q0.setting.POW"}},
		{Op: "X", Targets: []string{"Q0"}},
	}

	instruction, _, err := a.Compile(ctx, 0, nil, circuit, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls, "only the true gate op should reach the external compiler")
	assert.Len(t, instruction["main"], 1, "SET becomes a direct WRITE under main")
	assert.Len(t, instruction["READ"], 1, "GET becomes a direct READ")
}

func TestCompileAutoclearPrependsZeroWrites(t *testing.T) {
	stub := &stubCompiler{commands: map[string][]interfaces.Command{}}
	a := NewAdapter(stub)
	ctx := NewContext(registry.New().Snapshot(""), "baqis")

	instruction, _, err := a.Compile(ctx, 0, nil, nil, Options{
		Autoclear:   true,
		AllChannels: []string{"AWG1.CH1.Waveform", "AWG1.CH2.Waveform"},
	})
	require.NoError(t, err)
	require.Len(t, instruction["main"], 2)
	assert.Equal(t, value.PulseExpr("zero()"), instruction["main"][0].Value)
}

func TestCompileSetsRestoreAndClearOnlyAtSidZero(t *testing.T) {
	stub := &stubCompiler{commands: map[string][]interfaces.Command{}}
	a := NewAdapter(stub)
	ctx := NewContext(registry.New().Snapshot(""), "baqis")
	ctx.Initial["restore"] = []RestoreEntry{{Target: "Q0.setting.LO"}}

	_, resultSid0, err := a.Compile(ctx, 0, nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, resultSid0.Clear)
	assert.Len(t, resultSid0.Restore, 1)

	_, resultSid1, err := a.Compile(ctx, 1, nil, nil, Options{})
	require.NoError(t, err)
	assert.False(t, resultSid1.Clear)
	assert.Nil(t, resultSid1.Restore)
}

func TestCompileMergesExternalCommandsIntoAccumulator(t *testing.T) {
	stub := &stubCompiler{
		commands: map[string][]interfaces.Command{
			"main": {{Type: interfaces.Write, Target: "Q0503.waveform.DDS", Value: value.PulseExpr("square(1)"), Unit: "au"}},
			"READ": {{Type: interfaces.Read, Target: "ADx86_159.CH5.IQ", Unit: "au"}},
		},
	}
	a := NewAdapter(stub)
	ctx := NewContext(registry.New().Snapshot(""), "baqis")

	seed := map[string][]interfaces.Command{"main": {{Type: interfaces.Write, Target: "existing"}}}
	instruction, _, err := a.Compile(ctx, 0, seed, []interfaces.GateOp{{Op: "Measure", Targets: []string{"Q0"}}}, Options{})
	require.NoError(t, err)

	assert.Len(t, instruction["main"], 2, "external WRITE is appended to the pre-existing main step")
	assert.Len(t, instruction["READ"], 1)
}

func TestClearCacheResetsMemoizedGateLookups(t *testing.T) {
	ctx := NewContext(registry.New().Snapshot(""), "baqis")
	calls := 0
	compute := func() value.Value {
		calls++
		return value.Number(float64(calls))
	}

	first := ctx.CacheGate("Q0", compute)
	second := ctx.CacheGate("Q0", compute)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	ctx.ClearCache()
	third := ctx.CacheGate("Q0", compute)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, calls)
}
