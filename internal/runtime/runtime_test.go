package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/qlab-core/qcore/internal/assemble"
	"github.com/qlab-core/qcore/internal/compiler"
	"github.com/qlab-core/qcore/internal/driver"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/registry"
	"github.com/qlab-core/qcore/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver is a minimal interfaces.Driver for runtime pipeline tests.
type stubDriver struct {
	mu      sync.Mutex
	written map[string]value.Value
	readsAt map[string]value.Value
}

func newStubDriver() *stubDriver {
	return &stubDriver{written: map[string]value.Value{}, readsAt: map[string]value.Value{}}
}

func (d *stubDriver) Open(map[string]value.Value) error { return nil }
func (d *stubDriver) Close() error                       { return nil }

func (d *stubDriver) Read(ctx context.Context, quantity string, opts map[string]value.Value) (value.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.readsAt[quantity]; ok {
		return v, nil
	}
	return value.Number(0), nil
}

func (d *stubDriver) Write(ctx context.Context, quantity string, v value.Value, opts map[string]value.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written[quantity] = v
	return nil
}

func (d *stubDriver) Channels() []int                     { return []int{0} }
func (d *stubDriver) Quantities() []interfaces.Quantity    { return nil }
func (d *stubDriver) SampleRate() (float64, bool)          { return 1e9, true }

type stubCompiler struct{}

func (stubCompiler) Compile(ctx interfaces.CompileContext, circuit []interfaces.GateOp) (map[string][]interfaces.Command, interfaces.DataMap, error) {
	return map[string][]interfaces.Command{}, interfaces.DataMap{}, nil
}

func newTestRuntime(t *testing.T) (*Runtime, *stubDriver) {
	t.Helper()
	reg := registry.New()
	asm := assemble.New()
	mux := driver.New(nil)
	drv := newStubDriver()
	require.NoError(t, mux.Open(context.Background(), "AWG1", drv, nil))

	rt := NewRuntime(reg, compiler.NewAdapter(stubCompiler{}), asm, mux, nil)
	return rt, drv
}

func TestRunSweepsAllSidsAndFillsDataset(t *testing.T) {
	rt, drv := newTestRuntime(t)
	drv.readsAt["CH1.IQ"] = value.Array{0.5, 0.25}

	spec := TaskSpec{
		Signal: "result",
		Loop: []LoopAxis{
			{Name: "freq", Path: "AWG1.CH1.Frequency", Unit: "Hz", Values: []value.Value{
				value.Number(5e9), value.Number(6e9),
			}},
		},
		Steps: []StepDef{
			{Name: "readout", Command: interfaces.Command{Type: interfaces.Read, Target: "AWG1.CH1.IQ"}},
		},
	}
	task := NewTask("t-1", spec)

	err := rt.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, Finished, task.State())
	assert.Equal(t, 2, task.Dataset.Count("result"))

	reshaped, err := task.Dataset.Reshape("result", spec.AxisLengths())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, reshaped.Shape)
	assert.Equal(t, complex(0.5, 0.25), reshaped.Data[0])
	assert.Equal(t, complex(0.5, 0.25), reshaped.Data[1])

	assert.Equal(t, value.Number(6e9), drv.written["CH1.Frequency"])
}

// stubStore is a minimal interfaces.Store recording what Runtime sent
// it, for tests asserting the dataset-persistence wiring without
// pulling in the root package's MockStore (which would import this
// package and cycle).
type stubStore struct {
	mu       sync.Mutex
	groups   map[string]bool
	appended map[string]int
	snapshot []byte
}

func newStubStore() *stubStore {
	return &stubStore{groups: map[string]bool{}, appended: map[string]int{}}
}

func (s *stubStore) CreateGroup(session, tid string, meta map[string]value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[session+"/"+tid] = true
	return nil
}

func (s *stubStore) AppendSignal(session, tid, signal string, point []complex128) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended[session+"/"+tid+"/"+signal]++
	return nil
}

func (s *stubStore) WriteSnapshot(session, tid string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = payload
	return nil
}

func (s *stubStore) ReadSignal(session, tid, signal string) ([]complex128, error) {
	return nil, nil
}

func TestRunPersistsToStoreWhenConfigured(t *testing.T) {
	rt, drv := newTestRuntime(t)
	store := newStubStore()
	rt.Store = store
	drv.readsAt["CH1.IQ"] = value.Array{0.5, 0.25}

	spec := TaskSpec{
		Session: "lab1",
		Signal:  "result",
		Loop: []LoopAxis{
			{Name: "freq", Path: "AWG1.CH1.Frequency", Values: []value.Value{
				value.Number(1), value.Number(2),
			}},
		},
		Steps: []StepDef{
			{Name: "readout", Command: interfaces.Command{Type: interfaces.Read, Target: "AWG1.CH1.IQ"}},
		},
	}
	task := NewTask("t-store", spec)

	require.NoError(t, rt.Run(context.Background(), task))
	assert.Equal(t, Finished, task.State())
	assert.True(t, store.groups["lab1/t-store"])
	assert.Equal(t, 2, store.appended["lab1/t-store/result"])

	require.NoError(t, rt.Archive(task))
	assert.NotEmpty(t, store.snapshot)
}

func TestRunRecordsPerSidTrace(t *testing.T) {
	rt, drv := newTestRuntime(t)
	drv.readsAt["CH1.IQ"] = value.Array{0.5, 0.25}

	spec := TaskSpec{
		Signal: "result",
		Loop: []LoopAxis{
			{Name: "freq", Path: "AWG1.CH1.Frequency", Values: []value.Value{
				value.Number(1), value.Number(2),
			}},
		},
		Steps: []StepDef{
			{Name: "readout", Command: interfaces.Command{Type: interfaces.Read, Target: "AWG1.CH1.IQ"}},
		},
	}
	task := NewTask("t-5", spec)

	require.NoError(t, rt.Run(context.Background(), task))
	require.Len(t, task.Trace, 2)

	assert.Equal(t, 0, task.Trace[0].Sid)
	assert.Equal(t, 1, task.Trace[1].Sid)
	assert.Equal(t, value.Array{0.5, 0.25}, task.Trace[0].Raw["AWG1.CH1.IQ"])
	assert.NotNil(t, task.Trace[0].Bypass)
}

func TestRunCancelStopsBetweenSids(t *testing.T) {
	rt, _ := newTestRuntime(t)

	spec := TaskSpec{
		Signal: "result",
		Loop: []LoopAxis{
			{Name: "freq", Path: "AWG1.CH1.Frequency", Values: []value.Value{
				value.Number(1), value.Number(2), value.Number(3),
			}},
		},
	}
	task := NewTask("t-2", spec)
	task.Cancel()

	err := rt.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, Canceled, task.State())
}

// cancelOnFreqDriver wraps a stubDriver and requests cancellation the
// moment a given frequency value is written, simulating a mid-run
// cancel landing between two sids.
type cancelOnFreqDriver struct {
	*stubDriver
	task     *Task
	cancelAt value.Number
}

func (d *cancelOnFreqDriver) Write(ctx context.Context, quantity string, v value.Value, opts map[string]value.Value) error {
	if quantity == "CH1.Frequency" && v == d.cancelAt {
		d.task.Cancel()
	}
	return d.stubDriver.Write(ctx, quantity, v, opts)
}

func TestRunCancelMidRunStillRunsPostOnceAndReshapesCollectedPoints(t *testing.T) {
	reg := registry.New()
	asm := assemble.New()
	mux := driver.New(nil)
	inner := newStubDriver()
	inner.readsAt["CH1.IQ"] = value.Array{0.5, 0.25}

	spec := TaskSpec{
		Signal: "result",
		Loop: []LoopAxis{
			{Name: "freq", Path: "AWG1.CH1.Frequency", Values: []value.Value{
				value.Number(1), value.Number(2), value.Number(3),
			}},
		},
		Post: []StepDef{
			{Name: "rf_off", Command: interfaces.Command{Type: interfaces.Write, Target: "AWG1.CH1.RF", Value: value.Bool(false)}},
		},
	}
	task := NewTask("t-s4", spec)

	drv := &cancelOnFreqDriver{stubDriver: inner, task: task, cancelAt: value.Number(2)}
	require.NoError(t, mux.Open(context.Background(), "AWG1", drv, nil))
	rt := NewRuntime(reg, compiler.NewAdapter(stubCompiler{}), asm, mux, nil)

	require.NoError(t, rt.Run(context.Background(), task))
	assert.Equal(t, Canceled, task.State())
	assert.Equal(t, 1, task.Dataset.Count("result"))

	reshaped, err := task.Dataset.Reshape("result", spec.AxisLengths())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, reshaped.Shape)
	assert.Equal(t, complex(0.5, 0.25), reshaped.Data[0])
	assert.Equal(t, complex(0, 0), reshaped.Data[1])

	assert.Equal(t, value.Bool(false), inner.written["CH1.RF"])
}

func TestArchiveRequiresFinished(t *testing.T) {
	rt, _ := newTestRuntime(t)
	task := NewTask("t-3", TaskSpec{})

	err := rt.Archive(task)
	assert.Error(t, err)
}

func TestArchiveChecksPointsRegistry(t *testing.T) {
	rt, _ := newTestRuntime(t)
	spec := TaskSpec{Signal: "result"}
	task := NewTask("t-4", spec)

	require.NoError(t, rt.Run(context.Background(), task))
	require.Equal(t, Finished, task.State())

	require.NoError(t, rt.Archive(task))
	assert.Equal(t, Archived, task.State())
	assert.Contains(t, task.Checkpoint, "t-4")
}
