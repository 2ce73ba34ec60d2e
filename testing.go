package qcore

import (
	"context"
	"sync"

	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/value"
)

// MockDriver provides a mock implementation of interfaces.Driver for
// testing task-pipeline callers without real instrument hardware. It
// tracks every call for later assertion, the teacher's MockBackend
// call-tracking pattern generalized from block I/O to driver quantities.
type MockDriver struct {
	mu       sync.RWMutex
	opened   bool
	values   map[string]value.Value
	channels []int
	quants   []interfaces.Quantity
	srate    float64
	hasSrate bool

	openCalls  int
	closeCalls int
	readCalls  int
	writeCalls int

	// FailQuantity, if set, makes Read/Write on that quantity return Err.
	FailQuantity string
	Err          error
}

// NewMockDriver creates a mock driver exposing the given channels and
// quantities with no sampling rate configured.
func NewMockDriver(channels []int, quants []interfaces.Quantity) *MockDriver {
	return &MockDriver{
		values:   make(map[string]value.Value),
		channels: channels,
		quants:   quants,
	}
}

// WithSampleRate configures the mock driver's reported sample rate.
func (m *MockDriver) WithSampleRate(hz float64) *MockDriver {
	m.srate = hz
	m.hasSrate = true
	return m
}

func (m *MockDriver) Open(opts map[string]value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	m.opened = true
	return nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.opened = false
	return nil
}

func (m *MockDriver) Read(ctx context.Context, quantity string, opts map[string]value.Value) (value.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	if m.FailQuantity == quantity && m.Err != nil {
		return nil, m.Err
	}
	v, ok := m.values[quantity]
	if !ok {
		return value.Number(0), nil
	}
	return v, nil
}

func (m *MockDriver) Write(ctx context.Context, quantity string, v value.Value, opts map[string]value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.FailQuantity == quantity && m.Err != nil {
		return m.Err
	}
	m.values[quantity] = v
	return nil
}

func (m *MockDriver) Channels() []int { return m.channels }

func (m *MockDriver) Quantities() []interfaces.Quantity { return m.quants }

func (m *MockDriver) SampleRate() (float64, bool) { return m.srate, m.hasSrate }

// CallCounts returns the number of times each method has been called.
func (m *MockDriver) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"open":  m.openCalls,
		"close": m.closeCalls,
		"read":  m.readCalls,
		"write": m.writeCalls,
	}
}

// IsOpen reports whether Open has been called more recently than Close.
func (m *MockDriver) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opened
}

// LastWritten returns the last value written to quantity, if any.
func (m *MockDriver) LastWritten(quantity string) (value.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[quantity]
	return v, ok
}

// MockCompiler provides a mock implementation of interfaces.Compiler:
// it echoes back a caller-supplied fixed compilation result, regardless
// of the circuit passed in, so pipeline tests can exercise the
// Compiler Adapter/Assembler/Multiplexer chain without a real compiler.
type MockCompiler struct {
	Commands map[string][]interfaces.Command
	DataMap  interfaces.DataMap
	Err      error

	mu         sync.Mutex
	compileArg []interfaces.GateOp
}

func (m *MockCompiler) Compile(ctx interfaces.CompileContext, circuit []interfaces.GateOp) (map[string][]interfaces.Command, interfaces.DataMap, error) {
	m.mu.Lock()
	m.compileArg = circuit
	m.mu.Unlock()
	if m.Err != nil {
		return nil, interfaces.DataMap{}, m.Err
	}
	return m.Commands, m.DataMap, nil
}

// LastCircuit returns the circuit passed to the most recent Compile call.
func (m *MockCompiler) LastCircuit() []interfaces.GateOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compileArg
}

// MockStore provides an in-memory implementation of interfaces.Store
// for tests that exercise dataset persistence without a real HDF5-like
// backing file.
type MockStore struct {
	mu        sync.Mutex
	groups    map[string]map[string]value.Value
	signals   map[string][]complex128
	snapshots map[string][]byte
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		groups:    make(map[string]map[string]value.Value),
		signals:   make(map[string][]complex128),
		snapshots: make(map[string][]byte),
	}
}

func (s *MockStore) CreateGroup(session, tid string, meta map[string]value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[session+"/"+tid] = meta
	return nil
}

func (s *MockStore) AppendSignal(session, tid, signal string, point []complex128) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := session + "/" + tid + "/" + signal
	s.signals[key] = append(s.signals[key], point...)
	return nil
}

func (s *MockStore) WriteSnapshot(session, tid string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[session+"/"+tid] = payload
	return nil
}

func (s *MockStore) ReadSignal(session, tid, signal string) ([]complex128, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := session + "/" + tid + "/" + signal
	out := make([]complex128, len(s.signals[key]))
	copy(out, s.signals[key])
	return out, nil
}

var (
	_ interfaces.Driver   = (*MockDriver)(nil)
	_ interfaces.Compiler = (*MockCompiler)(nil)
	_ interfaces.Store    = (*MockStore)(nil)
)
