package qcore

import (
	"context"
	"time"

	"github.com/qlab-core/qcore/internal/assemble"
	"github.com/qlab-core/qcore/internal/calib"
	"github.com/qlab-core/qcore/internal/compiler"
	"github.com/qlab-core/qcore/internal/driver"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/registry"
	"github.com/qlab-core/qcore/internal/runtime"
	"github.com/qlab-core/qcore/internal/server"
	"github.com/qlab-core/qcore/internal/value"
)

// TaskSpec is the public alias for a fully parsed task description
// (spec.md §6); callers build one and pass it to Submit.
type TaskSpec = runtime.TaskSpec

// State is the public alias for a task's lifecycle state (spec.md
// §4.6).
type State = runtime.State

// Report, FetchResult, ReviewBundle and SessionKey mirror the Task
// Server's result types (spec.md §4.7) so callers never need to import
// internal/server directly.
type Report = server.Report
type FetchResult = server.FetchResult
type ReviewBundle = server.ReviewBundle
type SessionKey = server.SessionKey

// DriverAlias names one physical backend a Core is opened against
// (spec.md §4.5 "Driver Multiplexer"): Alias is the hardware target
// prefix tasks address it by, Driver the concrete collaborator.
type DriverAlias struct {
	Alias  string
	Driver interfaces.Driver
	Opts   map[string]value.Value
}

// Core is the wired, running instance of the task pipeline and
// calibration scheduler: the Registry, Compiler Adapter, Assembler,
// Driver Multiplexer, Task Runtime and Task Server, plus an optional
// Calibration DAG Scheduler, all built from Options the way the
// teacher's backend.NewMemory()+Controller pairing wires a whole
// block-device stack from one constructor.
type Core struct {
	registry *registry.Registry
	driver   *driver.Multiplexer
	runtime  *runtime.Runtime
	server   *server.Server
	sched    *calib.Scheduler

	Observer interfaces.Observer
	Logger   *logging.Logger
	metrics  *Metrics
}

// CalibOptions configures the optional Calibration DAG Scheduler
// (spec.md §4.8). Graph and Executor are required to enable
// calibration; a nil Graph leaves Core without a scheduler.
type CalibOptions struct {
	Graph       *calib.Graph
	Executor    calib.Executor
	Groups      map[string][]string
	GroupOrder  []string
	CheckMethod string
	CheckPeriod time.Duration
}

// New wires a Core from its collaborators: a compiler backend, the set
// of driver aliases to open, and an optional calibration configuration.
// Options.Logger and Options.Observer, if set, must be *logging.Logger
// and interfaces.Observer respectively; a zero-value Options (as
// exercised by TestOptionsZeroValue) falls back to defaults.
// Options.Store, if it implements interfaces.Store, persists signal
// points and checkpoints to a dataset session; left nil, a Core keeps
// only each task's in-memory Dataset.
func New(comp interfaces.Compiler, aliases []DriverAlias, calibOpts *CalibOptions, opts Options) (*Core, error) {
	logger := logging.Default()
	if l, ok := opts.Logger.(*logging.Logger); ok && l != nil {
		logger = l
	}
	metrics := NewMetrics()
	var observer interfaces.Observer = NewMetricsObserver(metrics)
	if o, ok := opts.Observer.(interfaces.Observer); ok && o != nil {
		observer = o
	}

	reg := registry.New()
	mux := driver.New(observer)
	for _, da := range aliases {
		if err := mux.Open(context.Background(), da.Alias, da.Driver, da.Opts); err != nil {
			return nil, WrapError("qcore.New: open driver "+da.Alias, err)
		}
	}

	adapter := compiler.NewAdapter(comp)
	asm := assemble.New()
	rt := runtime.NewRuntime(reg, adapter, asm, mux, observer)
	rt.Logger = logger
	if st, ok := opts.Store.(interfaces.Store); ok && st != nil {
		rt.Store = st
	}
	srv := server.New(rt)

	c := &Core{
		registry: reg,
		driver:   mux,
		runtime:  rt,
		server:   srv,
		Observer: observer,
		Logger:   logger,
		metrics:  metrics,
	}

	if calibOpts != nil && calibOpts.Graph != nil {
		c.sched = calib.New(calibOpts.Graph, reg, calibOpts.Executor, calibOpts.Groups, calibOpts.GroupOrder, calibOpts.CheckMethod, calibOpts.CheckPeriod, observer)
	}

	return c, nil
}

// StartCalibration starts the Calibration DAG Scheduler's Checker and
// Calibrator loops, if one was configured. It is a no-op otherwise.
func (c *Core) StartCalibration(ctx context.Context) {
	if c.sched != nil {
		c.sched.Start(ctx)
	}
}

// Server exposes the underlying Task Server so a transport layer
// (internal/rpc) can wire its own handlers without the root package
// needing to know about any particular transport.
func (c *Core) Server() *server.Server {
	return c.server
}

// Close stops the metrics clock and the Task Server's admission loop.
// It does not close the opened driver aliases.
func (c *Core) Close() error {
	c.metrics.Stop()
	return c.server.Close()
}

// Metrics returns the Core's running operational statistics (driver
// call counts/latency, BypassCache elision, task terminal counts,
// calibration check outcomes): the same counters feeding the default
// Observer, available even when a caller supplied its own Observer.
func (c *Core) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the Core's
// metrics.
func (c *Core) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{}
	}
	return c.metrics.Snapshot()
}

// Submit enqueues spec on the Task Server (spec.md §4.7 "submit").
func (c *Core) Submit(spec TaskSpec) (string, error) {
	return c.server.Submit(spec)
}

// Cancel cancels a pending or running task (spec.md §4.7 "cancel").
func (c *Core) Cancel(tid string) error {
	return c.server.Cancel(tid)
}

// Track returns a task's current lifecycle state (spec.md §4.7 "track").
func (c *Core) Track(tid string) (State, error) {
	return c.server.Track(tid)
}

// Report returns a task's terminal report (spec.md §4.7 "report").
func (c *Core) Report(tid string) (Report, error) {
	return c.server.Report(tid)
}

// Fetch returns every signal's points recorded since index start
// (spec.md §4.7 "fetch").
func (c *Core) Fetch(tid string, start int, meta bool) (FetchResult, error) {
	return c.server.Fetch(tid, start, meta)
}

// Review returns a task's per-sid debugging trace bundle (spec.md §4.7
// "review").
func (c *Core) Review(tid string, sid int) (ReviewBundle, error) {
	return c.server.Review(tid, sid)
}

// Snapshot returns the textual dump of the Registry snapshot for tid
// (spec.md §4.7 "snapshot").
func (c *Core) Snapshot(tid string) string {
	return c.server.Snapshot(tid)
}

// Query reads path from the Registry, returning def if unset (spec.md
// §4.4 "query").
func (c *Core) Query(path string, def interface{}) interface{} {
	return c.server.Query(path, def)
}

// Update writes a value to the Registry at path (spec.md §4.4
// "update").
func (c *Core) Update(path string, v interface{}) error {
	return c.server.Update(path, v)
}

// Create adds a new Registry entry at path (spec.md §4.4 "create").
func (c *Core) Create(path string, v interface{}) error {
	return c.server.Create(path, v)
}

// Delete removes a Registry entry at path (spec.md §4.4 "delete").
func (c *Core) Delete(path string) error {
	return c.server.Delete(path)
}

// Checkpoint returns the textual dump of the Registry snapshot for tid
// (spec.md §4.4 "checkpoint"). It writes nothing itself.
func (c *Core) Checkpoint(tid string) (string, error) {
	return c.server.Checkpoint(tid)
}

// AddUser registers user against system (spec.md §4.7 "adduser").
func (c *Core) AddUser(user, system string) error {
	return c.server.AddUser(user, system)
}

// Login returns key's reusable session token (spec.md §4.7 "login").
func (c *Core) Login(key SessionKey) (string, error) {
	return c.server.Login(key)
}
