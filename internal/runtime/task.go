package runtime

import (
	"sync"

	"github.com/qlab-core/qcore/internal/compiler"
	"github.com/qlab-core/qcore/internal/dataset"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/value"
)

// State is one of the task lifecycle states from spec.md §4.6:
// Pending -> Running -> {Finished, Failed, Canceled} -> Archived.
type State int

const (
	Pending State = iota
	Running
	Finished
	Failed
	Canceled
	Archived
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	case Failed:
		return "Failed"
	case Canceled:
		return "Canceled"
	case Archived:
		return "Archived"
	default:
		return "Unknown"
	}
}

// terminal reports whether s is one of the states the task may not
// leave except, for Finished, into Archived.
func (s State) terminal() bool {
	return s == Finished || s == Failed || s == Canceled || s == Archived
}

// StepDef is one pre-registered command in a task's step/init/post list
// (spec.md §6 "step is an ordered map step-name->[action,argument]").
// Name is the declared step name; Command is the command itself.
type StepDef struct {
	Name    string
	Command interfaces.Command
}

// LoopAxis is one sweep axis (spec.md §6 "loop is an ordered map
// axis-name->list of (path,values,unit)").
type LoopAxis struct {
	Name   string
	Path   string
	Values []value.Value
	Unit   string
}

// TaskSpec is a fully parsed task description (spec.md §6).
type TaskSpec struct {
	Name     string
	Priority int
	// Backend names the physical backend this task is admitted onto (the
	// original's `submit(..., backend=connection)` keyword argument,
	// spec.md §4.7 "at most one Running task per physical backend").
	// Empty means the Task Server's default backend.
	Backend string
	// Session names the persisted dataset session this task's group is
	// filed under (spec.md §9 "one file per session, one group per
	// task"). Empty means the Task Runtime's default session.
	Session        string
	Shots          int
	Signal         string
	AlignRight     bool
	FillZero       bool
	WaveformLength float64
	Shape          []int

	Steps []StepDef
	Init  []StepDef
	Post  []StepDef

	Circuit []interfaces.GateOp
	Rules   []string
	Loop    []LoopAxis
}

// AxisLengths returns the declared length of every loop axis, in
// declaration order.
func (s TaskSpec) AxisLengths() []int {
	out := make([]int, len(s.Loop))
	for i, ax := range s.Loop {
		out[i] = len(ax.Values)
	}
	return out
}

// TotalSids returns the number of sweep points this task's running loop
// visits (1 for a task with no loop axes).
func (s TaskSpec) TotalSids() int {
	return Total(s.AxisLengths())
}

// SidTrace captures one sid's compile/assemble/dispatch artifacts for
// later inspection by the Task Server's review operation (spec.md §4.7
// "review(tid,sid) returns {circ,ini,raw,ctx,byp,debug,trace}").
type SidTrace struct {
	Sid         int
	Circuit     []interfaces.GateOp
	Instruction map[string][]interfaces.Command
	Raw         map[string]value.Value
	Context     []compiler.RestoreEntry
	Bypass      map[string]compiler.BypassEntry
	Debug       string
}

// Task is one submitted, runnable instance of a TaskSpec.
type Task struct {
	ID      string
	Spec    TaskSpec
	Dataset *dataset.Dataset
	Trace   []SidTrace

	Err         error
	FailedAtSid int
	Checkpoint  string

	mu     sync.Mutex
	state  State
	cancel bool
}

// NewTask creates a Pending task ready to be Run.
func NewTask(id string, spec TaskSpec) *Task {
	return &Task{
		ID:          id,
		Spec:        spec,
		Dataset:     dataset.New(),
		FailedAtSid: -1,
		state:       Pending,
	}
}

// session returns the task's dataset session name, defaulting to
// "default" when the spec left it unset.
func (t *Task) session() string {
	if t.Spec.Session == "" {
		return "default"
	}
	return t.Spec.Session
}

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState transitions the task to s, refusing to leave a terminal
// state except Finished->Archived (spec.md §8 invariant: terminal
// states are final).
func (t *Task) setState(s State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() {
		if !(t.state == Finished && s == Archived) {
			return false
		}
	}
	t.state = s
	return true
}

// Cancel requests cooperative cancellation: the Task Runtime observes
// this between sids and before each driver call, never mid-dispatch
// (spec.md §4.6, §8 "cancel takes effect between steps").
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = true
}

func (t *Task) cancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel
}
