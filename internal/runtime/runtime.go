package runtime

import (
	"context"
	"errors"
	"sort"

	"github.com/qlab-core/qcore/internal/assemble"
	"github.com/qlab-core/qcore/internal/compiler"
	"github.com/qlab-core/qcore/internal/constants"
	"github.com/qlab-core/qcore/internal/driver"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/qerrors"
	"github.com/qlab-core/qcore/internal/registry"
	"github.com/qlab-core/qcore/internal/value"
)

// Runtime implements the Task Runtime state machine (spec.md §4.6): it
// wires the Registry, Compiler Adapter, Assembler and Driver Multiplexer
// together to drive one task through its running loop, sid by sid.
type Runtime struct {
	Registry  *registry.Registry
	Compiler  *compiler.Adapter
	Assembler *assemble.Assembler
	Driver    *driver.Multiplexer
	Observer  interfaces.Observer
	Logger    *logging.Logger

	// Store persists signal points and checkpoints to the dataset
	// session file (spec.md §9 "persisted dataset"), an external
	// collaborator left unset by default; a nil Store leaves the
	// in-memory Dataset on Task as the only record of a run.
	Store interfaces.Store
}

// NewRuntime wires a Runtime from its collaborators.
func NewRuntime(reg *registry.Registry, comp *compiler.Adapter, asm *assemble.Assembler, drv *driver.Multiplexer, obs interfaces.Observer) *Runtime {
	if asm != nil {
		asm.Registry = reg
	}
	return &Runtime{
		Registry:  reg,
		Compiler:  comp,
		Assembler: asm,
		Driver:    drv,
		Observer:  obs,
		Logger:    logging.Default(),
	}
}

// Run drives task through its entire running loop (spec.md §4.6), sid
// by sid, until it reaches Finished, Failed, or Canceled. The only
// error it returns is for a task that is not Pending, which it does not
// run; failures during the run are recorded on task.Err (a
// *qerrors.Error) and the function returns nil, so callers inspect
// task.State() rather than branching on the return value.
func (rt *Runtime) Run(ctx context.Context, task *Task) error {
	if !task.setState(Running) {
		return qerrors.NewTaskError("run", task.ID, -1, qerrors.Cancelled, "task is not Pending")
	}

	if rt.Store != nil {
		meta := map[string]value.Value{"name": value.Str(task.Spec.Name), "backend": value.Str(task.Spec.Backend)}
		if err := rt.Store.CreateGroup(task.session(), task.ID, meta); err != nil {
			rt.Logger.Warnf("task %s: create dataset group: %v", task.ID, err)
		}
	}

	taskCtx, cancelTask := context.WithTimeout(ctx, constants.DefaultTaskTimeout)
	defer cancelTask()

	snapshot := rt.Registry.Snapshot(task.ID)
	arch, _ := snapshot.Query("arch", "").(string)
	cctx := compiler.NewContext(snapshot, arch)

	axisLengths := task.Spec.AxisLengths()
	total := Total(axisLengths)

	rules := make([]*Rule, 0, len(task.Spec.Rules))
	for _, eq := range task.Spec.Rules {
		r, err := ParseRule(eq)
		if err != nil {
			rt.fail(task, -1, qerrors.NewTaskError("parse_rules", task.ID, -1, qerrors.CompilerError, err.Error()))
			rt.finalize(ctx, task, cctx, axisLengths, -1)
			return nil
		}
		rules = append(rules, r)
	}

	for sid := 0; sid < total; sid++ {
		if task.cancelRequested() {
			rt.cancelTask(task, sid)
			rt.finalize(ctx, task, cctx, axisLengths, sid)
			return nil
		}

		if err := taskCtx.Err(); err != nil {
			rt.fail(task, sid, qerrors.NewTaskError("run", task.ID, sid, qerrors.Timeout, "task deadline exceeded"))
			rt.finalize(ctx, task, cctx, axisLengths, sid)
			return nil
		}

		coord := Coordinate(sid, axisLengths)
		overrides := rt.evaluateRules(task, rules, coord, snapshot)

		instruction := map[string][]interfaces.Command{}
		if sid == 0 {
			appendStepDefs(instruction, task.Spec.Init)
		}
		appendAxisWrites(instruction, task.Spec.Loop, coord, overrides)
		appendStepDefs(instruction, task.Spec.Steps)

		opts := compiler.Options{
			Shots:          task.Spec.Shots,
			Signal:         task.Spec.Signal,
			AlignRight:     task.Spec.AlignRight,
			WaveformLength: task.Spec.WaveformLength,
		}
		instruction, result, err := rt.Compiler.Compile(cctx, sid, instruction, task.Spec.Circuit, opts)
		if err != nil {
			rt.fail(task, sid, qerrors.NewTaskError("compile", task.ID, sid, qerrors.CompilerError, err.Error()))
			rt.finalize(ctx, task, cctx, axisLengths, sid)
			return nil
		}

		assembled, err := rt.Assembler.Assemble(cctx, sid, instruction, assemble.Options{Prep: true})
		if err != nil {
			rt.fail(task, sid, qerrors.NewTaskError("assemble", task.ID, sid, qerrors.CompilerError, err.Error()))
			rt.finalize(ctx, task, cctx, axisLengths, sid)
			return nil
		}

		reads, canceled, derr := rt.dispatchStep(taskCtx, task, sid, assembled, true)
		if canceled {
			rt.cancelTask(task, sid)
			rt.finalize(ctx, task, cctx, axisLengths, sid)
			return nil
		}
		if derr != nil {
			rt.fail(task, sid, derr)
			rt.finalize(ctx, task, cctx, axisLengths, sid)
			return nil
		}

		point := reassemble(result.DataMap, reads)
		signal := task.Spec.Signal
		if signal == "" {
			signal = "default"
		}
		_ = task.Dataset.Append(signal, point)
		if rt.Store != nil {
			if err := rt.Store.AppendSignal(task.session(), task.ID, signal, point); err != nil {
				rt.Logger.Warnf("task %s: append signal %s: %v", task.ID, signal, err)
			}
		}

		task.Trace = append(task.Trace, rt.buildTrace(sid, task, instruction, reads, cctx))

		if rt.Observer != nil {
			rt.Observer.ObserveStepDispatched(task.ID, sid)
		}
	}

	task.setState(Finished)
	if rt.Observer != nil {
		rt.Observer.ObserveTaskTerminal(task.ID, Finished.String())
	}

	rt.finalize(ctx, task, cctx, axisLengths, total-1)

	return nil
}

// finalize runs a task's declared post commands and reshapes its
// Dataset once it has reached a terminal state, whether Finished,
// Failed or Canceled (spec.md §7: "A Failed/Canceled task still runs
// post commands; its Dataset is reshaped using the already-collected
// points and archived"). It uses ctx, not the per-task deadline-bound
// taskCtx, so a task that failed on its own deadline can still run
// cleanup.
func (rt *Runtime) finalize(ctx context.Context, task *Task, cctx *compiler.Context, axisLengths []int, sid int) {
	rt.applyPost(ctx, task, cctx, sid)

	signal := task.Spec.Signal
	if signal == "" {
		signal = "default"
	}
	if _, err := task.Dataset.Reshape(signal, axisLengths); err != nil {
		rt.Logger.Warnf("task %s: reshape %s: %v", task.ID, signal, err)
	}
}

// Archive transitions a Finished task to Archived and checkpoints the
// Registry for it (spec.md §4.6 step 6: "if Archived, call
// Registry.checkpoint(tid)").
func (rt *Runtime) Archive(task *Task) error {
	if task.State() != Finished {
		return qerrors.NewTaskError("archive", task.ID, -1, qerrors.Cancelled, "only a Finished task may be archived")
	}
	dump, err := rt.Registry.Checkpoint(task.ID)
	if err != nil {
		return qerrors.WrapError("archive", err)
	}
	task.Checkpoint = dump
	if rt.Store != nil {
		if err := rt.Store.WriteSnapshot(task.session(), task.ID, []byte(dump)); err != nil {
			rt.Logger.Warnf("task %s: write snapshot: %v", task.ID, err)
		}
	}
	task.setState(Archived)
	if rt.Observer != nil {
		rt.Observer.ObserveTaskTerminal(task.ID, Archived.String())
	}
	return nil
}

func (rt *Runtime) fail(task *Task, sid int, err *qerrors.Error) {
	task.Err = err
	task.FailedAtSid = sid
	task.setState(Failed)
	if rt.Observer != nil {
		rt.Observer.ObserveTaskTerminal(task.ID, Failed.String())
	}
	rt.Logger.Errorf("task %s failed at sid %d: %v", task.ID, sid, err)
}

func (rt *Runtime) cancelTask(task *Task, sid int) {
	task.FailedAtSid = sid
	task.setState(Canceled)
	if rt.Observer != nil {
		rt.Observer.ObserveTaskTerminal(task.ID, Canceled.String())
	}
}

// evaluateRules resolves every dependency rule for the current
// coordinate against the axis values and the frozen snapshot (spec.md
// §4.6 step 2), returning a path->value override map consumed by
// appendAxisWrites.
func (rt *Runtime) evaluateRules(task *Task, rules []*Rule, coord []int, snapshot *registry.Snapshot) map[string]float64 {
	overrides := map[string]float64{}
	lookup := func(path string) (float64, bool) {
		for i, ax := range task.Spec.Loop {
			if ax.Name != path && ax.Path != path {
				continue
			}
			if n, ok := ax.Values[coord[i]].(value.Number); ok {
				return float64(n), true
			}
		}
		if v, ok := snapshot.Query(path, nil).(value.Number); ok {
			return float64(v), true
		}
		if f, ok := snapshot.Query(path, nil).(float64); ok {
			return f, true
		}
		return 0, false
	}

	for _, r := range rules {
		v, err := r.Expr.Eval(lookup)
		if err != nil {
			rt.Logger.Warnf("task %s: rule %q: %v", task.ID, r.Source, err)
			continue
		}
		overrides[r.Target] = v
	}
	return overrides
}

func appendAxisWrites(instruction map[string][]interfaces.Command, axes []LoopAxis, coord []int, overrides map[string]float64) {
	for i, ax := range axes {
		v := ax.Values[coord[i]]
		if override, ok := overrides[ax.Path]; ok {
			v = value.Number(override)
		}
		instruction["main"] = append(instruction["main"], interfaces.Command{
			Type: interfaces.Write, Target: ax.Path, Value: v, Unit: ax.Unit,
		})
	}
}

func appendStepDefs(instruction map[string][]interfaces.Command, steps []StepDef) {
	for _, sd := range steps {
		instruction[stepKey(sd.Command.Type)] = append(instruction[stepKey(sd.Command.Type)], sd.Command)
	}
}

func stepKey(t interfaces.CommandType) string {
	if t == interfaces.Write {
		return "main"
	}
	return string(t)
}

// dispatchStep dispatches every assembled command, time-boxing each
// with the step timeout (spec.md §4.6 step 4) and checking for
// cooperative cancellation before each driver call — never mid-flight.
// checkCancel is false for post commands (spec.md §7: a Failed/Canceled
// task still runs post commands, so they must not themselves be cut
// short by the same cancellation flag that ended the running loop).
func (rt *Runtime) dispatchStep(ctx context.Context, task *Task, sid int, assembled map[string]map[string]*assemble.Command, checkCancel bool) (reads map[string]value.Value, canceled bool, err *qerrors.Error) {
	reads = map[string]value.Value{}

	targets := make([]string, 0)
	for _, scmd := range assembled {
		for hwTarget := range scmd {
			targets = append(targets, hwTarget)
		}
	}
	sort.Strings(targets)

	for _, hwTarget := range targets {
		var cmd *assemble.Command
		for _, scmd := range assembled {
			if c, ok := scmd[hwTarget]; ok {
				cmd = c
				break
			}
		}
		if cmd == nil {
			continue
		}

		if checkCancel && task.cancelRequested() {
			return reads, true, nil
		}

		stepCtx, cancel := context.WithTimeout(ctx, constants.DefaultStepTimeout)
		v, derr := rt.Driver.Dispatch(stepCtx, hwTarget, *cmd)
		cancel()

		if derr != nil {
			switch {
			case errors.Is(derr, context.Canceled):
				return reads, true, nil
			case errors.Is(derr, context.DeadlineExceeded):
				return reads, false, qerrors.NewTaskError("dispatch", task.ID, sid, qerrors.Timeout, derr.Error())
			default:
				return reads, false, qerrors.NewTaskError("dispatch", task.ID, sid, qerrors.DriverLogical, derr.Error())
			}
		}

		if cmd.Type == interfaces.Read {
			reads[hwTarget] = v
		}
	}

	return reads, false, nil
}

// buildTrace snapshots one sid's compile/assemble/dispatch artifacts for
// the Task Server's review operation (spec.md §4.7 "review(tid,sid)
// returns {circ,ini,raw,ctx,byp,debug,trace}"). The context and bypass
// maps are copied so a later sid mutating cctx in place can never
// retroactively change an earlier sid's recorded trace.
func (rt *Runtime) buildTrace(sid int, task *Task, instruction map[string][]interfaces.Command, reads map[string]value.Value, cctx *compiler.Context) SidTrace {
	raw := make(map[string]value.Value, len(reads))
	for k, v := range reads {
		raw[k] = v
	}

	restore := append([]compiler.RestoreEntry(nil), cctx.Initial["restore"]...)

	bypass := make(map[string]compiler.BypassEntry, len(cctx.Bypass))
	for k, v := range cctx.Bypass {
		bypass[k] = v
	}

	return SidTrace{
		Sid:         sid,
		Circuit:     task.Spec.Circuit,
		Instruction: instruction,
		Raw:         raw,
		Context:     restore,
		Bypass:      bypass,
	}
}

// applyPost dispatches a task's declared post commands once it reaches
// a terminal state — Finished, Failed or Canceled (spec.md §4.6 step 6
// "apply post commands", §7 "a Failed/Canceled task still runs post
// commands") — resolving their logical targets to hardware channels
// through the same Assembler path the running loop uses.
func (rt *Runtime) applyPost(ctx context.Context, task *Task, cctx *compiler.Context, sid int) {
	if len(task.Spec.Post) == 0 {
		return
	}
	instruction := map[string][]interfaces.Command{}
	appendStepDefs(instruction, task.Spec.Post)

	assembled, err := rt.Assembler.Assemble(cctx, sid, instruction, assemble.Options{})
	if err != nil {
		rt.Logger.Warnf("task %s: assembling post commands: %v", task.ID, err)
		return
	}

	if _, _, derr := rt.dispatchStep(ctx, task, sid, assembled, false); derr != nil {
		rt.Logger.Warnf("task %s: post command dispatch: %v", task.ID, derr)
	}
}

// reassemble converts a sid's raw READ results into one dataset point,
// ordered by classical-bit index (spec.md §4.3 Glossary "DataMap"). A
// Number reassembles as a real-valued point; an Array of length >= 2 is
// read as (I, Q).
func reassemble(dm interfaces.DataMap, reads map[string]value.Value) []complex128 {
	if len(dm.CBits) == 0 {
		point := make([]complex128, 0, len(reads))
		keys := make([]string, 0, len(reads))
		for k := range reads {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			point = append(point, toComplex(reads[k]))
		}
		return point
	}

	indices := make([]int, 0, len(dm.CBits))
	for i := range dm.CBits {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	point := make([]complex128, len(indices))
	for n, i := range indices {
		cbit := dm.CBits[i]
		point[n] = toComplex(reads[cbit.Source])
	}
	return point
}

func toComplex(v value.Value) complex128 {
	switch vv := v.(type) {
	case value.Number:
		return complex(float64(vv), 0)
	case value.Array:
		switch len(vv) {
		case 0:
			return 0
		case 1:
			return complex(vv[0], 0)
		default:
			return complex(vv[0], vv[1])
		}
	default:
		return 0
	}
}
