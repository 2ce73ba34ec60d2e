package compiler

import (
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/value"
)

// Adapter wraps an injected interfaces.Compiler (spec.md §4.3). It owns
// none of the circuit-compilation logic itself — that is the external
// collaborator's job — only the SET/GET pseudo-op split, gate-cache
// reset, autoclear prepend, and step-accumulator merge surrounding it.
type Adapter struct {
	Compiler interfaces.Compiler
	Logger   *logging.Logger
}

// NewAdapter wraps compiler c.
func NewAdapter(c interfaces.Compiler) *Adapter {
	return &Adapter{Compiler: c, Logger: logging.Default()}
}

// Options configures one Compile call (spec.md §4.3/§9 "Task
// description... other{shots, signal, align_right, fillzero,
// waveform_length, shape}").
type Options struct {
	Shots          int
	Signal         string
	AlignRight     bool
	WaveformLength float64
	Autoclear      bool
	AllChannels    []string // channels the snapshot mentions, for autoclear
	Hold           bool     // if true, skip the sid==0 restore-value capture
}

// Result carries the DataMap plus the sid==0 restore/clear bookkeeping
// the Task Runtime needs (spec.md §4.3: "kwds['restore'] = cfg.initial;
// kwds['clear'] = True" when sid==0).
type Result struct {
	DataMap interfaces.DataMap
	Restore []RestoreEntry
	Clear   bool
}

// Compile implements spec.md §4.3's `compile(sid, instructionAccumulator,
// circuit, opts)→(instruction, datamap)`: it clears ctx's per-snapshot
// gate cache, splits circuit into true gate ops and SET/GET
// pseudo-ops (the latter become direct WRITE/READ commands bypassing
// the external compiler entirely), optionally prepends an
// autoclear zero-write sweep, invokes the external Compiler on the
// remaining gate ops, tags every resulting command `(ctype, address,
// value, "au")`, and merges everything into instruction keyed by step
// name ("main" for WRITE, the command type name otherwise).
func (a *Adapter) Compile(ctx *Context, sid int, instruction map[string][]interfaces.Command, circuit []interfaces.GateOp, opts Options) (map[string][]interfaces.Command, Result, error) {
	ctx.ClearCache()

	if instruction == nil {
		instruction = map[string][]interfaces.Command{}
	}

	if opts.Autoclear {
		for _, ch := range opts.AllChannels {
			appendStep(instruction, interfaces.Command{
				Type:   interfaces.Write,
				Target: ch,
				Value:  value.PulseExpr("zero()"),
			})
		}
	}

	realOps, directCmds := splitPseudoOps(circuit)
	for _, cmd := range directCmds {
		appendStep(instruction, cmd)
	}

	dataMap := interfaces.DataMap{}
	if len(realOps) > 0 {
		commands, dm, err := a.Compiler.Compile(ctx, realOps)
		if err != nil {
			return instruction, Result{}, err
		}
		dataMap = dm
		for step, cmds := range commands {
			for _, cmd := range cmds {
				stepName := step
				if stepName == "" {
					stepName = stepFor(cmd.Type)
				}
				instruction[stepName] = append(instruction[stepName], cmd)
			}
		}
	}

	result := Result{DataMap: dataMap}
	if sid == 0 && !opts.Hold {
		result.Restore = ctx.Initial["restore"]
		result.Clear = true
	}

	a.Logger.Infof("Step %d compiled", sid)
	return instruction, result, nil
}

// appendStep files cmd under "main" for WRITE, or its command-type name
// for READ/WAIT (spec.md §4.3 "Appends trig and read sub-lists
// verbatim").
func appendStep(instruction map[string][]interfaces.Command, cmd interfaces.Command) {
	instruction[stepFor(cmd.Type)] = append(instruction[stepFor(cmd.Type)], cmd)
}

func stepFor(t interfaces.CommandType) string {
	if t == interfaces.Write {
		return "main"
	}
	return string(t)
}

// splitPseudoOps separates true gate operations from SET/GET pseudo-ops
// embedded in the circuit (spec.md §4.3: "Splits circuits so that
// embedded SET/GET pseudo-ops become direct WRITE/READ commands,
// leaving only true gate operations for the external compiler").
func splitPseudoOps(circuit []interfaces.GateOp) (real []interfaces.GateOp, direct []interfaces.Command) {
	for _, op := range circuit {
		switch op.Op {
		case "SET":
			for _, target := range op.Targets {
				v, ok := op.Args["value"]
				if !ok {
					v = value.Number(0)
				}
				direct = append(direct, interfaces.Command{Type: interfaces.Write, Target: target, Value: v, Unit: "au"})
			}
		case "GET":
			for _, target := range op.Targets {
				direct = append(direct, interfaces.Command{Type: interfaces.Read, Target: target, Unit: "au"})
			}
		default:
			real = append(real, op)
		}
	}
	return real, direct
}
