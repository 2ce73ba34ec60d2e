// Package assemble implements the Assembler and BypassCache (spec.md
// §4.4/§4.4.1): resolving compiled logical commands to hardware
// channels, merging same-channel waveform writes via pulse algebra,
// stamping sampling rate, and filtering repeated writes through the
// per-task BypassCache before dispatch. Grounded almost 1:1 on
// `quark/runtime/assembler.py`'s `assemble`/`decode`/`preprocess`.
package assemble

import (
	"strings"

	"github.com/qlab-core/qcore/internal/compiler"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/pulse"
	"github.com/qlab-core/qcore/internal/registry"
	"github.com/qlab-core/qcore/internal/value"
)

// Kwds carries the bookkeeping the original threads alongside every
// assembled command (spec.md §4.4 step 4, §4.4.1).
type Kwds struct {
	SID          int
	OriginTarget string
	SRate        float64
	Context      map[string]any
	Calibration  map[string]any
	Shared       value.Value // non-nil if the value was moved to shared memory
}

// Command is one fully-resolved command ready for driver dispatch.
type Command struct {
	Type  interfaces.CommandType
	Value value.Value
	Unit  string
	Kwds  Kwds
}

// Options configures one Assemble call (spec.md §4.4 "assemble(sid,
// instruction, prep?, hold?)").
type Options struct {
	Hold   bool // skip sid==0 restore-value capture
	Prep   bool // run the pre-processor/BypassCache pass
	Shared bool // enable shared-memory handoff in the pre-processor
}

// Assembler resolves compiled commands to hardware channels.
type Assembler struct {
	Kernel *pulse.Kernel
	Shmem  *SharedMemory
	Logger *logging.Logger

	// Registry receives "update" steps (spec.md §4.4 step 1): a nil
	// Registry silently drops them, which is fine for callers (tests,
	// mostly) that never emit one.
	Registry *registry.Registry
}

// New returns an Assembler with a fresh shared-memory segment registry.
func New() *Assembler {
	return &Assembler{Kernel: pulse.New(), Shmem: NewSharedMemory(), Logger: logging.Default()}
}

// Assemble implements spec.md §4.4: resolves every (ctype, target,
// value) triple in each step of instruction to a hardware channel,
// merges repeated waveform writes to the same channel via pulse
// algebra, stamps sampling rate, and — if opts.Prep — runs the
// pre-processor/BypassCache pass (§4.4.1).
func (a *Assembler) Assemble(ctx *compiler.Context, sid int, instruction map[string][]interfaces.Command, opts Options) (map[string]map[string]*Command, error) {
	assembled := map[string]map[string]*Command{}

	for step, cmds := range instruction {
		scmd := map[string]*Command{}
		for _, cmd := range cmds {
			if strings.EqualFold(step, "update") {
				if a.Registry != nil {
					if err := a.Registry.Update(cmd.Target, cmd.Value); err != nil {
						a.Logger.Warnf("update %s: %v", cmd.Target, err)
					}
				}
				continue
			}

			var hwTarget string
			var context map[string]any

			if cmd.Type == interfaces.Wait || strings.Contains(cmd.Target, "CH") {
				hwTarget = cmd.Target
			} else {
				if !IsCmd(cmd.Target) {
					continue
				}
				hw, ctxMap, err := ResolveTarget(ctx, cmd.Target)
				if err != nil {
					a.Logger.Warnf("failed to map %s: %v", cmd.Target, err)
					continue
				}
				hwTarget, context = hw, ctxMap

				if sid == 0 && !opts.Hold {
					base := strings.TrimSuffix(strings.TrimSuffix(cmd.Target, ".Q"), ".I")
					init, _ := ctx.Snapshot.Query(base, nil).(value.Value)
					ctx.Initial["restore"] = append(ctx.Initial["restore"], compiler.RestoreEntry{
						Type: cmd.Type, Target: cmd.Target, Value: init, Unit: cmd.Unit,
					})
				}
			}

			var srate float64
			if cmd.Type != interfaces.Wait {
				dev := hwTarget
				if idx := strings.IndexByte(hwTarget, '.'); idx >= 0 {
					dev = hwTarget[:idx]
				}
				s, ok := ctx.QueryRaw("dev."+dev+".srate", nil).(float64)
				if !ok {
					a.Logger.Errorf("failed to get srate: %s(%s)", dev, cmd.Target)
				}
				srate = s
			}

			next := &Command{
				Type:  cmd.Type,
				Value: cmd.Value,
				Unit:  cmd.Unit,
				Kwds:  Kwds{SID: sid, OriginTarget: cmd.Target, SRate: srate, Context: context},
			}

			if existing, ok := scmd[hwTarget]; ok && existing.Type == interfaces.Write && strings.Contains(strings.ToLower(hwTarget), "waveform") {
				merged, ok := a.mergeWaveforms(existing.Value, next.Value)
				if !ok {
					a.Logger.Warnf("channel[%s] multiplexing error, overwriting", hwTarget)
					scmd[hwTarget] = next
				} else {
					existing.Value = merged
					existing.Kwds = next.Kwds
				}
				continue
			}
			scmd[hwTarget] = next
		}
		assembled[step] = scmd
	}

	if opts.Prep {
		a.Preprocess(ctx, sid, assembled, opts.Shared)
	}
	return assembled, nil
}

// mergeWaveforms implements spec.md §4.4 step 5: parse any string value
// via the pulse grammar, then add the two waveform objects.
func (a *Assembler) mergeWaveforms(existing, incoming value.Value) (merged value.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	ep := asPulseObject(existing)
	ip := asPulseObject(incoming)
	if ep == nil || ip == nil {
		return nil, false
	}
	return ep.Add(ip), true
}

func asPulseObject(v value.Value) *value.PulseObject {
	switch vv := v.(type) {
	case *value.PulseObject:
		return vv
	case value.PulseExpr:
		return pulse.FromString(string(vv))
	default:
		return nil
	}
}
