package assemble

import (
	"strings"

	"github.com/qlab-core/qcore/internal/compiler"
	"github.com/qlab-core/qcore/internal/constants"
)

// Preprocess implements spec.md §4.4.1: drops any assembled command
// whose target ends in a write-sensitive suffix and whose value is
// Kernel-equal to the BypassCache's prior value for that target, else
// records it in the cache; builds the calibration context handed to
// the pulse Kernel; and, if shared is true, moves array values out of
// line via the Assembler's SharedMemory. The BypassCache is cleared
// when sid == 0.
func (a *Assembler) Preprocess(ctx *compiler.Context, sid int, instruction map[string]map[string]*Command, shared bool) {
	if sid == 0 {
		ctx.Bypass = map[string]compiler.BypassEntry{}
	}

	for step, operations := range instruction {
		kept := map[string]*Command{}
		for target, cmd := range operations {
			if hasWriteSensitiveSuffix(target) {
				if prior, ok := ctx.Bypass[target]; ok && a.Kernel.Equal(prior.Value, cmd.Value) {
					continue
				}
				ctx.Bypass[target] = compiler.BypassEntry{Value: cmd.Value, Target: cmd.Kwds.OriginTarget}
			}

			cmd.Kwds.Calibration = buildCalibration(cmd.Kwds.Context, cmd.Kwds.OriginTarget)

			if shared {
				if moved, ok := a.Shmem.Dump(cmd.Value); ok {
					cmd.Kwds.Shared = cmd.Value
					cmd.Value = moved
				}
			}
			kept[target] = cmd
		}
		instruction[step] = kept
	}
}

// hasWriteSensitiveSuffix reports whether target ends with one of the
// declared write-sensitive suffixes (spec.md §4.4.1 "e.g. Waveform,
// Shot").
func hasWriteSensitiveSuffix(target string) bool {
	for _, suf := range constants.WriteSensitiveSuffixes {
		if len(target) >= len(suf) && target[len(target)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// buildCalibration assembles the calibration context handed to the
// pulse Kernel (spec.md §4.4.1: "{end: context.waveform.LEN, offset:
// context.setting.OFFSET, ...context.calibration[channel]}"). channel
// is the last dot-separated segment of the command's origin target
// (e.g. "Q1.RI.Waveform" -> "Waveform"), matching
// `quark/runtime/assembler.py:295-298`'s `context['calibration'][channel]`
// — only the current channel's calibration is merged in, not every
// channel's.
func buildCalibration(context map[string]any, originTarget string) map[string]any {
	if context == nil {
		return nil
	}
	cal := map[string]any{}

	if wf, ok := context["waveform"].(map[string]any); ok {
		cal["end"] = wf["LEN"]
	}
	if setting, ok := context["setting"].(map[string]any); ok {
		cal["offset"] = setting["OFFSET"]
	} else {
		cal["offset"] = 0.0
	}

	channel := originTarget
	if idx := strings.LastIndexByte(originTarget, '.'); idx >= 0 {
		channel = originTarget[idx+1:]
	}
	if perChannel, ok := context["calibration"].(map[string]any); ok {
		if chanCal, ok := perChannel[channel].(map[string]any); ok {
			for k, v := range chanCal {
				cal[k] = v
			}
		}
	}
	return cal
}
