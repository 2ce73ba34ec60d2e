package assemble

import (
	"fmt"
	"strings"

	"github.com/qlab-core/qcore/internal/constants"
)

// LegacyMapping is the fallback logical-attribute → hardware-attribute
// table (spec.md §4.4 step 3 "legacy mapping table"), grounded verbatim
// on the `MAPPING` dict in `quark/runtime/assembler.py`.
var LegacyMapping = map[string]string{
	"setting_LO":     "LO.Frequency",
	"setting_POW":    "LO.Power",
	"setting_OFFSET": "ZBIAS.Offset",
	"waveform_RF_I":  "I.Waveform",
	"waveform_RF_Q":  "Q.Waveform",
	"waveform_TRIG":  "TRIG.Marker1",
	"waveform_DDS":   "DDS.Waveform",
	"waveform_SW":    "SW.Marker1",
	"waveform_Z":     "Z.Waveform",
	"setting_PNT":    "ADC.PointNumber",
	"setting_SHOT":   "ADC.Shot",
	"setting_TRIGD":  "ADC.TriggerDelay",
}

// IsCmd implements the `iscmd(target)` predicate (spec.md §4.4 step 2):
// a target is eligible for hardware dispatch unless its path contains
// one of the declared opaque segments (gate/circuit configuration
// nodes, never dispatched directly).
func IsCmd(target string) bool {
	for _, seg := range constants.OpaqueSegments {
		if strings.Contains(target, seg) {
			return false
		}
	}
	return true
}

// Decode resolves a logical target (e.g. "Q0.setting.LO") to a hardware
// channel address via the legacy mapping table (spec.md §4.4 step 3),
// grounded on `decode()` in `quark/runtime/assembler.py`: split off
// everything after the first dot, replace remaining dots with
// underscores to form the mapping key, look up the hardware
// chkey.quantity pair, then resolve chkey against context["channel"].
// If the resolved channel is a marker bit, the quantity suffix is
// omitted.
func Decode(target string, context map[string]any, mapping map[string]string) (string, error) {
	rest := target
	if idx := strings.IndexByte(target, '.'); idx >= 0 {
		rest = target[idx+1:]
	}
	mkey := strings.ReplaceAll(rest, ".", "_")

	hw, ok := mapping[mkey]
	if !ok {
		return "", fmt.Errorf("assemble: %q not found in mapping", mkey)
	}
	chkey, quantity, _ := strings.Cut(hw, ".")

	channels, _ := context["channel"].(map[string]any)
	channelAny, ok := channels[chkey]
	if !ok {
		return "", fmt.Errorf("assemble: %q not found", chkey)
	}
	if channelAny == nil {
		return "", fmt.Errorf("assemble: ChannelNotFound for %s", target)
	}
	channel, ok := channelAny.(string)
	if !ok {
		return "", fmt.Errorf("assemble: wrong type of channel for %s, string needed got %T", target, channelAny)
	}
	if !strings.Contains(channel, "Marker") {
		channel = channel + "." + quantity
	}
	return channel, nil
}

// ResolveTarget implements spec.md §4.4 step 3's "either by direct
// address lookup in the target's context, or by the legacy mapping
// table": it queries the target's root-level context node from the
// snapshot, prefers an explicit "address" field, and falls back to
// Decode against the registry's own mapping override (or LegacyMapping
// if none is configured).
func ResolveTarget(querier RawQuerier, target string) (hwTarget string, context map[string]any, err error) {
	root := target
	if idx := strings.IndexByte(target, '.'); idx >= 0 {
		root = target[:idx]
	}

	context, _ = querier.QueryRaw(root, nil).(map[string]any)

	if context != nil {
		if addr, ok := context["address"].(string); ok && addr != "" {
			return addr, context, nil
		}
	}

	mapping, ok := querier.QueryRaw("etc.mapping", nil).(map[string]string)
	if !ok {
		mapping = LegacyMapping
	}
	hw, err := Decode(target, context, mapping)
	return hw, context, err
}

// RawQuerier resolves a dotted registry path to its raw structural
// value (a subtree, not a typed value.Value), used for context/mapping
// lookups that are never command payloads.
type RawQuerier interface {
	QueryRaw(path string, def any) any
}
