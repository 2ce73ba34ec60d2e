package uapi

import (
	"fmt"

	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/value"
)

// WireValue is the JSON-friendly shape of value.Value (spec.md §9
// "tagged Value variant"): JSON has no notion of a sum type, so Kind
// picks which of the remaining fields is populated.
type WireValue struct {
	Kind      string    `json:"kind"`
	Number    float64   `json:"number,omitempty"`
	Array     []float64 `json:"array,omitempty"`
	Str       string    `json:"str,omitempty"`
	Bool      bool      `json:"bool,omitempty"`
	PulseExpr string    `json:"pulse_expr,omitempty"`
}

// ToWireValue converts a value.Value to its wire shape. A nil v (a
// Read-type Command carries no literal value) becomes Kind "none"
// rather than "unrepresentable", since it is a legitimate absence
// rather than an internal-only artifact crossing the wire.
func ToWireValue(v value.Value) WireValue {
	if v == nil {
		return WireValue{Kind: "none"}
	}
	switch t := v.(type) {
	case value.Number:
		return WireValue{Kind: "number", Number: float64(t)}
	case value.Array:
		return WireValue{Kind: "array", Array: append([]float64(nil), t...)}
	case value.Str:
		return WireValue{Kind: "str", Str: string(t)}
	case value.Bool:
		return WireValue{Kind: "bool", Bool: bool(t)}
	case value.PulseExpr:
		return WireValue{Kind: "pulse_expr", PulseExpr: string(t)}
	default:
		// PulseObject and CommandHandle are internal pipeline artifacts
		// (spec.md §4.4.1, §9) that never cross the wire themselves; a
		// caller that tries gets an explicit "unrepresentable" marker
		// rather than a silently empty value.
		return WireValue{Kind: "unrepresentable"}
	}
}

// ToValue converts a WireValue back to a value.Value.
func (w WireValue) ToValue() (value.Value, error) {
	switch w.Kind {
	case "none":
		return nil, nil
	case "number":
		return value.Number(w.Number), nil
	case "array":
		return value.Array(append([]float64(nil), w.Array...)), nil
	case "str":
		return value.Str(w.Str), nil
	case "bool":
		return value.Bool(w.Bool), nil
	case "pulse_expr":
		return value.PulseExpr(w.PulseExpr), nil
	default:
		return nil, fmt.Errorf("uapi: cannot decode wire value of kind %q", w.Kind)
	}
}

// WireValues converts a map of value.Value to wire form, for Command
// and GateOp argument maps.
func WireValues(in map[string]value.Value) map[string]WireValue {
	out := make(map[string]WireValue, len(in))
	for k, v := range in {
		out[k] = ToWireValue(v)
	}
	return out
}

// FromWireValues converts a map of WireValue back to value.Value.
func FromWireValues(in map[string]WireValue) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(in))
	for k, w := range in {
		v, err := w.ToValue()
		if err != nil {
			return nil, fmt.Errorf("uapi: key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// WireGateOp is the wire shape of interfaces.GateOp.
type WireGateOp struct {
	Op      string               `json:"op"`
	Targets []string             `json:"targets"`
	Args    map[string]WireValue `json:"args"`
}

// ToWireGateOp converts a GateOp to its wire shape.
func ToWireGateOp(g interfaces.GateOp) WireGateOp {
	return WireGateOp{Op: g.Op, Targets: append([]string(nil), g.Targets...), Args: WireValues(g.Args)}
}

// ToGateOp converts a WireGateOp back to a GateOp.
func (w WireGateOp) ToGateOp() (interfaces.GateOp, error) {
	args, err := FromWireValues(w.Args)
	if err != nil {
		return interfaces.GateOp{}, err
	}
	return interfaces.GateOp{Op: w.Op, Targets: append([]string(nil), w.Targets...), Args: args}, nil
}

// WireCommand is the wire shape of interfaces.Command.
type WireCommand struct {
	Type   string    `json:"type"`
	Target string    `json:"target"`
	Value  WireValue `json:"value"`
	Unit   string    `json:"unit,omitempty"`
}

// ToWireCommand converts a Command to its wire shape.
func ToWireCommand(c interfaces.Command) WireCommand {
	return WireCommand{Type: string(c.Type), Target: c.Target, Value: ToWireValue(c.Value), Unit: c.Unit}
}

// ToCommand converts a WireCommand back to a Command.
func (w WireCommand) ToCommand() (interfaces.Command, error) {
	v, err := w.Value.ToValue()
	if err != nil {
		return interfaces.Command{}, err
	}
	return interfaces.Command{Type: interfaces.CommandType(w.Type), Target: w.Target, Value: v, Unit: w.Unit}, nil
}

// WireCBit is the wire shape of interfaces.CBit.
type WireCBit struct {
	Source    string               `json:"source"`
	Frequency float64              `json:"frequency"`
	Params    map[string]WireValue `json:"params"`
}

// WireDataMap is the wire shape of interfaces.DataMap. JSON object keys
// must be strings, so CBits is keyed by the decimal classical-bit index
// instead of interfaces.DataMap's map[int]CBit.
type WireDataMap struct {
	CBits map[string]WireCBit `json:"cbits"`
	Arch  string              `json:"arch"`
}

// ToWireDataMap converts a DataMap to its wire shape.
func ToWireDataMap(d interfaces.DataMap) WireDataMap {
	out := WireDataMap{CBits: make(map[string]WireCBit, len(d.CBits)), Arch: d.Arch}
	for bit, cb := range d.CBits {
		out.CBits[fmt.Sprintf("%d", bit)] = WireCBit{Source: cb.Source, Frequency: cb.Frequency, Params: WireValues(cb.Params)}
	}
	return out
}

// WireStepDef is the wire shape of a named step/init/post command
// (spec.md §6 "step is an ordered map step-name->[action,argument]").
type WireStepDef struct {
	Name    string      `json:"name"`
	Command WireCommand `json:"command"`
}

// WireLoopAxis is the wire shape of one sweep axis (spec.md §6 "loop is
// an ordered map axis-name->list of (path,values,unit)").
type WireLoopAxis struct {
	Name   string      `json:"name"`
	Path   string      `json:"path"`
	Values []WireValue `json:"values"`
	Unit   string      `json:"unit,omitempty"`
}

// WireTaskSpec is the wire shape of a submitted task (spec.md §6). Steps
// are carried as an ordered slice rather than a Go map, since spec.md
// explicitly calls step/init/post and loop "ordered maps" — something
// JSON objects and Go maps cannot guarantee, but a slice can.
type WireTaskSpec struct {
	Name           string         `json:"name"`
	Priority       int            `json:"priority"`
	Backend        string         `json:"backend,omitempty"`
	Session        string         `json:"session,omitempty"`
	Shots          int            `json:"shots"`
	Signal         string         `json:"signal,omitempty"`
	AlignRight     bool           `json:"align_right,omitempty"`
	FillZero       bool           `json:"fill_zero,omitempty"`
	WaveformLength float64        `json:"waveform_length,omitempty"`
	Shape          []int          `json:"shape,omitempty"`
	Steps          []WireStepDef  `json:"steps,omitempty"`
	Init           []WireStepDef  `json:"init,omitempty"`
	Post           []WireStepDef  `json:"post,omitempty"`
	Circuit        []WireGateOp   `json:"circuit,omitempty"`
	Rules          []string       `json:"rules,omitempty"`
	Loop           []WireLoopAxis `json:"loop,omitempty"`
}
