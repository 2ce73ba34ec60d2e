package uapi

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/runtime"
	"github.com/qlab-core/qcore/internal/value"
)

// MarshalTaskSpec encodes a runtime.TaskSpec as the JSON wire format a
// cmd/qcorectl submit carries over the CLI/RPC surface (spec.md §6).
func MarshalTaskSpec(spec runtime.TaskSpec) ([]byte, error) {
	return json.Marshal(toWireTaskSpec(spec))
}

// UnmarshalTaskSpec decodes the JSON wire format back into a
// runtime.TaskSpec.
func UnmarshalTaskSpec(data []byte) (runtime.TaskSpec, error) {
	var w WireTaskSpec
	if err := json.Unmarshal(data, &w); err != nil {
		return runtime.TaskSpec{}, fmt.Errorf("uapi: decode task spec: %w", err)
	}
	return w.toTaskSpec()
}

func toWireStepDefs(steps []runtime.StepDef) []WireStepDef {
	out := make([]WireStepDef, len(steps))
	for i, s := range steps {
		out[i] = WireStepDef{Name: s.Name, Command: ToWireCommand(s.Command)}
	}
	return out
}

func (w WireTaskSpec) toStepDefs(steps []WireStepDef) ([]runtime.StepDef, error) {
	out := make([]runtime.StepDef, len(steps))
	for i, s := range steps {
		cmd, err := s.Command.ToCommand()
		if err != nil {
			return nil, fmt.Errorf("uapi: step %q: %w", s.Name, err)
		}
		out[i] = runtime.StepDef{Name: s.Name, Command: cmd}
	}
	return out, nil
}

func toWireTaskSpec(s runtime.TaskSpec) WireTaskSpec {
	circuit := make([]WireGateOp, len(s.Circuit))
	for i, g := range s.Circuit {
		circuit[i] = ToWireGateOp(g)
	}
	loop := make([]WireLoopAxis, len(s.Loop))
	for i, ax := range s.Loop {
		values := make([]WireValue, len(ax.Values))
		for j, v := range ax.Values {
			values[j] = ToWireValue(v)
		}
		loop[i] = WireLoopAxis{Name: ax.Name, Path: ax.Path, Values: values, Unit: ax.Unit}
	}
	return WireTaskSpec{
		Name:           s.Name,
		Priority:       s.Priority,
		Backend:        s.Backend,
		Session:        s.Session,
		Shots:          s.Shots,
		Signal:         s.Signal,
		AlignRight:     s.AlignRight,
		FillZero:       s.FillZero,
		WaveformLength: s.WaveformLength,
		Shape:          append([]int(nil), s.Shape...),
		Steps:          toWireStepDefs(s.Steps),
		Init:           toWireStepDefs(s.Init),
		Post:           toWireStepDefs(s.Post),
		Circuit:        circuit,
		Rules:          append([]string(nil), s.Rules...),
		Loop:           loop,
	}
}

func (w WireTaskSpec) toTaskSpec() (runtime.TaskSpec, error) {
	steps, err := w.toStepDefs(w.Steps)
	if err != nil {
		return runtime.TaskSpec{}, err
	}
	init, err := w.toStepDefs(w.Init)
	if err != nil {
		return runtime.TaskSpec{}, err
	}
	post, err := w.toStepDefs(w.Post)
	if err != nil {
		return runtime.TaskSpec{}, err
	}

	circuit := make([]interfaces.GateOp, len(w.Circuit))
	for i, g := range w.Circuit {
		op, err := g.ToGateOp()
		if err != nil {
			return runtime.TaskSpec{}, fmt.Errorf("uapi: circuit[%d]: %w", i, err)
		}
		circuit[i] = op
	}

	loop := make([]runtime.LoopAxis, len(w.Loop))
	for i, ax := range w.Loop {
		vs := make([]value.Value, len(ax.Values))
		for j, wv := range ax.Values {
			v, err := wv.ToValue()
			if err != nil {
				return runtime.TaskSpec{}, fmt.Errorf("uapi: loop axis %q value %d: %w", ax.Name, j, err)
			}
			vs[j] = v
		}
		loop[i] = runtime.LoopAxis{Name: ax.Name, Path: ax.Path, Values: vs, Unit: ax.Unit}
	}

	return runtime.TaskSpec{
		Name:           w.Name,
		Priority:       w.Priority,
		Backend:        w.Backend,
		Session:        w.Session,
		Shots:          w.Shots,
		Signal:         w.Signal,
		AlignRight:     w.AlignRight,
		FillZero:       w.FillZero,
		WaveformLength: w.WaveformLength,
		Shape:          append([]int(nil), w.Shape...),
		Steps:          steps,
		Init:           init,
		Post:           post,
		Circuit:        circuit,
		Rules:          append([]string(nil), w.Rules...),
		Loop:           loop,
	}, nil
}

// pointsHeader is the fixed-width header written before a signal's
// point data: format version, point count, and samples-per-point
// (every point in a signal is the same length, spec.md §4.6 "Reshape
// contract"). Mirrors the teacher's fixed-offset kernel struct layout,
// generalized from device-control fields to dataset geometry.
type pointsHeader struct {
	Version   uint32
	NumPoints uint32
	Width     uint32
}

// MarshalPoints encodes a signal's accumulated points as fixed-width
// little-endian float64 pairs (spec.md §6: the persisted dataset
// format needs a binary encoding JSON cannot express natively, since a
// complex128 is not a JSON type). Every point must have the same
// length; MarshalPoints returns an error otherwise.
func MarshalPoints(points [][]complex128) ([]byte, error) {
	width := 0
	if len(points) > 0 {
		width = len(points[0])
	}
	for i, p := range points {
		if len(p) != width {
			return nil, fmt.Errorf("uapi: point %d has width %d, want %d", i, len(p), width)
		}
	}

	buf := &bytes.Buffer{}
	header := pointsHeader{Version: WireFormatVersion, NumPoints: uint32(len(points)), Width: uint32(width)}
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	for _, p := range points {
		for _, sample := range p {
			if err := binary.Write(buf, binary.LittleEndian, real(sample)); err != nil {
				return nil, err
			}
			if err := binary.Write(buf, binary.LittleEndian, imag(sample)); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalPoints decodes bytes written by MarshalPoints.
func UnmarshalPoints(data []byte) ([][]complex128, error) {
	r := bytes.NewReader(data)
	var header pointsHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("uapi: decode points header: %w", err)
	}
	if header.Version != WireFormatVersion {
		return nil, fmt.Errorf("uapi: unsupported points format version %d", header.Version)
	}

	points := make([][]complex128, header.NumPoints)
	for i := range points {
		point := make([]complex128, header.Width)
		for j := range point {
			var re, im float64
			if err := binary.Read(r, binary.LittleEndian, &re); err != nil {
				return nil, fmt.Errorf("uapi: decode point %d sample %d: %w", i, j, err)
			}
			if err := binary.Read(r, binary.LittleEndian, &im); err != nil {
				return nil, fmt.Errorf("uapi: decode point %d sample %d: %w", i, j, err)
			}
			point[j] = complex(re, im)
		}
		points[i] = point
	}
	return points, nil
}
