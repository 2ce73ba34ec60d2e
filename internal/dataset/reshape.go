package dataset

import "fmt"

// Reshaped is a signal's array after the end-of-run reshape: Data is
// laid out in C order (last axis fastest) over Shape = axisLengths +
// per-point shape tail.
type Reshaped struct {
	Data  []complex128
	Shape []int
}

// Reshape implements spec.md §4.6's Reshape contract: lays out name's
// accumulated points (in completion order) onto a (axisLengths,
// ...tail) array, zero-filling any point beyond the last completed
// step (e.g. a task Canceled partway through its sweep).
func (d *Dataset) Reshape(name string, axisLengths []int) (Reshaped, error) {
	s, ok := d.signals[name]
	if !ok {
		return Reshaped{}, fmt.Errorf("dataset: unknown signal %q", name)
	}

	total := 1
	for _, n := range axisLengths {
		total *= n
	}
	tail := s.pointShape[0]

	data := make([]complex128, total*tail)
	n := len(s.points)
	if n > total {
		n = total // more points than the declared sweep shape: keep only the prefix that fits
	}
	for i := 0; i < n; i++ {
		copy(data[i*tail:(i+1)*tail], s.points[i])
	}

	shape := make([]int, 0, len(axisLengths)+1)
	shape = append(shape, axisLengths...)
	shape = append(shape, tail)
	return Reshaped{Data: data, Shape: shape}, nil
}

// Flatten returns r's underlying data in linear (pre-reshape) order —
// the inverse of Reshape's layout, since Reshape never reorders points,
// only attaches shape metadata (spec.md §8 property R3: "reshape(flat,
// shape) followed by flatten reproduces flat up to the completed
// prefix").
func Flatten(r Reshaped) []complex128 {
	return r.Data
}
