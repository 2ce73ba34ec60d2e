// Package dataset implements the Task Runtime's per-signal accumulator
// and the end-of-run Reshape contract (spec.md §4.6 "Reshape contract",
// §9 "Persisted dataset"): signals are appended to as an append-only
// linear array during the run, then reshaped to the sweep's axis shape
// at Finished, zero-filling any point beyond the last completed step.
package dataset

import "fmt"

// Dataset accumulates one or more named signals over the course of one
// task run.
type Dataset struct {
	signals map[string]*signal
}

type signal struct {
	points     [][]complex128 // one entry per completed sweep point
	pointShape []int          // per-point shape tail, fixed after the first Append
}

// New returns an empty Dataset.
func New() *Dataset {
	return &Dataset{signals: map[string]*signal{}}
}

// Append records one sweep point's raw result for name (spec.md §4.6
// "Task Runtime... reshapes via datamap"). point's length is the
// signal's per-point shape; it must be consistent across calls for the
// same signal.
func (d *Dataset) Append(name string, point []complex128) error {
	s, ok := d.signals[name]
	if !ok {
		s = &signal{pointShape: []int{len(point)}}
		d.signals[name] = s
	} else if len(point) != s.pointShape[0] {
		return fmt.Errorf("dataset: signal %q point shape changed from %d to %d", name, s.pointShape[0], len(point))
	}

	buf := getPointBuffer(len(point))
	copy(buf, point)
	s.points = append(s.points, buf)
	return nil
}

// Count returns the number of points recorded so far for name.
func (d *Dataset) Count(name string) int {
	s, ok := d.signals[name]
	if !ok {
		return 0
	}
	return len(s.points)
}

// Points returns the points recorded for name since index start
// (inclusive), for the Task Server's incremental fetch operation
// (spec.md §4.7 "fetch returns incrementally accumulated data since
// start"). An unknown signal or an out-of-range start yields nil.
func (d *Dataset) Points(name string, start int) [][]complex128 {
	s, ok := d.signals[name]
	if !ok || start >= len(s.points) {
		return nil
	}
	if start < 0 {
		start = 0
	}
	return s.points[start:]
}

// Signals lists the names of every signal with at least one recorded
// point.
func (d *Dataset) Signals() []string {
	out := make([]string, 0, len(d.signals))
	for name := range d.signals {
		out = append(out, name)
	}
	return out
}

// Release returns every signal's pooled point buffers. Call once the
// Dataset's Reshaped output has been captured and the raw accumulator
// is no longer needed.
func (d *Dataset) Release() {
	for _, s := range d.signals {
		for _, buf := range s.points {
			putPointBuffer(buf)
		}
		s.points = nil
	}
}
