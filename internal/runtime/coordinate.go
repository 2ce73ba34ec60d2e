package runtime

// Coordinate decomposes a linear sweep index sid into one index per
// declared axis, row-major with the last axis fastest (spec.md §4.6
// step 1: "Build cartesian-product coordinate for sid"). A zero or
// negative axis length is treated as 1 (a fixed, non-swept axis).
func Coordinate(sid int, axisLengths []int) []int {
	coord := make([]int, len(axisLengths))
	rem := sid
	for i := len(axisLengths) - 1; i >= 0; i-- {
		length := axisLengths[i]
		if length <= 0 {
			length = 1
		}
		coord[i] = rem % length
		rem /= length
	}
	return coord
}

// Total returns the product of axisLengths (1 for an empty sweep), the
// number of sids a task's running loop visits.
func Total(axisLengths []int) int {
	total := 1
	for _, n := range axisLengths {
		if n <= 0 {
			n = 1
		}
		total *= n
	}
	return total
}
