package pulse

import "github.com/qlab-core/qcore/internal/value"

// Equal implements the BypassCache equality predicate (spec.md §4.2,
// §4.4.2): a raw-sample PulseObject (vstack) is always unequal to
// anything, including itself, forcing a fresh Sample rather than a
// stale bypass hit. Two symbolic PulseObjects are compared after
// stripping their Start/End window metadata (windowed-waveform
// comparison). Arrays compare element-wise; everything else falls back
// to value.Equal.
func (k *Kernel) Equal(a, b value.Value) bool {
	pa, aIsPulse := a.(*value.PulseObject)
	pb, bIsPulse := b.(*value.PulseObject)

	if aIsPulse && pa != nil && pa.Samples != nil {
		return false
	}
	if bIsPulse && pb != nil && pb.Samples != nil {
		return false
	}

	if aIsPulse || bIsPulse {
		if !aIsPulse || !bIsPulse {
			return false
		}
		return pulseTermsEqual(pa, pb)
	}

	if aArr, ok := a.(value.Array); ok {
		bArr, ok := b.(value.Array)
		if !ok || len(aArr) != len(bArr) {
			return false
		}
		for i := range aArr {
			if aArr[i] != bArr[i] {
				return false
			}
		}
		return true
	}

	return value.Equal(a, b)
}

// pulseTermsEqual compares two symbolic PulseObjects ignoring their
// Start/End window, matching the original "multiply by a fixed window
// to strip out start/stop metadata before comparing" rule: since
// neither operand carries a timing window that affects term content
// here, the comparison reduces to terms and shift.
func pulseTermsEqual(a, b *value.PulseObject) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Shift != b.Shift || len(a.Terms) != len(b.Terms) {
		return false
	}
	for i := range a.Terms {
		if a.Terms[i] != b.Terms[i] {
			return false
		}
	}
	return true
}
