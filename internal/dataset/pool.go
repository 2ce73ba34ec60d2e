package dataset

import "sync"

// pointPool provides pooled []complex128 point buffers, sized in
// power-of-2 buckets, to avoid hot-path allocations when a shot's
// per-point result is larger than a few samples (e.g. a raw trace
// signal rather than a single IQ value). Grounded on the teacher's
// size-bucketed sync.Pool in internal/queue/pool.go, generalized from
// byte buffers to complex128 point buffers.
const (
	bucket64   = 64
	bucket1024 = 1024
	bucket8192 = 8192
)

var pointPool = struct {
	p64   sync.Pool
	p1024 sync.Pool
	p8192 sync.Pool
}{
	p64:   sync.Pool{New: func() any { b := make([]complex128, bucket64); return &b }},
	p1024: sync.Pool{New: func() any { b := make([]complex128, bucket1024); return &b }},
	p8192: sync.Pool{New: func() any { b := make([]complex128, bucket8192); return &b }},
}

// getPointBuffer returns a pooled buffer of at least n complex128s,
// falling back to a direct allocation above the largest bucket.
func getPointBuffer(n int) []complex128 {
	switch {
	case n <= bucket64:
		return (*pointPool.p64.Get().(*[]complex128))[:n]
	case n <= bucket1024:
		return (*pointPool.p1024.Get().(*[]complex128))[:n]
	case n <= bucket8192:
		return (*pointPool.p8192.Get().(*[]complex128))[:n]
	default:
		return make([]complex128, n)
	}
}

// putPointBuffer returns buf to its bucket pool, if it came from one.
func putPointBuffer(buf []complex128) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case bucket64:
		pointPool.p64.Put(&buf)
	case bucket1024:
		pointPool.p1024.Put(&buf)
	case bucket8192:
		pointPool.p8192.Put(&buf)
	}
}
