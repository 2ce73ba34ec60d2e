package assemble

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/qlab-core/qcore/internal/value"
)

// SharedMemory is a refcounted named-segment registry implementing the
// shared-memory data handoff (spec.md §9 "Shared-memory data handoff",
// grounded on `dumpv` in `quark/proxy.py`): large array command values
// are moved to a named segment and replaced with a CommandHandle
// descriptor so repeated dispatch of the same array does not
// re-serialize it over the wire.
//
// No shared-memory-segment or mmap library ships in the retrieval
// pack, and the actual cross-process transport of named segments is
// outside this repo's scope (the spec's driver/transport layer talks
// to real instruments, not a second qcore process) — this type only
// owns the refcount bookkeeping side of the handoff, a plain
// map+mutex, which is the idiomatic minimal structure for it
// (standard-library justification, see DESIGN.md).
type SharedMemory struct {
	mu      sync.Mutex
	refs    map[string]int
	counter uint64
}

// NewSharedMemory returns an empty segment registry.
func NewSharedMemory() *SharedMemory {
	return &SharedMemory{refs: map[string]int{}}
}

// MinArrayLen is the smallest array size the handoff bothers to move
// out of line; shorter arrays are cheaper to copy than to hand off.
const MinArrayLen = 4096

// Dump attempts to move v out of line, returning the replacement
// CommandHandle value and true if it did. Non-array values, or arrays
// shorter than MinArrayLen, are left untouched.
func (s *SharedMemory) Dump(v value.Value) (value.Value, bool) {
	arr, ok := v.(value.Array)
	if !ok || len(arr) < MinArrayLen {
		return v, false
	}

	id := atomic.AddUint64(&s.counter, 1)
	name := fmt.Sprintf("qcore-shm-%d", id)

	s.mu.Lock()
	s.refs[name] = 1
	s.mu.Unlock()

	return value.CommandHandle{Name: name, Shape: []int{len(arr)}, Dtype: "float64"}, true
}

// Release decrements name's refcount, freeing the slot once it reaches
// zero. Releasing an unknown name is a no-op.
func (s *SharedMemory) Release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.refs[name]; ok {
		if n <= 1 {
			delete(s.refs, name)
		} else {
			s.refs[name] = n - 1
		}
	}
}

// Retain increments name's refcount, e.g. when a second command hands
// off a reference to the same already-shared segment.
func (s *SharedMemory) Retain(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refs[name]; ok {
		s.refs[name]++
	}
}

// Active reports whether name still has outstanding references.
func (s *SharedMemory) Active(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refs[name]
	return ok
}
