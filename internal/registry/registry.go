// Package registry implements the versioned, hierarchical key-value
// store described in spec.md §4.1: dotted-path addressing, an
// auto-create write path, and immutable per-task snapshots.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/qlab-core/qcore/internal/logging"
)

// Registry is a single-writer, concurrent-reader hierarchical store.
// Readers observe a consistent view because every mutation replaces the
// relevant sub-tree under the write lock rather than mutating in place
// under a read lock.
type Registry struct {
	mu      sync.RWMutex
	version uint64
	tree    map[string]any

	snapMu    sync.Mutex
	snapshots map[string]*Snapshot

	logger *logging.Logger
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		tree:      map[string]any{},
		snapshots: map[string]*Snapshot{},
		logger:    logging.Default(),
	}
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// Query returns the value at path, or def if the path does not resolve.
// A miss is a RegistryMiss in spec.md §7 terms: it is not an error here,
// just a logged warning, matching "Return default if provided / Logged
// warning".
func (r *Registry) Query(path string, def any) any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := lookup(r.tree, splitPath(path))
	if !ok {
		r.logger.Warnf("registry: miss on %q, using default", path)
		return def
	}
	return v
}

func lookup(tree map[string]any, segs []string) (any, bool) {
	cur := any(tree)
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Update sets path to value, auto-creating missing intermediate
// sub-trees on demand: a single walk from the root allocates an empty
// object for every missing parent segment (and replaces a leaf that
// sits where a sub-tree is needed), then sets the leaf (spec.md §4.1
// "the auto-create walk").
func (r *Registry) Update(path string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("registry: empty path")
	}
	autoCreateSet(r.tree, segs, v)
	r.version++
	return nil
}

// autoCreateSet walks segs from root, allocating any missing map node
// along the way, and sets the final segment to v.
func autoCreateSet(tree map[string]any, segs []string, v any) {
	cur := tree
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			// A leaf sits where a sub-tree is needed; replace it with an
			// empty object and re-apply, per the auto-create walk.
			m = map[string]any{}
			cur[seg] = m
		}
		cur = m
	}
	cur[segs[len(segs)-1]] = v
}

// Create inserts value at path. It behaves like Update; the distinction
// in spec.md §4.1 is at the RPC-surface level (create vs update as
// separate verbs), not in the auto-create semantics.
func (r *Registry) Create(path string, v any) error {
	return r.Update(path, v)
}

// Delete removes the value at path, if present.
func (r *Registry) Delete(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	segs := splitPath(path)
	cur := r.tree
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			return nil
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil
		}
		cur = m
	}
	delete(cur, segs[len(segs)-1])
	r.version++
	return nil
}

// Snapshot returns an immutable view of the Registry. If tid is
// non-empty and a snapshot was already taken for it, the same Snapshot
// is returned every time (spec.md invariant 3: "snapshot(tid) returns
// the same contents before and after the task runs"). Passing an empty
// tid always takes a fresh, uncached snapshot.
func (r *Registry) Snapshot(tid string) *Snapshot {
	if tid != "" {
		r.snapMu.Lock()
		if s, ok := r.snapshots[tid]; ok {
			r.snapMu.Unlock()
			return s
		}
		r.snapMu.Unlock()
	}

	r.mu.RLock()
	data := deepCopy(r.tree).(map[string]any)
	version := r.version
	r.mu.RUnlock()

	s := &Snapshot{Version: version, TaskID: tid, data: data}

	if tid != "" {
		r.snapMu.Lock()
		if existing, ok := r.snapshots[tid]; ok {
			s = existing // another goroutine won the race
		} else {
			r.snapshots[tid] = s
		}
		r.snapMu.Unlock()
	}
	return s
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopy(vv)
		}
		return out
	default:
		return v
	}
}

// Checkpoint returns a diffable textual dump of the snapshot associated
// with tid, content-addressed by tid (spec.md §6 "Registry checkpoint
// format"). It does not touch the filesystem itself — callers (the Task
// Runtime on Archived, or cmd/qcorectl checkpoint) decide where the text
// is written; the external persistent store owns that concern.
func (r *Registry) Checkpoint(tid string) (string, error) {
	s := r.Snapshot(tid)
	if s == nil {
		return "", fmt.Errorf("registry: no snapshot for task %q", tid)
	}
	return s.Dump(), nil
}
