package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Snapshot is an immutable mapping Path->Value captured at one Registry
// version. All compilation for a task uses one Snapshot; it is never
// mutated after creation (spec.md §3).
type Snapshot struct {
	Version uint64
	TaskID  string
	data    map[string]any
}

// Query resolves path against the frozen snapshot, returning def on a
// miss.
func (s *Snapshot) Query(path string, def any) any {
	v, ok := lookup(s.data, splitPath(path))
	if !ok {
		return def
	}
	return v
}

// Flatten returns every leaf in the snapshot as dotted-path -> value.
// The result is a map and carries no order; Dump sorts its paths.
func (s *Snapshot) Flatten() map[string]any {
	out := map[string]any{}
	flattenInto(s.data, "", out)
	return out
}

func flattenInto(node map[string]any, prefix string, out map[string]any) {
	for k, v := range node {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok {
			flattenInto(m, path, out)
			continue
		}
		out[path] = v
	}
}

// Dump renders a diffable textual form: one "path = value" line per
// leaf, sorted by path so two dumps of equal content are byte-identical
// regardless of map iteration order (spec.md §6 "Registry checkpoint
// format": "a diffable textual dump of the snapshot, content-addressed
// by tid").
func (s *Snapshot) Dump() string {
	flat := s.Flatten()
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	fmt.Fprintf(&b, "# snapshot tid=%s version=%d\n", s.TaskID, s.Version)
	for _, p := range paths {
		fmt.Fprintf(&b, "%s = %v\n", p, flat[p])
	}
	return b.String()
}
