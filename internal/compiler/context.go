// Package compiler implements the Compiler Adapter (spec.md §4.3): it
// wraps the external gate-to-pulse circuit compiler, splitting SET/GET
// pseudo-ops out of a circuit into direct WRITE/READ commands and
// clearing the per-task gate cache before every compile, then merges
// the external compiler's output into the step's growing instruction
// accumulator (grounded on the teacher's injected-collaborator pattern
// in backend.go, generalized from one Backend to one Compiler per
// task).
package compiler

import (
	"sync"

	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/registry"
	"github.com/qlab-core/qcore/internal/value"
)

// Context is the per-task compilation context threaded explicitly
// through Compile and the Assembler (spec.md §9: "Global mutable
// compiler context maps to one Context object per task"). It
// implements interfaces.CompileContext.
type Context struct {
	Snapshot *registry.Snapshot
	Arch     string

	Initial map[string][]RestoreEntry // channel restore list, sid==0 only
	Bypass  map[string]BypassEntry
	Keys    []string

	mu        sync.Mutex
	gateCache map[string]value.Value
}

// RestoreEntry records one channel's pre-task value so it can be
// restored once the task completes (spec.md §4.4 "save initial value to
// restore").
type RestoreEntry struct {
	Type   interfaces.CommandType
	Target string
	Value  value.Value
	Unit   string
}

// BypassEntry is one BypassCache slot (spec.md §4.4.2): the last value
// written to target, and the original logical target name it came
// from.
type BypassEntry struct {
	Value  value.Value
	Target string
}

// NewContext freezes a new per-task Context over snapshot (spec.md §4.3
// "initialize(snapshot, arch, opts)→Context").
func NewContext(snapshot *registry.Snapshot, arch string) *Context {
	return &Context{
		Snapshot:  snapshot,
		Arch:      arch,
		Initial:   map[string][]RestoreEntry{"restore": nil},
		Bypass:    map[string]BypassEntry{},
		gateCache: map[string]value.Value{},
	}
}

// Query implements interfaces.CompileContext by delegating to the
// frozen snapshot.
func (c *Context) Query(path string, def value.Value) value.Value {
	v := c.Snapshot.Query(path, def)
	if vv, ok := v.(value.Value); ok {
		return vv
	}
	return def
}

// QueryRaw resolves path to its raw structural registry value (a
// subtree or scalar, not a typed value.Value) — used by the Assembler
// for context/mapping lookups, which are configuration nodes rather
// than command payloads. Implements assemble.RawQuerier.
func (c *Context) QueryRaw(path string, def any) any {
	return c.Snapshot.Query(path, def)
}

// ClearCache clears the per-snapshot gate cache (spec.md §4.3 "Clears
// per-snapshot gate caches each call", grounded on
// `ctx._getGateConfig.cache_clear()` in the original assembler).
func (c *Context) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gateCache = map[string]value.Value{}
}

// CacheGate memoizes a resolved gate configuration for the life of one
// Compile call's snapshot, cleared by the next ClearCache.
func (c *Context) CacheGate(key string, compute func() value.Value) value.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.gateCache[key]; ok {
		return v
	}
	v := compute()
	c.gateCache[key] = v
	return v
}
