package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateAutoCreatesIntermediateSubtrees(t *testing.T) {
	r := New()

	err := r.Update("gate.R.Q1.params.frequency", 4.5e9)
	require.NoError(t, err)

	got := r.Query("gate.R.Q1.params.frequency", nil)
	assert.Equal(t, 4.5e9, got)

	// Re-applying through a different leaf under the same auto-created
	// subtree must not disturb the first leaf.
	require.NoError(t, r.Update("gate.R.Q1.params.amp", 0.3))
	assert.Equal(t, 4.5e9, r.Query("gate.R.Q1.params.frequency", nil))
	assert.Equal(t, 0.3, r.Query("gate.R.Q1.params.amp", nil))
}

func TestUpdateReplacesLeafWithSubtreeWhenNeeded(t *testing.T) {
	r := New()
	require.NoError(t, r.Update("dev.awg", "placeholder"))

	// dev.awg was a leaf; writing beneath it must retry with an empty
	// object rather than error.
	require.NoError(t, r.Update("dev.awg.srate", 1e9))
	assert.Equal(t, 1e9, r.Query("dev.awg.srate", nil))
}

func TestQueryMissReturnsDefault(t *testing.T) {
	r := New()
	assert.Equal(t, "fallback", r.Query("no.such.path", "fallback"))
}

func TestDelete(t *testing.T) {
	r := New()
	require.NoError(t, r.Update("a.b.c", 1))
	require.NoError(t, r.Delete("a.b.c"))
	assert.Nil(t, r.Query("a.b.c", nil))
}

func TestSnapshotIsImmutableAndCached(t *testing.T) {
	r := New()
	require.NoError(t, r.Update("gate.R.Q0.params.frequency", 5.0e9))

	snap := r.Snapshot("T1")
	require.NoError(t, r.Update("gate.R.Q0.params.frequency", 9.9e9))

	// Invariant 3: snapshot(tid) returns the same contents before and
	// after the task runs; subsequent updates do not retroactively alter
	// it.
	assert.Equal(t, 5.0e9, snap.Query("gate.R.Q0.params.frequency", nil))

	again := r.Snapshot("T1")
	assert.Same(t, snap, again)

	// Live registry reflects the later write.
	assert.Equal(t, 9.9e9, r.Query("gate.R.Q0.params.frequency", nil))
}

func TestSnapshotWithoutTidIsFreshEveryTime(t *testing.T) {
	r := New()
	require.NoError(t, r.Update("a", 1))
	s1 := r.Snapshot("")
	require.NoError(t, r.Update("a", 2))
	s2 := r.Snapshot("")

	assert.Equal(t, 1, s1.Query("a", nil))
	assert.Equal(t, 2, s2.Query("a", nil))
}

func TestSnapshotDumpIsSortedAndDeterministic(t *testing.T) {
	r := New()
	require.NoError(t, r.Update("z.last", 1))
	require.NoError(t, r.Update("a.first", 2))

	dump := r.Snapshot("T2")
	text := dump.Dump()
	assert.True(t, strings.Index(text, "a.first") < strings.Index(text, "z.last"))
}

func TestCheckpointMatchesSnapshotDump(t *testing.T) {
	r := New()
	require.NoError(t, r.Update("gate.R.Q0.params.frequency", 5.0e9))
	r.Snapshot("T3")

	text, err := r.Checkpoint("T3")
	require.NoError(t, err)
	assert.Contains(t, text, "gate.R.Q0.params.frequency = 5e+09")
}
