package runtime

import (
	"testing"

	"github.com/qlab-core/qcore/internal/value"
	"github.com/stretchr/testify/assert"
)

func TestNewTaskStartsPending(t *testing.T) {
	task := NewTask("t-1", TaskSpec{})
	assert.Equal(t, Pending, task.State())
	assert.Equal(t, -1, task.FailedAtSid)
}

func TestTerminalStateIsFinal(t *testing.T) {
	task := NewTask("t-1", TaskSpec{})
	require := assert.New(t)
	require.True(task.setState(Running))
	require.True(task.setState(Failed))
	require.False(task.setState(Running), "a Failed task must never transition back to Running")
	require.Equal(Failed, task.State())
}

func TestFinishedMayTransitionToArchived(t *testing.T) {
	task := NewTask("t-1", TaskSpec{})
	task.setState(Running)
	task.setState(Finished)
	assert.True(t, task.setState(Archived))
	assert.Equal(t, Archived, task.State())
}

func TestArchivedIsAlsoFinal(t *testing.T) {
	task := NewTask("t-1", TaskSpec{})
	task.setState(Running)
	task.setState(Finished)
	task.setState(Archived)
	assert.False(t, task.setState(Running))
}

func TestCancelIsObservedCooperatively(t *testing.T) {
	task := NewTask("t-1", TaskSpec{})
	assert.False(t, task.cancelRequested())
	task.Cancel()
	assert.True(t, task.cancelRequested())
}

func TestAxisLengthsAndTotalSids(t *testing.T) {
	spec := TaskSpec{Loop: []LoopAxis{
		{Name: "amp", Values: []value.Value{value.Number(0), value.Number(1)}},
		{Name: "freq", Values: []value.Value{value.Number(5e9), value.Number(6e9), value.Number(7e9)}},
	}}
	assert.Equal(t, []int{2, 3}, spec.AxisLengths())
	assert.Equal(t, 6, spec.TotalSids())
}
