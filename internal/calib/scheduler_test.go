package calib

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/qlab-core/qcore/internal/registry"
	"github.com/stretchr/testify/assert"
)

// countingExecutor fails every "Ramsey" call and succeeds everything
// else, modeling the spec.md §8 S5 scenario: "Stub Ramsey to fail for
// target Q1 then succeed after PowerRabi is run".
type countingExecutor struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{calls: map[string]int{}}
}

func (e *countingExecutor) Execute(method string, targets []string) (map[string]float64, map[string]string) {
	e.mu.Lock()
	e.calls[method]++
	e.mu.Unlock()

	fitted := map[string]float64{}
	status := map[string]string{}
	for _, t := range targets {
		fitted[t] = 1.0
		if method == "Ramsey" {
			status[t] = "Failed"
		} else {
			status[t] = "OK"
		}
	}
	return fitted, status
}

func (e *countingExecutor) count(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

type alwaysFailExecutor struct {
	mu sync.Mutex
	n  int
}

func (e *alwaysFailExecutor) Execute(method string, targets []string) (map[string]float64, map[string]string) {
	e.mu.Lock()
	e.n++
	e.mu.Unlock()
	status := map[string]string{}
	for _, t := range targets {
		status[t] = "Failed"
	}
	return map[string]float64{}, status
}

func (e *alwaysFailExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

func buildGraph() *Graph {
	g := NewGraph()
	g.AddEdge("S21", "Spectrum")
	g.AddEdge("Spectrum", "PowerRabi")
	g.AddEdge("PowerRabi", "Ramsey")
	return g
}

func TestGraphParentsAndChildren(t *testing.T) {
	g := buildGraph()
	assert.Equal(t, []string{"PowerRabi"}, g.Parents("Ramsey"))
	assert.Equal(t, []string{"Ramsey"}, g.Children("PowerRabi"))
	assert.Empty(t, g.Parents("S21"))
	assert.Equal(t, []string{"S21", "Spectrum", "PowerRabi", "Ramsey"}, g.Nodes())
}

func TestTasksForGroupsCoversEveryTargetOnce(t *testing.T) {
	s := &Scheduler{
		Groups:     map[string][]string{"0": {"Q0", "Q1"}, "1": {"Q5", "Q8"}},
		GroupOrder: []string{"0", "1"},
	}
	tasks := s.tasksForGroups("Ramsey")
	assert.Len(t, tasks, 4)
	for _, target := range []string{"Q0", "Q1", "Q5", "Q8"} {
		assert.Equal(t, "Ramsey", tasks[target])
	}
}

func TestCalibrationRecoversByWalkingToParent(t *testing.T) {
	exec := newCountingExecutor()
	reg := registry.New()
	graph := buildGraph()
	s := New(graph, reg, exec, map[string][]string{"0": {"Q1"}}, []string{"0"}, "Ramsey", time.Hour, nil)

	s.calibrate(FailureSet{"Q1": "Ramsey"})

	assert.Equal(t, 1, exec.count("Ramsey"))
	assert.Equal(t, 1, exec.count("PowerRabi"))

	rec := loadStatus(reg, "Q1", "PowerRabi")
	assert.Equal(t, "OK", rec.Status)
}

func TestCalibrationGivesUpWithNoParent(t *testing.T) {
	reg := registry.New()
	graph := NewGraph()
	graph.AddEdge("A", "B")

	exec := &alwaysFailExecutor{}
	s := New(graph, reg, exec, nil, nil, "B", time.Hour, nil)

	s.calibrate(FailureSet{"Q9": "A"})
	assert.Equal(t, 1, exec.count(), "the walk must stop once a method has no parent left to retry")
}

func TestCheckSkipsWhenCalibratorHoldsExamLock(t *testing.T) {
	exec := newCountingExecutor()
	reg := registry.New()
	graph := buildGraph()
	s := New(graph, reg, exec, map[string][]string{"0": {"Q1"}}, []string{"0"}, "Ramsey", time.Hour, nil)

	s.examMu.Lock()
	s.runCheck()
	s.examMu.Unlock()

	assert.Equal(t, 0, exec.count("Ramsey"), "a check must never run while the calibrator holds a failure set")
}

func TestSchedulerEndToEndRecoversViaStart(t *testing.T) {
	exec := newCountingExecutor()
	reg := registry.New()
	graph := buildGraph()
	s := New(graph, reg, exec, map[string][]string{"0": {"Q1"}}, []string{"0"}, "Ramsey", 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if loadStatus(reg, "Q1", "PowerRabi").Status == "OK" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, "OK", loadStatus(reg, "Q1", "PowerRabi").Status)
	assert.Equal(t, 1, exec.count("PowerRabi"), "PowerRabi ran exactly once")
}
