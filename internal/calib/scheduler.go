package calib

import (
	"context"
	"sync"
	"time"

	"github.com/qlab-core/qcore/internal/constants"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/registry"
)

// Executor runs one calibration method against a set of targets,
// returning fitted values per target and an OK/Failed status per
// target (spec.md §4.8; grounded on the original's
// `execute(method, target)` — an external collaborator, since the
// concrete calibration routines themselves are a Non-goal).
type Executor interface {
	Execute(method string, targets []string) (fitted map[string]float64, status map[string]string)
}

// FailureSet is the Checker->Calibrator handoff unit: target->method
// for every method that failed this round (spec.md §4.8 "hands the set
// of failures to the Calibrator as {target -> method}").
type FailureSet map[string]string

// Scheduler runs the Checker and Calibrator loops (spec.md §4.8, §5).
type Scheduler struct {
	Graph    *Graph
	Registry *registry.Registry
	Executor Executor
	Observer interfaces.Observer
	Logger   *logging.Logger

	// Groups maps group-id -> chip targets; GroupOrder preserves
	// insertion order for deterministic iteration (spec.md §4.8
	// "methods at the same DAG level are executed in node insertion
	// order").
	Groups     map[string][]string
	GroupOrder []string

	CheckMethod string
	CheckPeriod time.Duration

	work     chan struct{}
	failures chan FailureSet

	// examMu is held by the Calibrator for the full duration it holds a
	// failure set (spec.md §4.8 "The Checker never runs while the
	// Calibrator holds a failure set, to avoid dueling writers to the
	// Registry").
	examMu sync.Mutex
}

// New wires a Scheduler. CheckPeriod defaults to
// constants.DefaultCheckPeriod when zero.
func New(graph *Graph, reg *registry.Registry, exec Executor, groups map[string][]string, groupOrder []string, checkMethod string, checkPeriod time.Duration, obs interfaces.Observer) *Scheduler {
	if checkPeriod <= 0 {
		checkPeriod = constants.DefaultCheckPeriod
	}
	return &Scheduler{
		Graph:       graph,
		Registry:    reg,
		Executor:    exec,
		Observer:    obs,
		Logger:      logging.Default(),
		Groups:      groups,
		GroupOrder:  groupOrder,
		CheckMethod: checkMethod,
		CheckPeriod: checkPeriod,
		work:        make(chan struct{}, 1),
		failures:    make(chan FailureSet, constants.DefaultQueueCapacity),
	}
}

// Start launches the timer, Checker and Calibrator goroutines. They
// run until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.timerLoop(ctx)
	go s.checkerLoop(ctx)
	go s.calibratorLoop(ctx)
}

// timerLoop only enqueues work (spec.md §5 "a periodic timer fires the
// Checker... it only enqueues work, never performs it").
func (s *Scheduler) timerLoop(ctx context.Context) {
	ticker := time.NewTicker(s.CheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case s.work <- struct{}{}:
			default:
				// a check is already queued; this tick coalesces into it.
			}
		}
	}
}

// checkerLoop performs the check the timer only enqueued.
func (s *Scheduler) checkerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.work:
			s.runCheck()
		}
	}
}

// RunCheckNow executes one check round immediately, for callers that
// do not want to wait for the next timer tick (e.g. tests, or an
// explicit CLI "calibrate now" verb).
func (s *Scheduler) RunCheckNow() {
	s.runCheck()
}

// runCheck executes CheckMethod against every group, in GroupOrder,
// and enqueues any failures to the Calibrator (spec.md invariant 6:
// "for any checker tick, every target in every group appears in
// exactly one check invocation"). It skips entirely if the Calibrator
// currently holds a failure set, per spec.md §4.8's mutual-exclusion
// rule, rather than blocking the timer goroutine.
func (s *Scheduler) runCheck() {
	if !s.examMu.TryLock() {
		s.Logger.Warnf("calib: skipping check tick, calibrator holds a failure set")
		return
	}
	defer s.examMu.Unlock()

	failed := s.execute(s.tasksForGroups(s.CheckMethod))
	if len(failed) == 0 {
		return
	}
	select {
	case s.failures <- failed:
	default:
		s.Logger.Errorf("calib: failure queue full, dropping round for method %s", s.CheckMethod)
	}
}

// tasksForGroups builds one target->method task map covering every
// target across every group, in GroupOrder.
func (s *Scheduler) tasksForGroups(method string) map[string]string {
	tasks := map[string]string{}
	for _, gid := range s.GroupOrder {
		for _, target := range s.Groups[gid] {
			tasks[target] = method
		}
	}
	return tasks
}

// execute runs every (target, method) pair in tasks, recording fitted
// history and status into the Registry, and returns the subset that
// came back Failed (spec.md §4.8 Checker step; reused by the
// Calibrator's retry loop).
func (s *Scheduler) execute(tasks map[string]string) FailureSet {
	failed := FailureSet{}
	now := time.Now()

	byMethod := map[string][]string{}
	for target, method := range tasks {
		byMethod[method] = append(byMethod[method], target)
	}

	for method, targets := range byMethod {
		fitted, status := s.Executor.Execute(method, targets)
		for target, v := range fitted {
			recordFit(s.Registry, target, method, v, now)
		}
		for target, st := range status {
			setStatus(s.Registry, target, method, st, now)
			ok := st == "OK"
			if s.Observer != nil {
				s.Observer.ObserveCalibCheck(method, target, ok)
			}
			if !ok {
				failed[target] = method
			}
		}
	}
	return failed
}

// calibratorLoop is the single-threaded calibration executor (spec.md
// §5 "a calibration executor (single thread) runs the Calibrator").
func (s *Scheduler) calibratorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fs := <-s.failures:
			s.calibrate(fs)
		}
	}
}

// calibrate repeatedly executes the failing methods. While any target
// stays failed, it takes the method of the failed target that sorts
// first (firstMethod), and retries every target in the set as that
// method's first parent. It stops once every target succeeds or that
// method has no parent (spec.md §4.8
// Calibrator step). It holds examMu for the whole round, matching
// "the Calibrator holds a failure set".
func (s *Scheduler) calibrate(fs FailureSet) {
	s.examMu.Lock()
	defer s.examMu.Unlock()

	current := map[string]string{}
	for target, method := range fs {
		current[target] = method
	}

	for {
		failed := s.execute(current)
		if len(failed) == 0 {
			return
		}

		method := firstMethod(failed)
		parents := s.Graph.Parents(method)
		if len(parents) == 0 {
			return
		}
		parent := parents[0]
		s.Logger.Infof("calib: %s still failing, retrying as %s", method, parent)
		for target := range current {
			current[target] = parent
		}
	}
}

// firstMethod returns the method belonging to fs's lexicographically
// smallest target, so a retry round's choice of which failure to walk
// is deterministic (Go map iteration order is not, unlike the
// original's Python dict insertion order).
func firstMethod(fs FailureSet) string {
	var bestTarget, bestMethod string
	first := true
	for target, method := range fs {
		if first || target < bestTarget {
			bestTarget, bestMethod = target, method
			first = false
		}
	}
	return bestMethod
}
