package server

import (
	"time"

	"github.com/qlab-core/qcore/internal/runtime"
)

// queuedTask is one admission-queue entry: spec.md §4.7's min-heap is
// keyed by (priority, submit-time); SubmitSeq breaks ties when two
// tasks land in the same wall-clock tick.
type queuedTask struct {
	Task       *runtime.Task
	SubmitTime time.Time
	SubmitSeq  uint64
}

// taskQueue implements container/heap.Interface over pending tasks.
// Lower Priority values are admitted first, matching the conventional
// "nice value" ordering (spec.md §4.7 names only "min-heap keyed by
// (priority, submit-time)" without fixing a direction; this repo
// documents the choice here rather than guessing silently, per
// spec.md §9's Open Questions discipline).
type taskQueue struct {
	items []*queuedTask
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Task.Spec.Priority != b.Task.Spec.Priority {
		return a.Task.Spec.Priority < b.Task.Spec.Priority
	}
	if !a.SubmitTime.Equal(b.SubmitTime) {
		return a.SubmitTime.Before(b.SubmitTime)
	}
	return a.SubmitSeq < b.SubmitSeq
}

func (q *taskQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *taskQueue) Push(x any) {
	q.items = append(q.items, x.(*queuedTask))
}

func (q *taskQueue) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	return item
}

// bestIndexForBackend returns the index of the highest-priority queued
// task admitted onto backend, or -1 if none is waiting. container/heap
// only guarantees the root is the global minimum, not a per-backend
// one, so this scans the slice directly — acceptable for the admission
// queue's expected size.
func (q *taskQueue) bestIndexForBackend(backend string) int {
	best := -1
	for i, qt := range q.items {
		if qt.Task.Spec.Backend != backend {
			continue
		}
		if best == -1 || q.Less(i, best) {
			best = i
		}
	}
	return best
}
