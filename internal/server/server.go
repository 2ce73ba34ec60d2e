// Package server implements the Task Server (spec.md §4.7): a
// min-heap admission queue feeding at most one Running task per
// physical backend, plus the submit/cancel/track/report/fetch/review/
// snapshot/adduser/login surface and passthroughs to the Registry's
// query/update/create/delete/checkpoint verbs (spec.md §6).
//
// Grounded on the teacher's internal/ctrl.Controller lifecycle
// sequencing (AddDevice/SetParams/StartDevice/StopDevice/DeleteDevice)
// generalized from one physical ublk device to many queued tasks
// fanned out across backend aliases, and on internal/queue/runner.go's
// one-goroutine-per-resource, select-on-ctx.Done() dispatch loop.
package server

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/qerrors"
	"github.com/qlab-core/qcore/internal/runtime"
)

// Server is the Task Server.
type Server struct {
	Runtime *runtime.Runtime
	Logger  *logging.Logger

	mu      sync.Mutex
	queue   taskQueue
	seq     uint64
	nextTID uint64
	tasks   map[string]*runtime.Task
	backend map[string]*backendState

	wake   chan string
	cancel context.CancelFunc

	sessions *sessionTable
}

type backendState struct {
	running bool
}

// New wires a Server around rt and starts its per-backend admission
// loop. Call Close to stop it.
func New(rt *runtime.Runtime) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Runtime:  rt,
		Logger:   logging.Default(),
		tasks:    map[string]*runtime.Task{},
		backend:  map[string]*backendState{},
		wake:     make(chan string, 64),
		cancel:   cancel,
		sessions: newSessionTable(),
	}
	heap.Init(&s.queue)
	go s.dispatchLoop(ctx)
	return s
}

// Close stops the admission loop. In-flight tasks run to completion.
func (s *Server) Close() error {
	s.cancel()
	return nil
}

// Submit admits spec into the priority queue, assigning it a fresh
// task ID, and returns that ID immediately without blocking for
// admission (spec.md §4.7 "submit").
func (s *Server) Submit(spec runtime.TaskSpec) (string, error) {
	backend := spec.Backend
	if backend == "" {
		backend = "default"
		spec.Backend = backend
	}

	tid := fmt.Sprintf("t-%d", atomic.AddUint64(&s.nextTID, 1))
	task := runtime.NewTask(tid, spec)

	s.mu.Lock()
	s.tasks[tid] = task
	seq := atomic.AddUint64(&s.seq, 1)
	heap.Push(&s.queue, &queuedTask{Task: task, SubmitTime: time.Now(), SubmitSeq: seq})
	s.mu.Unlock()

	s.signal(backend)
	return tid, nil
}

// Cancel requests cooperative cancellation of tid (spec.md §4.7
// "cancel"). A task still queued (never admitted) only has its cancel
// flag set; it is admitted when its turn comes and Run moves it to
// Canceled before dispatching anything.
func (s *Server) Cancel(tid string) error {
	task, err := s.lookup(tid)
	if err != nil {
		return err
	}
	task.Cancel()
	return nil
}

// Track returns tid's current lifecycle state (spec.md §4.7 "track").
func (s *Server) Track(tid string) (runtime.State, error) {
	task, err := s.lookup(tid)
	if err != nil {
		return runtime.Pending, err
	}
	return task.State(), nil
}

// Report is the summary spec.md §4.7's "report" returns.
type Report struct {
	ID          string
	State       runtime.State
	FailedAtSid int
	Err         error
	Signals     []string
	Counts      map[string]int
}

// Report returns a point-in-time summary of tid's execution.
func (s *Server) Report(tid string) (Report, error) {
	task, err := s.lookup(tid)
	if err != nil {
		return Report{}, err
	}
	signals := task.Dataset.Signals()
	counts := make(map[string]int, len(signals))
	for _, sig := range signals {
		counts[sig] = task.Dataset.Count(sig)
	}
	return Report{
		ID:          task.ID,
		State:       task.State(),
		FailedAtSid: task.FailedAtSid,
		Err:         task.Err,
		Signals:     signals,
		Counts:      counts,
	}, nil
}

// FetchResult is what spec.md §4.7's "fetch" returns: data accumulated
// since start, plus optionally the task's metadata.
type FetchResult struct {
	State  runtime.State
	Points map[string][][]complex128
	Meta   *runtime.TaskSpec
}

// Fetch returns every signal's points recorded since index start
// (inclusive). When meta is true the task's TaskSpec is attached.
func (s *Server) Fetch(tid string, start int, meta bool) (FetchResult, error) {
	task, err := s.lookup(tid)
	if err != nil {
		return FetchResult{}, err
	}
	points := map[string][][]complex128{}
	for _, sig := range task.Dataset.Signals() {
		points[sig] = task.Dataset.Points(sig, start)
	}
	res := FetchResult{State: task.State(), Points: points}
	if meta {
		spec := task.Spec
		res.Meta = &spec
	}
	return res, nil
}

// ReviewBundle is the per-sid artifact bundle spec.md §4.7 names:
// "{circ, ini, raw, ctx, byp, debug, trace}".
type ReviewBundle struct {
	Circ  any
	Ini   any
	Raw   map[string]any
	Ctx   any
	Byp   any
	Debug string
	Trace runtime.SidTrace
}

// Review returns the stored intermediate artifacts for tid's sid
// (spec.md §4.7 "review(tid, sid)").
func (s *Server) Review(tid string, sid int) (ReviewBundle, error) {
	task, err := s.lookup(tid)
	if err != nil {
		return ReviewBundle{}, err
	}
	for _, tr := range task.Trace {
		if tr.Sid != sid {
			continue
		}
		raw := make(map[string]any, len(tr.Raw))
		for k, v := range tr.Raw {
			raw[k] = v
		}
		return ReviewBundle{
			Circ:  tr.Circuit,
			Ini:   task.Spec.Init,
			Raw:   raw,
			Ctx:   tr.Context,
			Byp:   tr.Bypass,
			Debug: tr.Debug,
			Trace: tr,
		}, nil
	}
	return ReviewBundle{}, fmt.Errorf("server: task %q has no recorded sid %d", tid, sid)
}

// Snapshot delegates to the Registry's snapshot (spec.md §4.7
// "snapshot(tid?)"); an empty tid takes a fresh uncached snapshot
// rather than the task-scoped one.
func (s *Server) Snapshot(tid string) string {
	return s.Runtime.Registry.Snapshot(tid).Dump()
}

// Query, Update, Create, Delete, and Checkpoint are thin passthroughs
// to the Registry, exposing spec.md §6's "query, create, delete,
// checkpoint" RPC verbs on the Server the way `update` already is.
func (s *Server) Query(path string, def any) any   { return s.Runtime.Registry.Query(path, def) }
func (s *Server) Update(path string, v any) error  { return s.Runtime.Registry.Update(path, v) }
func (s *Server) Create(path string, v any) error  { return s.Runtime.Registry.Create(path, v) }
func (s *Server) Delete(path string) error         { return s.Runtime.Registry.Delete(path) }
func (s *Server) Checkpoint(tid string) (string, error) {
	return s.Runtime.Registry.Checkpoint(tid)
}

// AddUser registers user against system (spec.md §6 "adduser"; §4.7
// "adduser").
func (s *Server) AddUser(user, system string) error {
	return s.sessions.addUser(user, system)
}

// Login returns key's session token, reusing an idle session when one
// exists (spec.md §6 "login"; §4.7 "sessions are keyed by
// (thread, user, host, port) with lazy connection re-use").
func (s *Server) Login(key SessionKey) (string, error) {
	return s.sessions.login(key)
}

func (s *Server) lookup(tid string) (*runtime.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[tid]
	if !ok {
		return nil, qerrors.NewTaskError("lookup", tid, -1, qerrors.RegistryMiss, fmt.Sprintf("unknown task %q", tid))
	}
	return task, nil
}

func (s *Server) signal(backend string) {
	select {
	case s.wake <- backend:
	default:
		// a dispatch for this backend is already pending; the loop will
		// re-scan it once woken.
	}
}

// dispatchLoop admits at most one Running task per backend alias
// (spec.md §5 "at most one Running task per physical backend"),
// grounded on internal/queue/runner.go's select-on-ctx.Done() loop.
func (s *Server) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case backend := <-s.wake:
			s.tryAdmit(backend)
		}
	}
}

func (s *Server) tryAdmit(backend string) {
	s.mu.Lock()
	bs, ok := s.backend[backend]
	if !ok {
		bs = &backendState{}
		s.backend[backend] = bs
	}
	if bs.running {
		s.mu.Unlock()
		return
	}
	idx := s.queue.bestIndexForBackend(backend)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	qt := heap.Remove(&s.queue, idx).(*queuedTask)
	bs.running = true
	s.mu.Unlock()

	go s.runAdmitted(qt.Task, backend)
}

func (s *Server) runAdmitted(task *runtime.Task, backend string) {
	// A task canceled while still queued (spec.md §4 state diagram
	// "Pending -cancel()-> Canceled") is admitted anyway: Run checks
	// cooperative cancellation at the very first sid and transitions
	// straight to Canceled without dispatching anything.
	if err := s.Runtime.Run(context.Background(), task); err != nil {
		s.Logger.Errorf("server: task %s: %v", task.ID, err)
	}
	if task.State() == runtime.Finished {
		if err := s.Runtime.Archive(task); err != nil {
			s.Logger.Warnf("server: archiving task %s: %v", task.ID, err)
		}
	}

	s.releaseBackend(backend)
}

func (s *Server) releaseBackend(backend string) {
	s.mu.Lock()
	if bs, ok := s.backend[backend]; ok {
		bs.running = false
	}
	s.mu.Unlock()
	s.signal(backend)
}
