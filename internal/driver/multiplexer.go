// Package driver implements the Driver Multiplexer (spec.md §4.5): one
// long-lived goroutine per device alias serializing dispatch of
// assembled commands to an injected interfaces.Driver, realizing
// symbolic waveform values via the pulse Kernel before WRITE, retrying
// transient errors with bounded backoff, and proxying to RemoteDriver
// instances over RPC. Grounded on the teacher's
// internal/queue/runner.go: one goroutine per queue, context-scoped,
// processing requests in submission order via select-on-ctx.Done();
// here the kernel completion queue becomes a buffered Go channel of
// dispatch requests.
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qlab-core/qcore/internal/assemble"
	"github.com/qlab-core/qcore/internal/constants"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/pulse"
	"github.com/qlab-core/qcore/internal/value"
)

// Multiplexer owns one worker per open device alias.
type Multiplexer struct {
	Kernel   *pulse.Kernel
	Logger   *logging.Logger
	Observer interfaces.Observer

	workers map[string]*worker
}

// New returns an empty Multiplexer.
func New(observer interfaces.Observer) *Multiplexer {
	return &Multiplexer{
		Kernel:   pulse.New(),
		Logger:   logging.Default(),
		Observer: observer,
		workers:  map[string]*worker{},
	}
}

type request struct {
	ctx      context.Context
	cmd      assemble.Command
	quantity string
	resp     chan result
}

type result struct {
	value value.Value
	err   error
}

type worker struct {
	alias  string
	driver interfaces.Driver
	reqs   chan *request
	cancel context.CancelFunc
}

// Open starts a dispatch goroutine for alias backed by drv (spec.md
// §4.5). Opening an alias that is already open closes the previous
// driver first.
func (m *Multiplexer) Open(ctx context.Context, alias string, drv interfaces.Driver, opts map[string]value.Value) error {
	if existing, ok := m.workers[alias]; ok {
		_ = m.Close(existing.alias)
	}

	if err := drv.Open(opts); err != nil {
		return fmt.Errorf("driver: open %s: %w", alias, err)
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &worker{
		alias:  alias,
		driver: drv,
		reqs:   make(chan *request, constants.DefaultQueueCapacity),
		cancel: cancel,
	}
	m.workers[alias] = w
	go m.dispatchLoop(wctx, w)
	return nil
}

// Close stops alias's worker and closes its driver.
func (m *Multiplexer) Close(alias string) error {
	w, ok := m.workers[alias]
	if !ok {
		return nil
	}
	w.cancel()
	delete(m.workers, alias)
	return w.driver.Close()
}

// Dispatch submits cmd to hwTarget's device-alias worker and blocks
// until it completes or ctx is canceled. hwTarget is the fully resolved
// hardware channel (e.g. "AWG1.CH1.Waveform"); the alias is its leading
// segment and the quantity is everything after it.
func (m *Multiplexer) Dispatch(ctx context.Context, hwTarget string, cmd assemble.Command) (value.Value, error) {
	alias, quantity, err := splitTarget(hwTarget)
	if err != nil {
		return nil, err
	}
	w, ok := m.workers[alias]
	if !ok {
		return nil, fmt.Errorf("driver: alias %q not open", alias)
	}

	req := &request{ctx: ctx, cmd: cmd, quantity: quantity, resp: make(chan result, 1)}
	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-req.resp:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func splitTarget(hwTarget string) (alias, quantity string, err error) {
	idx := strings.IndexByte(hwTarget, '.')
	if idx < 0 {
		return "", "", fmt.Errorf("driver: malformed target %q", hwTarget)
	}
	return hwTarget[:idx], hwTarget[idx+1:], nil
}

// dispatchLoop processes w.reqs in submission order until ctx is
// canceled (teacher: Runner.ioLoop's select-on-ctx.Done() structure).
func (m *Multiplexer) dispatchLoop(ctx context.Context, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqs:
			req.resp <- m.process(ctx, w, req)
		}
	}
}

func (m *Multiplexer) process(ctx context.Context, w *worker, req *request) result {
	start := time.Now()
	var r result

	switch req.cmd.Type {
	case interfaces.Wait:
		r.err = m.wait(ctx, req.cmd.Value)
		return r

	case interfaces.Read:
		retryable := false
		if rr, ok := w.driver.(interfaces.RetryableRead); ok {
			retryable = rr.RetryRead()
		}
		call := func() error {
			v, err := w.driver.Read(ctx, req.quantity, nil)
			r.value = v
			return err
		}
		if retryable {
			r.err = withRetry(ctx, call)
		} else {
			r.err = call()
		}
		if m.Observer != nil {
			m.Observer.ObserveDriverRead(w.alias, uint64(time.Since(start).Nanoseconds()), r.err == nil)
		}
		return r

	case interfaces.Write:
		v, opts, err := m.realize(req.cmd)
		if err != nil {
			r.err = err
			return r
		}
		r.err = withRetry(ctx, func() error {
			return w.driver.Write(ctx, req.quantity, v, opts)
		})
		if m.Observer != nil {
			m.Observer.ObserveDriverWrite(w.alias, uint64(time.Since(start).Nanoseconds()), r.err == nil)
		}
		return r

	default:
		r.err = fmt.Errorf("driver: unsupported command type %q", req.cmd.Type)
		return r
	}
}

// wait sleeps for the WAIT duration (seconds), honoring ctx
// cancellation, without blocking any other device's worker.
func (m *Multiplexer) wait(ctx context.Context, v value.Value) error {
	n, ok := v.(value.Number)
	if !ok {
		return fmt.Errorf("driver: WAIT value must be a Number of seconds, got %T", v)
	}
	select {
	case <-time.After(time.Duration(float64(n) * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// realize converts a symbolic pulse value into sampled Array output via
// the Kernel before WRITE, passing raw Array/Number/Str/Bool/
// CommandHandle values through unchanged (spec.md §4.5 "Kernel
// integration for symbolic waveform realization"). The Kernel's
// resulting delay/offset/sample-rate accompany the sampled array as
// Write opts, since the driver's hardware channel may need them to
// position the waveform correctly.
func (m *Multiplexer) realize(cmd assemble.Command) (value.Value, map[string]value.Value, error) {
	switch cmd.Value.(type) {
	case value.PulseExpr, *value.PulseObject:
		cal := pulse.CalibrationRecord{SRate: cmd.Kwds.SRate}
		if end, ok := cmd.Kwds.Calibration["end"].(float64); ok {
			cal.End = end
		}
		if offset, ok := cmd.Kwds.Calibration["offset"].(float64); ok {
			cal.Offset = offset
		}
		samples, delay, offset, srate, err := m.Kernel.Sample(cmd.Value, cal)
		if err != nil {
			return nil, nil, err
		}
		opts := map[string]value.Value{
			"delay":  value.Number(delay),
			"offset": value.Number(offset),
			"srate":  value.Number(srate),
		}
		return value.Array(samples), opts, nil
	default:
		return cmd.Value, nil, nil
	}
}
