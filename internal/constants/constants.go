// Package constants holds process-wide tunables for the task pipeline
// and calibration scheduler.
package constants

import "time"

const (
	// DefaultQueueCapacity is the bounded capacity of the Checker->Calibrator
	// failure-set channel (spec: "blocking with a bounded capacity").
	DefaultQueueCapacity = 16

	// DefaultCalibHistoryLen bounds a CalibNode's history ring buffer.
	DefaultCalibHistoryLen = 10

	// DefaultDriverRetries bounds the number of retries for a DriverTransient
	// error before the step is surfaced as Failed.
	DefaultDriverRetries = 3

	// DefaultDriverRetryBackoff is the base backoff between driver retries.
	DefaultDriverRetryBackoff = 50 * time.Millisecond

	// DefaultTaskTimeout is applied when a Task does not specify one.
	DefaultTaskTimeout = 10 * time.Minute

	// DefaultStepTimeout bounds a single step's compile->dispatch->read loop.
	DefaultStepTimeout = 30 * time.Second

	// DefaultDeviceCallTimeout bounds one driver call (open/close/read/write).
	DefaultDeviceCallTimeout = 5 * time.Second

	// DefaultSessionIdle is how long an idle (thread,user,host,port) session
	// is kept before it is eligible for reuse eviction.
	DefaultSessionIdle = 15 * time.Minute

	// DefaultCheckPeriod is used when a CalibNode's check metadata omits one.
	DefaultCheckPeriod = 60 * time.Second
)

// WriteSensitiveSuffixes names the target suffixes the BypassCache guards.
// A WRITE to a target ending in one of these is elided when the value
// equals the last one written (spec.md §4.4.1).
var WriteSensitiveSuffixes = []string{"Waveform", "Shot"}

// OpaqueSegments names path segments that mark a gate node rather than a
// physical channel (spec.md §4.4 iscmd predicate, Glossary "Opaque").
var OpaqueSegments = []string{"gate", "circuit"}
