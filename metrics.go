package qcore

import (
	"sync/atomic"
	"time"

	"github.com/qlab-core/qcore/internal/interfaces"
)

// LatencyBuckets defines the driver-call latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks pipeline-wide operational statistics: driver call
// counts/latency, BypassCache elision, step dispatch throughput, task
// terminal-state counts, and calibration check outcomes.
type Metrics struct {
	DriverWrites atomic.Uint64
	DriverReads  atomic.Uint64

	DriverWriteErrors atomic.Uint64
	DriverReadErrors  atomic.Uint64

	BypassSkips     atomic.Uint64
	StepsDispatched atomic.Uint64

	TasksFinished atomic.Uint64
	TasksFailed   atomic.Uint64
	TasksCanceled atomic.Uint64
	TasksArchived atomic.Uint64

	CalibChecksOK     atomic.Uint64
	CalibChecksFailed atomic.Uint64

	// Performance tracking (driver calls only)
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// LatencyHistogram[i] is the cumulative count of driver calls with
	// latency <= LatencyBuckets[i].
	LatencyHistogram [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDriverWrite records one driver WRITE dispatch.
func (m *Metrics) RecordDriverWrite(latencyNs uint64, success bool) {
	m.DriverWrites.Add(1)
	if !success {
		m.DriverWriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDriverRead records one driver READ dispatch.
func (m *Metrics) RecordDriverRead(latencyNs uint64, success bool) {
	m.DriverReads.Add(1)
	if !success {
		m.DriverReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordBypass records one BypassCache elision.
func (m *Metrics) RecordBypass() {
	m.BypassSkips.Add(1)
}

// RecordStepDispatched records one sid having been dispatched.
func (m *Metrics) RecordStepDispatched() {
	m.StepsDispatched.Add(1)
}

// RecordTaskTerminal records a task reaching a terminal state.
func (m *Metrics) RecordTaskTerminal(state string) {
	switch state {
	case "Finished":
		m.TasksFinished.Add(1)
	case "Failed":
		m.TasksFailed.Add(1)
	case "Canceled":
		m.TasksCanceled.Add(1)
	case "Archived":
		m.TasksArchived.Add(1)
	}
}

// RecordCalibCheck records one calibration Checker outcome.
func (m *Metrics) RecordCalibCheck(ok bool) {
	if ok {
		m.CalibChecksOK.Add(1)
	} else {
		m.CalibChecksFailed.Add(1)
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogram[i].Add(1)
		}
	}
}

// Stop marks the metrics instance as stopped (uptime freezes).
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	DriverWrites      uint64
	DriverReads       uint64
	DriverWriteErrors uint64
	DriverReadErrors  uint64
	BypassSkips       uint64
	StepsDispatched   uint64

	TasksFinished uint64
	TasksFailed   uint64
	TasksCanceled uint64
	TasksArchived uint64

	CalibChecksOK     uint64
	CalibChecksFailed uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		DriverWrites:      m.DriverWrites.Load(),
		DriverReads:       m.DriverReads.Load(),
		DriverWriteErrors: m.DriverWriteErrors.Load(),
		DriverReadErrors:  m.DriverReadErrors.Load(),
		BypassSkips:       m.BypassSkips.Load(),
		StepsDispatched:   m.StepsDispatched.Load(),
		TasksFinished:     m.TasksFinished.Load(),
		TasksFailed:       m.TasksFailed.Load(),
		TasksCanceled:     m.TasksCanceled.Load(),
		TasksArchived:     m.TasksArchived.Load(),
		CalibChecksOK:     m.CalibChecksOK.Load(),
		CalibChecksFailed: m.CalibChecksFailed.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHistogram[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyHistogram[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHistogram[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.DriverWrites.Store(0)
	m.DriverReads.Store(0)
	m.DriverWriteErrors.Store(0)
	m.DriverReadErrors.Store(0)
	m.BypassSkips.Store(0)
	m.StepsDispatched.Store(0)
	m.TasksFinished.Store(0)
	m.TasksFailed.Store(0)
	m.TasksCanceled.Store(0)
	m.TasksArchived.Store(0)
	m.CalibChecksOK.Store(0)
	m.CalibChecksFailed.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHistogram[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver implements interfaces.Observer using the built-in
// Metrics, the teacher's default MetricsObserver-over-Metrics pattern
// generalized from block-device I/O events to pipeline events.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveDriverWrite(alias string, latencyNs uint64, success bool) {
	o.metrics.RecordDriverWrite(latencyNs, success)
}

func (o *MetricsObserver) ObserveDriverRead(alias string, latencyNs uint64, success bool) {
	o.metrics.RecordDriverRead(latencyNs, success)
}

func (o *MetricsObserver) ObserveBypass(target string) {
	o.metrics.RecordBypass()
}

func (o *MetricsObserver) ObserveStepDispatched(tid string, sid int) {
	o.metrics.RecordStepDispatched()
}

func (o *MetricsObserver) ObserveTaskTerminal(tid string, state string) {
	o.metrics.RecordTaskTerminal(state)
}

func (o *MetricsObserver) ObserveCalibCheck(method string, group string, ok bool) {
	o.metrics.RecordCalibCheck(ok)
}

// NoOpObserver is a no-op implementation of interfaces.Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveDriverWrite(string, uint64, bool) {}
func (NoOpObserver) ObserveDriverRead(string, uint64, bool)  {}
func (NoOpObserver) ObserveBypass(string)                    {}
func (NoOpObserver) ObserveStepDispatched(string, int)       {}
func (NoOpObserver) ObserveTaskTerminal(string, string)      {}
func (NoOpObserver) ObserveCalibCheck(string, string, bool)  {}

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = (*NoOpObserver)(nil)
)
