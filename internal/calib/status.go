package calib

import (
	"fmt"
	"time"

	"github.com/qlab-core/qcore/internal/constants"
	"github.com/qlab-core/qcore/internal/registry"
)

// HistoryEntry is one fitted-value sample recorded for a
// (target, method) pair (the original's `hh.append({timestamp: v})`).
type HistoryEntry struct {
	Value float64
	At    time.Time
}

// StatusRecord is the per-(target, method) record spec.md §4.8 names:
// "{status, lifetime, tolerance, history, last_updated}".
type StatusRecord struct {
	Status      string // "OK" or "Failed"
	Lifetime    time.Duration
	Tolerance   float64
	History     []HistoryEntry
	LastUpdated time.Time
}

// statusPath mirrors the original's dotted registry key
// `f'{target}.{method}.status'`, generalized to the record's field.
func statusPath(target, method, field string) string {
	return fmt.Sprintf("%s.%s.%s", target, method, field)
}

// loadStatus reads target's record for method from the Registry,
// defaulting Lifetime/Tolerance to fresh zero values on first read.
func loadStatus(reg *registry.Registry, target, method string) StatusRecord {
	rec := StatusRecord{}
	if s, ok := reg.Query(statusPath(target, method, "status"), "").(string); ok {
		rec.Status = s
	}
	if l, ok := reg.Query(statusPath(target, method, "lifetime"), nil).(time.Duration); ok {
		rec.Lifetime = l
	}
	if t, ok := reg.Query(statusPath(target, method, "tolerance"), nil).(float64); ok {
		rec.Tolerance = t
	}
	if h, ok := reg.Query(statusPath(target, method, "history"), nil).([]HistoryEntry); ok {
		rec.History = h
	}
	if lu, ok := reg.Query(statusPath(target, method, "last_updated"), nil).(time.Time); ok {
		rec.LastUpdated = lu
	}
	return rec
}

// recordFit appends value to target/method's bounded history (spec.md
// §4.8 "records fitted values into each target's history (bounded
// length)"; original: "if len(hh) > 10: hh.pop(0)").
func recordFit(reg *registry.Registry, target, method string, value float64, at time.Time) {
	rec := loadStatus(reg, target, method)
	rec.History = append(rec.History, HistoryEntry{Value: value, At: at})
	if len(rec.History) > constants.DefaultCalibHistoryLen {
		rec.History = rec.History[len(rec.History)-constants.DefaultCalibHistoryLen:]
	}
	_ = reg.Update(statusPath(target, method, "history"), rec.History)
}

// setStatus records target/method's OK/Failed status and bumps its
// last_updated stamp.
func setStatus(reg *registry.Registry, target, method, status string, at time.Time) {
	_ = reg.Update(statusPath(target, method, "status"), status)
	_ = reg.Update(statusPath(target, method, "last_updated"), at)
}
