// Package metrics aggregates the per-schema counters a materialize run
// produces into a single run-level report for console and JSON output.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gurre/csvfusion/model"
)

// Aggregator folds each schema task's final model.JobMetrics into running
// totals for the whole materialize run. Add is safe for concurrent use so
// callers can fold results in as tasks finish rather than waiting for all
// of them.
type Aggregator struct {
	mu sync.Mutex

	rowsWritten  int64
	rowsRejected int64
	spillCount   int64
	rowsSpilled  int64
	schemasDone  int64
	startTime    time.Time
	perSchema    []model.JobMetrics
}

// NewAggregator starts a report clock at the current time.
func NewAggregator() *Aggregator {
	return &Aggregator{startTime: time.Now()}
}

// Add folds one schema task's metrics into the running totals.
func (a *Aggregator) Add(m model.JobMetrics) {
	atomic.AddInt64(&a.rowsWritten, m.Rows)
	atomic.AddInt64(&a.rowsRejected, m.ShortRows+m.LongRows+m.MissingRequired+m.TypeMismatches)
	atomic.AddInt64(&a.spillCount, m.SpillCount)
	atomic.AddInt64(&a.rowsSpilled, m.RowsSpilled)
	atomic.AddInt64(&a.schemasDone, 1)

	a.mu.Lock()
	a.perSchema = append(a.perSchema, m)
	a.mu.Unlock()
}

// PerSchema returns the metrics folded in so far, one entry per Add call.
func (a *Aggregator) PerSchema() []model.JobMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.JobMetrics, len(a.perSchema))
	copy(out, a.perSchema)
	return out
}

// Report is the aggregate counters for one materialize run.
type Report struct {
	JobID        string        `json:"jobId"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	SchemasDone  int64         `json:"schemasDone"`
	RowsWritten  int64         `json:"rowsWritten"`
	RowsRejected int64         `json:"rowsRejected"`
	SpillCount   int64         `json:"spillCount"`
	RowsSpilled  int64         `json:"rowsSpilled"`
	Duration     time.Duration `json:"-"`
	Throughput   float64       `json:"throughput"`
}

// GenerateReport snapshots the aggregator's running totals into a Report.
func (a *Aggregator) GenerateReport(jobID string) Report {
	endTime := time.Now()
	duration := endTime.Sub(a.startTime)
	rows := atomic.LoadInt64(&a.rowsWritten)
	var throughput float64
	if duration > 0 {
		throughput = float64(rows) / duration.Seconds()
	}
	return Report{
		JobID:        jobID,
		StartTime:    a.startTime,
		EndTime:      endTime,
		SchemasDone:  atomic.LoadInt64(&a.schemasDone),
		RowsWritten:  rows,
		RowsRejected: atomic.LoadInt64(&a.rowsRejected),
		SpillCount:   atomic.LoadInt64(&a.spillCount),
		RowsSpilled:  atomic.LoadInt64(&a.rowsSpilled),
		Duration:     duration,
		Throughput:   throughput,
	}
}

// MarshalJSON renders Duration as a Go duration string rather than a raw
// nanosecond count.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String renders the report for console output.
func (r Report) String() string {
	return fmt.Sprintf(
		"materialized %d rows across %d schemas in %s (%.1f rows/sec, %d rows rejected, %d rows spilled across %d spills)",
		r.RowsWritten, r.SchemasDone, r.Duration.Round(time.Millisecond), r.Throughput, r.RowsRejected, r.RowsSpilled, r.SpillCount,
	)
}
