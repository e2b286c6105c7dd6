// Package telemetry counts pipeline and enrichment activity.
package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Recorder tracks process-wide pipeline counters.
type Recorder struct {
	log *slog.Logger

	submitted          atomic.Uint64
	active             atomic.Int64
	completed          atomic.Uint64
	failed             atomic.Uint64
	persistenceRetries atomic.Uint64
	anomalies          atomic.Uint64
	enrichments        atomic.Uint64
	enrichmentFailures atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	Submitted          uint64 `json:"submitted"`
	Active             int64  `json:"active"`
	Completed          uint64 `json:"completed"`
	Failed             uint64 `json:"failed"`
	PersistenceRetries uint64 `json:"persistenceRetries"`
	Anomalies          uint64 `json:"anomalies"`
	Enrichments        uint64 `json:"enrichments"`
	EnrichmentFailures uint64 `json:"enrichmentFailures"`
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Submitted:          r.submitted.Load(),
		Active:             r.active.Load(),
		Completed:          r.completed.Load(),
		Failed:             r.failed.Load(),
		PersistenceRetries: r.persistenceRetries.Load(),
		Anomalies:          r.anomalies.Load(),
		Enrichments:        r.enrichments.Load(),
		EnrichmentFailures: r.enrichmentFailures.Load(),
	}
}

// Run accumulates statistics for one project execution.
type Run struct {
	recorder *Recorder
	log      *slog.Logger
	started  time.Time
	stages   map[string]time.Duration
	closed   atomic.Bool
}

// StartRun records a submitted execution.
func (r *Recorder) StartRun(projectID string) *Run {
	if r == nil {
		return nil
	}
	r.submitted.Add(1)
	r.active.Add(1)
	return &Run{
		recorder: r,
		log:      r.log.With("project_id", projectID),
		started:  time.Now(),
		stages:   make(map[string]time.Duration),
	}
}

// Stage records how long one stage took.
func (run *Run) Stage(name string, took time.Duration) {
	if run == nil {
		return
	}
	run.stages[name] += took
	run.log.Debug("stage finished", "stage", name, "duration_ms", took.Milliseconds())
}

// PersistenceRetry counts one retried write.
func (run *Run) PersistenceRetry() {
	if run == nil {
		return
	}
	run.recorder.persistenceRetries.Add(1)
}

// Anomaly counts a failure that could not be recorded on the project.
func (run *Run) Anomaly() {
	if run == nil {
		return
	}
	run.recorder.anomalies.Add(1)
}

// Finish logs a summary and updates the active counter. Only the first call counts.
func (run *Run) Finish(err error) {
	if run == nil || !run.closed.CompareAndSwap(false, true) {
		return
	}
	defer run.recorder.active.Add(-1)

	args := []any{"duration_ms", time.Since(run.started).Milliseconds()}
	for stage, took := range run.stages {
		args = append(args, stage+"_ms", took.Milliseconds())
	}

	if err != nil {
		run.recorder.failed.Add(1)
		run.log.Error("project failed", append(args, "error", err)...)
		return
	}
	run.recorder.completed.Add(1)
	run.log.Info("project completed", args...)
}

// Discard closes a run that neither completed nor failed, such as a skipped re-submission.
func (run *Run) Discard() {
	if run == nil || !run.closed.CompareAndSwap(false, true) {
		return
	}
	run.recorder.active.Add(-1)
	run.log.Debug("execution discarded")
}

// Enrichment counts one dispatcher operation and its outcome.
func (r *Recorder) Enrichment(op string, err error) {
	if r == nil {
		return
	}
	r.enrichments.Add(1)
	if err != nil {
		r.enrichmentFailures.Add(1)
		r.log.Warn("enrichment failed", "operation", op, "error", err)
	}
}
