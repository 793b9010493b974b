// Package batch runs many company resolutions sequentially over one
// orchestrator session, with progress callbacks, cooperative
// cancellation, and periodic durability snapshots.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/model"
)

// Resolver resolves one company. *resolver.Orchestrator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, in model.Input) (*model.ContactRecord, error)
}

// ProgressFunc receives one update per processed company.
type ProgressFunc func(model.Progress)

// Snapshot is the JSON document written for durability during a run.
type Snapshot struct {
	RunID     string                 `json:"run_id"`
	TakenAt   time.Time              `json:"taken_at"`
	Completed int                    `json:"completed"`
	Total     int                    `json:"total"`
	Records   []*model.ContactRecord `json:"records"`
}

const (
	defaultSnapshotItems    = 10
	defaultSnapshotInterval = 5 * time.Minute
)

// Runner iterates inputs through a single Resolver. The underlying
// browsing session is serially reused, so companies are processed one
// at a time; run multiple Runners with independent orchestrators to
// scale out.
type Runner struct {
	resolver   Resolver
	runID      string
	onProgress ProgressFunc

	snapshotDir      string
	snapshotItems    int
	snapshotInterval time.Duration

	nowFunc func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOnProgress installs the per-company progress callback.
func WithOnProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) { r.onProgress = fn }
}

// WithSnapshotDir enables periodic JSON snapshots under dir.
func WithSnapshotDir(dir string) RunnerOption {
	return func(r *Runner) { r.snapshotDir = dir }
}

// WithSnapshotCadence overrides how often snapshots are taken: after
// every n companies, or whenever interval has elapsed since the last
// one, whichever comes first.
func WithSnapshotCadence(n int, interval time.Duration) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.snapshotItems = n
		}
		if interval > 0 {
			r.snapshotInterval = interval
		}
	}
}

// NewRunner builds a batch runner with a fresh run ID.
func NewRunner(resolver Resolver, opts ...RunnerOption) *Runner {
	r := &Runner{
		resolver:         resolver,
		runID:            uuid.NewString(),
		snapshotItems:    defaultSnapshotItems,
		snapshotInterval: defaultSnapshotInterval,
		nowFunc:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID identifies this run in snapshot files and logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Run processes the inputs in order. Cancellation is cooperative and
// checked between companies: the in-flight resolution finishes before
// the loop stops. The partial results accumulated so far are always
// returned, alongside the context's error when the run was cut short.
// Individual company failures never abort the run.
func (r *Runner) Run(ctx context.Context, inputs []model.Input) ([]*model.ContactRecord, error) {
	log := zap.S().With("component", "batch", "run_id", r.runID)
	total := len(inputs)
	records := make([]*model.ContactRecord, 0, total)

	log.Infow("batch run started", "total", total)
	lastSnapshot := r.nowFunc()

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			log.Infow("batch run cancelled", "completed", len(records), "total", total)
			return records, err
		}

		// Cancellation is honored between companies only: the in-flight
		// resolution runs on a context that outlives the cancel signal,
		// so a dispatched request completes or fails naturally and its
		// record is kept.
		rec, err := r.resolver.Resolve(context.WithoutCancel(ctx), in)
		if err != nil {
			log.Warnw("company resolution failed", "name", in.Name, "error", err)
			rec = model.NotFound(in.Name)
		}
		records = append(records, rec)

		if r.onProgress != nil {
			r.onProgress(model.Progress{
				Index:         i + 1,
				Total:         total,
				CurrentName:   in.Name,
				CurrentSource: rec.DataSource,
				Record:        rec,
			})
		}

		if r.shouldSnapshot(len(records), lastSnapshot) {
			r.writeSnapshot(log, records, total)
			lastSnapshot = r.nowFunc()
		}
	}

	if r.snapshotDir != "" && len(records) > 0 {
		r.writeSnapshot(log, records, total)
	}
	if err := ctx.Err(); err != nil {
		log.Infow("batch run cancelled", "completed", len(records), "total", total)
		return records, err
	}
	log.Infow("batch run finished", "completed", len(records), "total", total)
	return records, nil
}

func (r *Runner) shouldSnapshot(completed int, last time.Time) bool {
	if r.snapshotDir == "" {
		return false
	}
	if completed%r.snapshotItems == 0 {
		return true
	}
	return r.nowFunc().Sub(last) >= r.snapshotInterval
}

// writeSnapshot persists partial results. Failures are logged and
// swallowed: durability snapshots must never abort a run.
func (r *Runner) writeSnapshot(log *zap.SugaredLogger, records []*model.ContactRecord, total int) {
	snap := Snapshot{
		RunID:     r.runID,
		TakenAt:   r.nowFunc(),
		Completed: len(records),
		Total:     total,
		Records:   records,
	}
	path := filepath.Join(r.snapshotDir, fmt.Sprintf("run-%s-%04d.json", r.runID, len(records)))
	if err := r.persist(path, snap); err != nil {
		log.Warnw("snapshot write failed", "path", path, "error", err)
		return
	}
	log.Debugw("snapshot written", "path", path, "completed", len(records))
}

func (r *Runner) persist(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal snapshot")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "write snapshot")
	}
	return nil
}
