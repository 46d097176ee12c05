// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch orchestrates concurrent document conversion: it validates
// candidate files, dispatches jobs across a bounded worker pool, enforces
// per-attempt timeouts with retries, and aggregates a final batch report.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/docbatch/internal/engine"
	"github.com/pdiddy/docbatch/internal/resource"
	"github.com/pdiddy/docbatch/internal/validate"
	"github.com/pdiddy/docbatch/pkg/types"
)

// runState is the scheduler's explicit run-lifecycle tag.
type runState string

const (
	// stateRunning: jobs are being admitted and executed.
	stateRunning runState = "running"
	// stateDraining: every job has been dispatched; in-flight work is
	// finishing normally.
	stateDraining runState = "draining"
	// stateAborting: a permanent failure tripped the failure policy;
	// no new jobs are admitted, in-flight jobs finish.
	stateAborting runState = "aborting"
)

// stateMachine guards the run-state transitions. Aborting is sticky: a
// run that started aborting never returns to draining.
type stateMachine struct {
	mu    sync.Mutex
	state runState
}

func (s *stateMachine) transition(from, to runState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *stateMachine) abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateAborting {
		return false
	}
	s.state = stateAborting
	return true
}

func (s *stateMachine) current() runState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Runner owns a batch conversion run: the validator front door, the
// worker pool, and the result aggregation path.
type Runner struct {
	cfg      types.BatchConfig
	factory  engine.Factory
	monitor  *resource.Monitor
	logger   *slog.Logger
	progress func(types.JobResult)
}

// Option configures a Runner.
type Option func(*Runner)

// WithMonitor gates job admission on resource headroom.
func WithMonitor(m *resource.Monitor) Option {
	return func(r *Runner) { r.monitor = m }
}

// WithLogger sets the structured logger for worker-level events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithProgress registers a callback invoked once per JobResult as results
// arrive, in completion order.
func WithProgress(fn func(types.JobResult)) Option {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner builds a Runner over the given configuration and engine
// factory. The factory is invoked once per worker at run start; engines
// are never shared between executors.
func NewRunner(cfg types.BatchConfig, factory engine.Factory, opts ...Option) *Runner {
	if cfg.Timeout == 0 {
		cfg.Timeout = types.DefaultTimeout
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = types.DefaultMaxFileSize
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = types.DefaultMaxPages
	}
	r := &Runner{
		cfg:     cfg,
		factory: factory,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run converts the candidate files and returns the batch report. Every
// candidate yields exactly one JobResult unless the run ends early: on
// abort or cancellation, files that never started are absent from the
// report and the report's Outcome says so. The returned error is non-nil
// only for engine construction failure or run-level cancellation.
func (r *Runner) Run(ctx context.Context, paths []string) (types.BatchReport, error) {
	agg := newAggregator(r.progress)

	// Validation front door: rejected files become skipped results and
	// never reach the queue.
	var pending []types.Job
	for _, path := range paths {
		job := types.NewJob(path, OutputPath(r.cfg.OutputDir, path))
		if err := validate.Check(path, r.cfg); err != nil {
			r.logger.Debug("file rejected", "path", path, "reason", err)
			agg.record(types.JobResult{
				JobID:      job.ID,
				SourcePath: path,
				Status:     types.StatusSkipped,
				ErrorKind:  types.ErrKindValidation,
				Message:    err.Error(),
			})
			continue
		}
		pending = append(pending, job)
	}

	if len(pending) == 0 {
		return agg.finalize(types.OutcomeCompleted), nil
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	// One engine per executor; a construction failure aborts the run
	// before any job is scheduled.
	engines := make([]engine.Engine, workers)
	for i := range engines {
		eng, err := r.factory()
		if err != nil {
			return types.BatchReport{}, fmt.Errorf("constructing conversion engine: %w", err)
		}
		engines[i] = eng
	}

	sm := &stateMachine{state: stateRunning}

	// feedCtx stops admission without cancelling in-flight attempts;
	// the parent ctx cancels everything.
	feedCtx, stopFeeding := context.WithCancel(ctx)
	defer stopFeeding()

	abort := func() {
		if sm.abort() {
			r.logger.Warn("aborting batch after permanent failure")
			stopFeeding()
		}
	}

	jobs := make(chan types.Job)
	go r.feed(feedCtx, sm, jobs, pending, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		gd := &guard{engine: engines[i], cfg: r.cfg}
		workerID := i + 1
		g.Go(func() error {
			for job := range jobs {
				job.Status = types.StatusRunning
				r.logger.Debug("converting", "worker_id", workerID, "source", job.SourcePath)

				res := gd.execute(ctx, job)
				agg.record(res)

				if res.Status == types.StatusFailed {
					r.logger.Error("conversion failed",
						"worker_id", workerID,
						"source", job.SourcePath,
						"error_kind", res.ErrorKind,
						"error", res.Message)
					if res.ErrorKind != types.ErrKindCanceled && !r.cfg.ContinueOnError {
						abort()
					}
				}
			}
			return nil
		})
	}
	g.Wait()

	outcome := types.OutcomeCompleted
	var runErr error
	switch {
	case ctx.Err() != nil:
		outcome = types.OutcomeCanceled
		runErr = ctx.Err()
	case sm.current() == stateAborting:
		outcome = types.OutcomeAborted
	}

	return agg.finalize(outcome), runErr
}

// feed pushes pending jobs into the queue in FIFO order. Once the pool is
// saturated, each further admission may wait (bounded) for resource
// headroom. The channel is closed when all jobs are dispatched or
// admission stops.
func (r *Runner) feed(ctx context.Context, sm *stateMachine, jobs chan<- types.Job, pending []types.Job, workers int) {
	defer close(jobs)

	for i, job := range pending {
		if ctx.Err() != nil {
			return
		}

		if i >= workers && r.monitor != nil {
			forced, err := r.monitor.WaitForHeadroom(ctx)
			if err != nil {
				return
			}
			if forced {
				r.logger.Warn("admitting job without resource headroom",
					"source", job.SourcePath)
			}
		}

		select {
		case jobs <- job:
		case <-ctx.Done():
			return
		}
	}
	sm.transition(stateRunning, stateDraining)
}
