// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"sync"
	"time"

	"github.com/pdiddy/docbatch/pkg/types"
)

// aggregator collects JobResults from concurrent executors into a
// BatchReport. Results arrive in completion order, which is unconstrained
// across workers; the aggregator is the single writer over the report.
type aggregator struct {
	mu        sync.Mutex
	report    types.BatchReport
	finalized bool
	progress  func(types.JobResult)
}

func newAggregator(progress func(types.JobResult)) *aggregator {
	return &aggregator{
		report:   types.BatchReport{Started: time.Now()},
		progress: progress,
	}
}

// record adds one terminal result to the report. Safe for concurrent use;
// results recorded after finalize are dropped. The progress callback runs
// outside the lock so a slow consumer cannot stall executors recording
// into the report.
func (a *aggregator) record(res types.JobResult) {
	a.mu.Lock()
	if a.finalized {
		a.mu.Unlock()
		return
	}
	a.report.Results = append(a.report.Results, res)
	a.report.Total++
	switch res.Status {
	case types.StatusSucceeded:
		a.report.Succeeded++
	case types.StatusSkipped:
		a.report.Skipped++
	default:
		a.report.Failed++
	}
	a.mu.Unlock()

	if a.progress != nil {
		a.progress(res)
	}
}

// finalize freezes the report with the given outcome and returns it.
// Called exactly once, after every admitted job has reached a terminal
// state.
func (a *aggregator) finalize(outcome types.RunOutcome) types.BatchReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	a.report.Outcome = outcome
	a.report.Finished = time.Now()
	return a.report
}
