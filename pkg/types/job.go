// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the docbatch pipeline:
// jobs, per-job results, batch reports, and the configuration structs
// consumed by the orchestration packages.
package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a job through its lifecycle. A job starts Pending, moves
// to Running when an executor picks it up, and ends in exactly one of the
// terminal states.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusSkipped   JobStatus = "skipped"
)

// Terminal reports whether the status is one of the final states.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// ErrorKind classifies why a job did not succeed.
type ErrorKind string

const (
	// ErrKindValidation marks a file rejected before scheduling.
	ErrKindValidation ErrorKind = "validation"
	// ErrKindTransient marks a recoverable failure (timeout, flaky I/O).
	ErrKindTransient ErrorKind = "transient"
	// ErrKindPermanent marks an unrecoverable failure (corrupt or
	// unsupported content).
	ErrKindPermanent ErrorKind = "permanent"
	// ErrKindRetriesExhausted marks a transient failure that survived
	// every attempt.
	ErrKindRetriesExhausted ErrorKind = "retries_exhausted"
	// ErrKindCanceled marks a job interrupted by run-level cancellation.
	ErrKindCanceled ErrorKind = "canceled"
)

// Job is one file's conversion task. The scheduler owns a Job exclusively
// until it reaches a terminal status; terminal jobs are never mutated.
type Job struct {
	ID         uuid.UUID `json:"id" yaml:"id"`
	SourcePath string    `json:"source_path" yaml:"source_path"`
	OutputPath string    `json:"output_path" yaml:"output_path"`
	Attempts   int       `json:"attempts" yaml:"attempts"`
	Status     JobStatus `json:"status" yaml:"status"`
}

// NewJob creates a Pending job for sourcePath writing to outputPath.
func NewJob(sourcePath, outputPath string) Job {
	return Job{
		ID:         uuid.New(),
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Status:     StatusPending,
	}
}

// JobResult is the single, final outcome record for a job. Exactly one
// JobResult is produced per submitted file.
type JobResult struct {
	JobID      uuid.UUID     `json:"job_id" yaml:"job_id"`
	SourcePath string        `json:"source_path" yaml:"source_path"`
	OutputPath string        `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Status     JobStatus     `json:"status" yaml:"status"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Message    string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Attempts   int           `json:"attempts" yaml:"attempts"`
}

// RunOutcome distinguishes how a batch run ended.
type RunOutcome string

const (
	// OutcomeCompleted means every submitted job reached a terminal state.
	OutcomeCompleted RunOutcome = "completed"
	// OutcomeAborted means the run stopped early after a permanent failure
	// with continue-on-error disabled.
	OutcomeAborted RunOutcome = "aborted"
	// OutcomeCanceled means an operator cancellation ended the run.
	OutcomeCanceled RunOutcome = "canceled"
)

// BatchReport summarizes a batch run. Counts always satisfy
// Total == Succeeded + Failed + Skipped == len(Results); on aborted or
// canceled runs Total may be less than the number of submitted files.
type BatchReport struct {
	Outcome   RunOutcome  `json:"outcome" yaml:"outcome"`
	Total     int         `json:"total" yaml:"total"`
	Succeeded int         `json:"succeeded" yaml:"succeeded"`
	Failed    int         `json:"failed" yaml:"failed"`
	Skipped   int         `json:"skipped" yaml:"skipped"`
	Started   time.Time   `json:"started" yaml:"started"`
	Finished  time.Time   `json:"finished" yaml:"finished"`
	Results   []JobResult `json:"results" yaml:"results"`
}

// Duration returns the wall-clock duration of the run.
func (r BatchReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// HasFailures reports whether any job failed.
func (r BatchReport) HasFailures() bool {
	return r.Failed > 0
}

// FullSuccess reports whether the run completed with every job succeeding.
func (r BatchReport) FullSuccess() bool {
	return r.Outcome == OutcomeCompleted && r.Failed == 0 && r.Succeeded == r.Total-r.Skipped
}
