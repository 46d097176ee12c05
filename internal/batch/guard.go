// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/docbatch/internal/engine"
	"github.com/pdiddy/docbatch/pkg/types"
)

// RetryBaseDelay is the base for the linear inter-attempt backoff: the
// wait before attempt n+1 is RetryBaseDelay * n. Tests override this to
// avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// guard drives a single job through up to MaxRetries+1 attempts, each
// under a hard per-attempt deadline. Attempts for one job are strictly
// sequential; a timed-out attempt is killed via context cancellation
// before the next one starts.
type guard struct {
	engine engine.Engine
	cfg    types.BatchConfig
}

// execute runs the job to a terminal state and returns its single
// JobResult. ctx is the run-level context: its cancellation interrupts
// the current attempt and produces a canceled result.
func (g *guard) execute(ctx context.Context, job types.Job) types.JobResult {
	start := time.Now()
	maxAttempts := g.cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	result := types.JobResult{
		JobID:      job.ID,
		SourcePath: job.SourcePath,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return g.canceled(result, attempt-1, start)
		}
		result.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		markdown, err := g.engine.Convert(attemptCtx, job.SourcePath)
		cancel()

		if err == nil {
			if werr := writeOutput(job.OutputPath, markdown); werr != nil {
				result.Status = types.StatusFailed
				result.ErrorKind = types.ErrKindPermanent
				result.Message = werr.Error()
				result.Duration = time.Since(start)
				return result
			}
			result.Status = types.StatusSucceeded
			result.OutputPath = job.OutputPath
			result.Duration = time.Since(start)
			return result
		}

		// Run-level cancellation beats every other classification.
		if ctx.Err() != nil {
			return g.canceled(result, attempt, start)
		}

		if !retryable(err) {
			result.Status = types.StatusFailed
			result.ErrorKind = types.ErrKindPermanent
			result.Message = err.Error()
			result.Duration = time.Since(start)
			return result
		}

		lastErr = err
		if attempt < maxAttempts {
			backoff := time.Duration(attempt) * RetryBaseDelay
			select {
			case <-ctx.Done():
				return g.canceled(result, attempt, start)
			case <-time.After(backoff):
			}
		}
	}

	result.Status = types.StatusFailed
	result.ErrorKind = types.ErrKindRetriesExhausted
	result.Message = fmt.Sprintf("failed after %d attempts: %v", maxAttempts, lastErr)
	result.Duration = time.Since(start)
	return result
}

func (g *guard) canceled(result types.JobResult, attempts int, start time.Time) types.JobResult {
	result.Status = types.StatusFailed
	result.ErrorKind = types.ErrKindCanceled
	result.Message = "run canceled"
	result.Attempts = attempts
	result.Duration = time.Since(start)
	return result
}

// retryable reports whether the attempt failure is eligible for retry:
// a per-attempt deadline expiry or an engine-flagged transient error.
func retryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || engine.IsTransient(err)
}

// writeOutput writes markdown to destPath atomically: temp file in the
// destination directory, then rename. Parent directories are created.
func writeOutput(destPath, markdown string) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".docbatch-*.md.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.WriteString(markdown)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing output: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// OutputPath derives the Markdown output path for sourcePath under
// outputDir: the source base name with its extension replaced by .md.
func OutputPath(outputDir, sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(outputDir, stem+".md")
}
