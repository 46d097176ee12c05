// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/docbatch/internal/engine"
	"github.com/pdiddy/docbatch/internal/resource"
	"github.com/pdiddy/docbatch/pkg/types"
)

// pathEngine is a thread-safe fake keyed by source base name. Unconfigured
// paths convert successfully.
type pathEngine struct {
	mu    sync.Mutex
	fail  map[string]error // base name -> error returned on every call
	once  map[string]error // base name -> error returned on first call only
	block bool             // block until ctx is done
	calls map[string]int
}

func newPathEngine() *pathEngine {
	return &pathEngine{
		fail:  map[string]error{},
		once:  map[string]error{},
		calls: map[string]int{},
	}
}

func (e *pathEngine) Convert(ctx context.Context, path string) (string, error) {
	base := filepath.Base(path)

	e.mu.Lock()
	e.calls[base]++
	n := e.calls[base]
	failErr := e.fail[base]
	onceErr := e.once[base]
	block := e.block
	e.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if failErr != nil {
		return "", failErr
	}
	if onceErr != nil && n == 1 {
		return "", onceErr
	}
	return "# " + base, nil
}

func (e *pathEngine) callCount(base string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[base]
}

func (e *pathEngine) factory() engine.Factory {
	return func() (engine.Engine, error) { return e, nil }
}

// writeSources creates n small Markdown files named doc00.md..doc(n-1).md
// and returns their paths in name order.
func writeSources(t *testing.T, dir string, n int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("doc%02d.md", i))
		require.NoError(t, os.WriteFile(paths[i], []byte("body"), 0o644))
	}
	return paths
}

func runnerConfig(t *testing.T, workers int) types.BatchConfig {
	return types.BatchConfig{
		Workers:         workers,
		Timeout:         time.Second,
		MaxRetries:      1,
		MaxFileSize:     1024,
		MaxPages:        10,
		ContinueOnError: true,
		OutputDir:       t.TempDir(),
	}
}

func TestRun_AllSucceed(t *testing.T) {
	cfg := runnerConfig(t, 3)
	paths := writeSources(t, t.TempDir(), 5)
	eng := newPathEngine()

	var mu sync.Mutex
	var progressed []types.JobResult
	r := NewRunner(cfg, eng.factory(), WithProgress(func(res types.JobResult) {
		mu.Lock()
		progressed = append(progressed, res)
		mu.Unlock()
	}))

	report, err := r.Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 5, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Skipped)
	assert.Len(t, report.Results, 5)
	assert.Len(t, progressed, 5, "progress callback fires once per result")

	for _, res := range report.Results {
		assert.Equal(t, types.StatusSucceeded, res.Status)
		if _, err := os.Stat(res.OutputPath); err != nil {
			t.Errorf("missing output for %s: %v", res.SourcePath, err)
		}
	}
}

func TestRun_ReportIsExhaustive(t *testing.T) {
	cfg := runnerConfig(t, 4)
	dir := t.TempDir()
	paths := writeSources(t, dir, 6)

	// One oversized, one unsupported, one permanent engine failure.
	big := filepath.Join(dir, "big.md")
	require.NoError(t, os.WriteFile(big, make([]byte, 2048), 0o644))
	exe := filepath.Join(dir, "tool.exe")
	require.NoError(t, os.WriteFile(exe, []byte("bin"), 0o644))
	paths = append(paths, big, exe)

	eng := newPathEngine()
	eng.fail["doc03.md"] = engine.Permanent(errors.New("unsupported content"))

	report, err := NewRunner(cfg, eng.factory()).Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, len(paths), report.Total)
	assert.Equal(t, report.Total, report.Succeeded+report.Failed+report.Skipped)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 5, report.Succeeded)

	// Every input maps to exactly one result.
	seen := map[string]int{}
	for _, res := range report.Results {
		seen[res.SourcePath]++
	}
	for _, p := range paths {
		assert.Equal(t, 1, seen[p], "exactly one result for %s", p)
	}
}

func TestRun_OversizedSkippedWithoutEngineCall(t *testing.T) {
	cfg := runnerConfig(t, 2)
	dir := t.TempDir()
	big := filepath.Join(dir, "big.md")
	require.NoError(t, os.WriteFile(big, make([]byte, 4096), 0o644))

	eng := newPathEngine()
	report, err := NewRunner(cfg, eng.factory()).Run(context.Background(), []string{big})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, types.StatusSkipped, res.Status)
	assert.Equal(t, types.ErrKindValidation, res.ErrorKind)
	assert.Contains(t, res.Message, "too_large")
	assert.Zero(t, eng.callCount("big.md"), "engine must not run for rejected files")
}

func TestRun_SecondAttemptSuccess(t *testing.T) {
	cfg := runnerConfig(t, 1)
	paths := writeSources(t, t.TempDir(), 1)

	eng := newPathEngine()
	eng.once["doc00.md"] = engine.Transient(errors.New("flaky I/O"))

	report, err := NewRunner(cfg, eng.factory()).Run(context.Background(), paths)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, types.StatusSucceeded, res.Status)
	assert.Equal(t, 2, res.Attempts)
}

func TestRun_AbortOnFirstPermanentFailure(t *testing.T) {
	cfg := runnerConfig(t, 1)
	cfg.ContinueOnError = false
	paths := writeSources(t, t.TempDir(), 10)

	eng := newPathEngine()
	eng.fail["doc00.md"] = engine.Permanent(errors.New("corrupt"))

	report, err := NewRunner(cfg, eng.factory()).Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeAborted, report.Outcome)
	assert.GreaterOrEqual(t, report.Failed, 1)
	assert.Less(t, report.Total, 10, "aborted run should not process the full batch")
	assert.Equal(t, report.Total, report.Succeeded+report.Failed+report.Skipped)
}

func TestRun_ContinueOnErrorProcessesAll(t *testing.T) {
	cfg := runnerConfig(t, 3)
	paths := writeSources(t, t.TempDir(), 10)

	eng := newPathEngine()
	eng.fail["doc04.md"] = engine.Permanent(errors.New("corrupt"))

	report, err := NewRunner(cfg, eng.factory()).Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 10, report.Succeeded+report.Failed+report.Skipped)
	assert.Equal(t, 1, report.Failed)
}

func TestRun_WorkerCountDoesNotAffectOutcomes(t *testing.T) {
	dir := t.TempDir()
	paths := writeSources(t, dir, 8)

	outcomes := func(workers int) map[string]types.JobResult {
		cfg := runnerConfig(t, workers)
		eng := newPathEngine()
		eng.fail["doc02.md"] = engine.Permanent(errors.New("corrupt"))
		eng.once["doc05.md"] = engine.Transient(errors.New("flaky"))

		report, err := NewRunner(cfg, eng.factory()).Run(context.Background(), paths)
		require.NoError(t, err)

		m := map[string]types.JobResult{}
		for _, res := range report.Results {
			m[filepath.Base(res.SourcePath)] = res
		}
		return m
	}

	serial := outcomes(1)
	parallel := outcomes(4)

	require.Len(t, parallel, len(serial))
	for name, want := range serial {
		got := parallel[name]
		assert.Equal(t, want.Status, got.Status, "status for %s", name)
		assert.Equal(t, want.ErrorKind, got.ErrorKind, "error kind for %s", name)
		assert.Equal(t, want.Attempts, got.Attempts, "attempts for %s", name)
	}
}

func TestRun_CancellationLeavesNoRunningJobs(t *testing.T) {
	cfg := runnerConfig(t, 2)
	cfg.Timeout = time.Minute
	paths := writeSources(t, t.TempDir(), 6)

	eng := newPathEngine()
	eng.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := NewRunner(cfg, eng.factory()).Run(ctx, paths)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.OutcomeCanceled, report.Outcome)

	for _, res := range report.Results {
		assert.True(t, res.Status.Terminal(), "result %s not terminal: %s", res.SourcePath, res.Status)
	}
	assert.Equal(t, report.Total, report.Succeeded+report.Failed+report.Skipped)
}

func TestRun_EngineConstructionFailureAbortsRun(t *testing.T) {
	cfg := runnerConfig(t, 2)
	paths := writeSources(t, t.TempDir(), 3)

	factory := func() (engine.Engine, error) {
		return nil, errors.New("image not found")
	}

	_, err := NewRunner(cfg, factory).Run(context.Background(), paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constructing conversion engine")
}

func TestRun_EmptyInput(t *testing.T) {
	cfg := runnerConfig(t, 2)
	eng := newPathEngine()

	report, err := NewRunner(cfg, eng.factory()).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCompleted, report.Outcome)
	assert.Zero(t, report.Total)
}

func TestRun_ForcedAdmissionUnderPressure(t *testing.T) {
	cfg := runnerConfig(t, 1)
	paths := writeSources(t, t.TempDir(), 4)

	// A sampler that never reports headroom forces every admission
	// through the bounded wait.
	monitor := resource.NewMonitor(lowSampler{}, types.ResourceConfig{
		MinFreeMemory:    1000,
		AdmissionMaxWait: 10 * time.Millisecond,
		PollInterval:     2 * time.Millisecond,
	})

	eng := newPathEngine()
	report, err := NewRunner(cfg, eng.factory(), WithMonitor(monitor)).Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 4, report.Succeeded, "backpressure must never drop jobs")
}

type lowSampler struct{}

func (lowSampler) Sample() (resource.Snapshot, error) {
	return resource.Snapshot{AvailableMemory: 1}, nil
}

func TestAggregator_RecordAfterFinalizeDropped(t *testing.T) {
	agg := newAggregator(nil)
	agg.record(types.JobResult{Status: types.StatusSucceeded})
	report := agg.finalize(types.OutcomeCompleted)
	agg.record(types.JobResult{Status: types.StatusSucceeded})

	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, agg.report.Total)
}

func TestAggregator_ConcurrentRecords(t *testing.T) {
	agg := newAggregator(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.record(types.JobResult{Status: types.StatusSucceeded})
		}()
	}
	wg.Wait()

	report := agg.finalize(types.OutcomeCompleted)
	assert.Equal(t, 50, report.Total)
	assert.Equal(t, 50, report.Succeeded)
	assert.Len(t, report.Results, 50)
}
