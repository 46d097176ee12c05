// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docbatch/internal/batch"
	"github.com/pdiddy/docbatch/internal/container"
	"github.com/pdiddy/docbatch/internal/engine"
	"github.com/pdiddy/docbatch/internal/history"
	"github.com/pdiddy/docbatch/internal/resource"
	"github.com/pdiddy/docbatch/internal/validate"
	"github.com/pdiddy/docbatch/pkg/types"
)

const defaultDataDir = ".docbatch"

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Convert a batch of documents to Markdown",
	Long: `Convert the given files, or every supported file under the input
directory, to Markdown. Conversions run concurrently across a bounded
worker pool with per-attempt timeouts and retries for transient
failures. The run ends with a per-file report.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringP("input", "i", "entry_files", "directory scanned for supported documents")
	flags.StringP("output", "o", "output_texts", "directory Markdown output is written to")
	flags.IntP("workers", "w", types.DefaultWorkers, "number of concurrent conversions")
	flags.Duration("timeout", types.DefaultTimeout, "per-attempt conversion deadline")
	flags.Int("max-retries", types.DefaultMaxRetries, "retries after a failed attempt")
	flags.Int64("max-file-size", types.DefaultMaxFileSize, "largest admissible input in bytes")
	flags.Int("max-pages", types.DefaultMaxPages, "largest admissible PDF page count")
	flags.Bool("continue-on-error", false, "keep converting past permanent failures")
	flags.String("ocr", string(types.OCRAuto), "OCR mode: always, auto, or never")
	flags.String("table-mode", string(types.TableAccurate), "table recognition: fast or accurate")
	flags.Bool("enrichment", false, "enable code, formula, and picture enrichment")
	flags.Bool("allow-remote", false, "permit the engine to call remote services")
	flags.String("artifacts-dir", "", "locally cached engine models (empty: image bundled)")
	flags.String("image", types.DefaultEngineImage, "conversion engine container image")
	flags.Bool("dry-run", false, "list what would be converted and exit")
	flags.String("report", "", "write the full batch report to this YAML file")
	flags.String("data-dir", defaultDataDir, "directory for the run-history database")
	flags.Bool("no-history", false, "do not record this run in the history database")

	for _, key := range []string{
		"input", "output", "workers", "timeout", "max-retries", "max-file-size",
		"max-pages", "continue-on-error", "ocr", "table-mode", "enrichment",
		"allow-remote", "artifacts-dir", "image", "data-dir",
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	batchCfg := types.BatchConfig{
		Workers:         viper.GetInt("workers"),
		Timeout:         viper.GetDuration("timeout"),
		MaxRetries:      viper.GetInt("max-retries"),
		MaxFileSize:     viper.GetInt64("max-file-size"),
		MaxPages:        viper.GetInt("max-pages"),
		ContinueOnError: viper.GetBool("continue-on-error"),
		OutputDir:       viper.GetString("output"),
	}
	engineCfg, err := engineConfigFromFlags()
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		inputDir := viper.GetString("input")
		paths, err = validate.Discover(inputDir)
		if err != nil {
			return fatal(fmt.Errorf("scanning %s: %w", inputDir, err))
		}
	}
	if len(paths) == 0 {
		fmt.Println("No supported documents found.")
		return nil
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		printDryRun(paths, batchCfg)
		return nil
	}

	monitor := resource.NewMonitor(resource.SystemSampler{}, types.ResourceConfig{})
	batchCfg.Workers = clampWorkers(batchCfg.Workers, monitor)

	rt, err := container.DetectRuntime()
	if err != nil {
		return fatal(fmt.Errorf("no container runtime: %w", err))
	}
	fmt.Printf("Using %s runtime, image %s, %d worker(s)\n",
		rt.Name(), engineCfg.Image, batchCfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var done atomic.Int64
	total := len(paths)
	progress := func(res types.JobResult) {
		n := done.Add(1)
		switch res.Status {
		case types.StatusSucceeded:
			fmt.Printf("[%3d/%d] converted: %s -> %s (%s)\n",
				n, total, filepath.Base(res.SourcePath), res.OutputPath,
				res.Duration.Round(100*time.Millisecond))
		case types.StatusSkipped:
			fmt.Printf("[%3d/%d] skipped:   %s (%s)\n",
				n, total, filepath.Base(res.SourcePath), res.Message)
		default:
			fmt.Printf("[%3d/%d] failed:    %s (%s)\n",
				n, total, filepath.Base(res.SourcePath), res.Message)
		}
	}

	runner := batch.NewRunner(batchCfg, engine.NewFactory(rt, engineCfg),
		batch.WithMonitor(monitor),
		batch.WithProgress(progress))

	report, runErr := runner.Run(ctx, paths)
	if runErr != nil && report.Total == 0 && len(report.Results) == 0 {
		return fatal(runErr)
	}

	printSummary(report)

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := writeReportFile(path, report); err != nil {
			return err
		}
		fmt.Println("Report written to", path)
	}

	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		saveHistory(cmd.Context(), report)
	}

	// Exit codes: 0 full success, 1 partial failure, 2 nothing converted
	// or a fatal error.
	var batchErr error
	switch {
	case report.Outcome == types.OutcomeCanceled:
		batchErr = fmt.Errorf("run canceled: %d of %d file(s) finished", report.Total, total)
	case report.Outcome == types.OutcomeAborted:
		batchErr = fmt.Errorf("run aborted after permanent failure: %d file(s) failed", report.Failed)
	case report.HasFailures():
		batchErr = fmt.Errorf("%d file(s) failed conversion", report.Failed)
	default:
		return nil
	}
	if report.Succeeded == 0 {
		return fatal(batchErr)
	}
	return batchErr
}

func engineConfigFromFlags() (types.EngineConfig, error) {
	cfg := types.EngineConfig{
		Image:            viper.GetString("image"),
		OCRMode:          types.OCRMode(viper.GetString("ocr")),
		TableMode:        types.TableMode(viper.GetString("table-mode")),
		EnableEnrichment: viper.GetBool("enrichment"),
		AllowRemote:      viper.GetBool("allow-remote"),
		ArtifactsDir:     viper.GetString("artifacts-dir"),
	}

	switch cfg.OCRMode {
	case types.OCRAlways, types.OCRAuto, types.OCRNever:
	default:
		return cfg, fmt.Errorf("invalid --ocr %q: want always, auto, or never", cfg.OCRMode)
	}
	switch cfg.TableMode {
	case types.TableFast, types.TableAccurate:
	default:
		return cfg, fmt.Errorf("invalid --table-mode %q: want fast or accurate", cfg.TableMode)
	}
	return cfg, nil
}

// clampWorkers caps the worker count at the CPU count, and further by
// available memory at roughly 2 GiB per concurrent conversion. The floor
// is always one worker.
func clampWorkers(workers int, monitor *resource.Monitor) int {
	if workers < 1 {
		workers = 1
	}
	if n := runtime.NumCPU(); workers > n {
		workers = n
	}

	snap, err := monitor.Sample()
	if err != nil {
		return workers
	}
	const perWorker = 2 * 1024 * 1024 * 1024
	if byMem := int(snap.AvailableMemory / perWorker); byMem < workers {
		if byMem < 1 {
			byMem = 1
		}
		fmt.Printf("Limiting to %d worker(s): %.1f GiB memory available\n",
			byMem, float64(snap.AvailableMemory)/(1024*1024*1024))
		workers = byMem
	}
	return workers
}

func printDryRun(paths []string, cfg types.BatchConfig) {
	fmt.Printf("Would convert %d file(s) to %s:\n", len(paths), cfg.OutputDir)
	for i, path := range paths {
		if i == 10 {
			fmt.Printf("  ... and %d more\n", len(paths)-i)
			break
		}
		marker := "  "
		if err := validate.Check(path, cfg); err != nil {
			marker = "! "
			fmt.Printf("%s%s (would skip: %v)\n", marker, path, err)
			continue
		}
		fmt.Printf("%s%s -> %s\n", marker, path, batch.OutputPath(cfg.OutputDir, path))
	}
}

func printSummary(report types.BatchReport) {
	fmt.Printf("\nBatch %s: %d converted, %d failed, %d skipped (total %d) in %s\n",
		report.Outcome, report.Succeeded, report.Failed, report.Skipped,
		report.Total, report.Duration().Round(time.Second))
}

func writeReportFile(path string, report types.BatchReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// saveHistory records the run in the local history database. History is
// best-effort: a storage failure warns and never fails the run.
func saveHistory(ctx context.Context, report types.BatchReport) {
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}

	store, err := history.NewStore(viper.GetString("data-dir"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning: could not open history database:", err)
		return
	}
	defer store.Close()

	if _, err := store.SaveReport(ctx, report); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: could not record run history:", err)
	}
}
