// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docbatch/internal/history"
	"github.com/pdiddy/docbatch/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past batch runs, or show one run's per-file results",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := viper.GetString("data-dir")
		if dataDir == "" {
			dataDir = defaultDataDir
		}
		store, err := history.NewStore(dataDir)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer store.Close()

		if len(args) == 1 {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			return showRun(cmd, store, runID)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.ListRuns(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No recorded runs.")
			return nil
		}

		fmt.Printf("%-5s %-10s %6s %6s %6s %8s  %s\n",
			"ID", "OUTCOME", "OK", "FAIL", "SKIP", "TIME", "STARTED")
		for _, run := range runs {
			fmt.Printf("%-5d %-10s %6d %6d %6d %8s  %s\n",
				run.ID, run.Outcome, run.Succeeded, run.Failed, run.Skipped,
				run.Finished.Sub(run.Started).Round(time.Second),
				run.Started.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func showRun(cmd *cobra.Command, store *history.Store, runID int64) error {
	results, err := store.Results(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("reading run %d: %w", runID, err)
	}
	if len(results) == 0 {
		fmt.Printf("No results for run %d.\n", runID)
		return nil
	}

	for _, res := range results {
		switch res.Status {
		case types.StatusSucceeded:
			fmt.Printf("converted: %s -> %s (%s, %d attempt(s))\n",
				res.SourcePath, res.OutputPath,
				res.Duration.Round(100*time.Millisecond), res.Attempts)
		case types.StatusSkipped:
			fmt.Printf("skipped:   %s (%s)\n", res.SourcePath, res.Message)
		default:
			fmt.Printf("failed:    %s (%s: %s)\n", res.SourcePath, res.ErrorKind, res.Message)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}
