// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the docbatch CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the docbatch CLI.
var rootCmd = &cobra.Command{
	Use:   "docbatch",
	Short: "Batch document-to-Markdown conversion",
	Long: `docbatch converts heterogeneous documents (PDF, Office, images, HTML,
CSV) into normalized Markdown using a containerized conversion engine.

A bounded worker pool drives conversions concurrently; each job gets a
per-attempt timeout, transient failures are retried with backoff, and the
run ends with a per-file report. Use subcommands to run a batch, inspect
system resources, pull the engine image, or list past runs.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./docbatch.yaml or ~/.config/docbatch/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("docbatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "docbatch"))
		}
	}

	viper.SetEnvPrefix("DOCBATCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// fatalError marks failures that warrant exit code 2: fatal setup
// errors and runs where nothing converted. Plain errors exit 1.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error { return &fatalError{err: err} }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var fe *fatalError
		if errors.As(err, &fe) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
