// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// BatchConfig holds run-wide settings for a batch conversion. It is
// constructed once before a run and shared read-only by all workers.
type BatchConfig struct {
	// Workers is the number of concurrent executors (default 4, capped
	// at the CPU count by the CLI).
	Workers int `json:"workers" yaml:"workers"`

	// Timeout is the per-attempt conversion deadline (default 5m).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retry attempts after the first failed
	// attempt; a job runs at most MaxRetries+1 attempts (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxFileSize is the largest admissible input file in bytes
	// (default 100 MiB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxPages is the largest admissible page count for paginated
	// formats (default 1000).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// ContinueOnError keeps the run going past permanent failures.
	// When false, the first permanent failure aborts the batch.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`

	// OutputDir is the directory Markdown output is written to. Output
	// paths are derived from the source file name under this directory.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// Default limits mirror the conversion engine's practical envelope.
const (
	DefaultWorkers     = 4
	DefaultTimeout     = 5 * time.Minute
	DefaultMaxRetries  = 2
	DefaultMaxFileSize = 100 * 1024 * 1024
	DefaultMaxPages    = 1000
)

// ResourceConfig holds admission-backpressure settings for the resource
// monitor.
type ResourceConfig struct {
	// MinFreeMemory is the available-memory floor in bytes below which
	// new work is held back (default 2 GiB).
	MinFreeMemory uint64 `json:"min_free_memory" yaml:"min_free_memory"`

	// MaxCPUPercent is the CPU utilization ceiling above which new work
	// is held back (default 90).
	MaxCPUPercent float64 `json:"max_cpu_percent" yaml:"max_cpu_percent"`

	// AdmissionMaxWait bounds how long admission may block waiting for
	// headroom before the job is admitted anyway (default 30s).
	AdmissionMaxWait time.Duration `json:"admission_max_wait" yaml:"admission_max_wait"`

	// PollInterval is the delay between headroom checks while waiting
	// (default 2s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

const (
	DefaultMinFreeMemory    = 2 * 1024 * 1024 * 1024
	DefaultMaxCPUPercent    = 90.0
	DefaultAdmissionMaxWait = 30 * time.Second
	DefaultPollInterval     = 2 * time.Second
)

// OCRMode selects when the engine runs OCR on page images.
type OCRMode string

const (
	OCRAlways OCRMode = "always"
	OCRAuto   OCRMode = "auto"
	OCRNever  OCRMode = "never"
)

// TableMode selects the table-structure recognition profile.
type TableMode string

const (
	TableFast     TableMode = "fast"
	TableAccurate TableMode = "accurate"
)

// EngineConfig holds settings for constructing the conversion engine.
type EngineConfig struct {
	// Image is the engine container image (default "docling:latest").
	Image string `json:"image" yaml:"image"`

	// OCRMode controls OCR behavior: always, auto, or never.
	OCRMode OCRMode `json:"ocr_mode" yaml:"ocr_mode"`

	// TableMode controls table recognition: fast or accurate.
	TableMode TableMode `json:"table_mode" yaml:"table_mode"`

	// EnableEnrichment turns on code, formula, and picture enrichment.
	EnableEnrichment bool `json:"enable_enrichment" yaml:"enable_enrichment"`

	// AllowRemote permits the engine to call remote services.
	AllowRemote bool `json:"allow_remote" yaml:"allow_remote"`

	// ArtifactsDir points the engine at locally cached models; empty
	// means the image's bundled models.
	ArtifactsDir string `json:"artifacts_dir,omitempty" yaml:"artifacts_dir,omitempty"`
}

// DefaultEngineImage is the conversion engine container image.
const DefaultEngineImage = "docling:latest"
