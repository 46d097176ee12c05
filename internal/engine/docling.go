// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/docbatch/internal/container"
	"github.com/pdiddy/docbatch/pkg/types"
)

// DoclingEngine converts documents by piping them through the docling
// container image. It depends on a container.Runtime (docker or podman)
// injected at construction time.
type DoclingEngine struct {
	runtime container.Runtime
	image   string
	env     []string
}

// NewDoclingEngine creates an engine that runs the configured docling
// image. It verifies that the image exists locally before returning, so a
// misconfigured engine fails the run before any job is scheduled.
func NewDoclingEngine(rt container.Runtime, cfg types.EngineConfig) (*DoclingEngine, error) {
	image := cfg.Image
	if image == "" {
		image = types.DefaultEngineImage
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, fmt.Errorf("engine image not available in %s: %w", rt.Name(), err)
	}
	return &DoclingEngine{
		runtime: rt,
		image:   image,
		env:     engineEnv(cfg),
	}, nil
}

// NewFactory returns a Factory that builds one DoclingEngine per executor.
// Every instance shares the runtime but owns its container invocations, so
// no engine state crosses worker boundaries.
func NewFactory(rt container.Runtime, cfg types.EngineConfig) Factory {
	return func() (Engine, error) {
		return NewDoclingEngine(rt, cfg)
	}
}

// engineEnv maps the engine configuration onto the container environment.
func engineEnv(cfg types.EngineConfig) []string {
	ocr := cfg.OCRMode
	if ocr == "" {
		ocr = types.OCRAlways
	}
	table := cfg.TableMode
	if table == "" {
		table = types.TableAccurate
	}

	env := []string{
		"DOCLING_OCR=" + string(ocr),
		"DOCLING_TABLE_MODE=" + string(table),
	}
	if cfg.EnableEnrichment {
		env = append(env, "DOCLING_ENRICH=1")
	}
	if cfg.AllowRemote {
		env = append(env, "DOCLING_ALLOW_REMOTE=1")
	}
	if cfg.ArtifactsDir != "" {
		env = append(env, "DOCLING_ARTIFACTS_PATH="+cfg.ArtifactsDir)
	}
	return env
}

// Convert pipes the file at path through the docling container and returns
// the resulting Markdown text. Failures to read the input or an empty
// engine output are permanent; a killed or cancelled container surfaces
// the context error for the guard to classify.
func (d *DoclingEngine) Convert(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", Permanent(fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	env := append([]string{"DOCLING_INPUT_EXT=" + strings.ToLower(filepath.Ext(path))}, d.env...)

	var out bytes.Buffer
	if err := d.runtime.Run(ctx, d.image, env, f, &out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		// Container crashes are treated as transient: the engine process
		// is fresh on every attempt, and flaky OCR model loads recover
		// on retry. Unsupported or corrupt content is reported by the
		// engine as output on a clean exit, not a crash.
		return "", Transient(fmt.Errorf("converting %s: %w", path, err))
	}

	if out.Len() == 0 {
		return "", Permanent(fmt.Errorf("engine produced empty output for %s", path))
	}

	return out.String(), nil
}
