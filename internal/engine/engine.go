// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine defines the document conversion capability and its
// container-backed implementation. The orchestrator treats the engine as
// opaque: it hands over a file path and receives Markdown or an error.
package engine

import "context"

// Engine transforms a document file into Markdown text. Implementations
// are not required to be safe for concurrent calls; the scheduler
// constructs one Engine per executor via a Factory.
type Engine interface {
	// Convert reads the document at path and returns the Markdown
	// content. The conversion is cancelled when ctx is done.
	Convert(ctx context.Context, path string) (string, error)
}

// Factory constructs a fresh Engine instance. A Factory error before any
// job is scheduled aborts the whole run.
type Factory func() (Engine, error)
