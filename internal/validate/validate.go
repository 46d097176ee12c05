// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate performs pre-admission checks on candidate files.
// A file rejected here is recorded as a skipped job and never reaches the
// scheduler queue; validation itself is side-effect-free.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pdiddy/docbatch/pkg/types"
)

// supportedExtensions lists the document formats the engine accepts.
var supportedExtensions = map[string]bool{
	".pdf":   true,
	".docx":  true,
	".xlsx":  true,
	".pptx":  true,
	".md":    true,
	".html":  true,
	".xhtml": true,
	".csv":   true,
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".tiff":  true,
	".bmp":   true,
	".webp":  true,
}

// Reason identifies which admission check a file failed.
type Reason string

const (
	ReasonMissing      Reason = "missing"
	ReasonUnreadable   Reason = "unreadable"
	ReasonUnsupported  Reason = "unsupported"
	ReasonEmpty        Reason = "empty"
	ReasonTooLarge     Reason = "too_large"
	ReasonTooManyPages Reason = "too_many_pages"
)

// Rejection reports why a file failed validation.
type Rejection struct {
	Path   string
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s (%s)", r.Path, r.Reason, r.Detail)
}

// pageCounter probes the page count of a PDF. Overridable in tests; the
// production probe reads only the document catalog, not page content.
var pageCounter = api.PageCountFile

// Check validates path against the batch limits. It returns nil when the
// file is admissible or a *Rejection describing the first failing check.
// Checks run in order: existence, readability, extension, size, and for
// PDFs a cheap page-count probe.
func Check(path string, cfg types.BatchConfig) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Rejection{Path: path, Reason: ReasonMissing, Detail: "file does not exist"}
		}
		return &Rejection{Path: path, Reason: ReasonUnreadable, Detail: err.Error()}
	}
	if !info.Mode().IsRegular() {
		return &Rejection{Path: path, Reason: ReasonUnsupported, Detail: "not a regular file"}
	}

	f, err := os.Open(path)
	if err != nil {
		return &Rejection{Path: path, Reason: ReasonUnreadable, Detail: err.Error()}
	}
	f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return &Rejection{Path: path, Reason: ReasonUnsupported, Detail: fmt.Sprintf("extension %q not supported", ext)}
	}

	if info.Size() == 0 {
		return &Rejection{Path: path, Reason: ReasonEmpty, Detail: "file is empty"}
	}
	if info.Size() > cfg.MaxFileSize {
		return &Rejection{
			Path:   path,
			Reason: ReasonTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", info.Size(), cfg.MaxFileSize),
		}
	}

	if ext == ".pdf" {
		pages, err := pageCounter(path)
		if err != nil {
			// An unparseable catalog will fail conversion anyway; let the
			// engine produce the authoritative error.
			return nil
		}
		if pages > cfg.MaxPages {
			return &Rejection{
				Path:   path,
				Reason: ReasonTooManyPages,
				Detail: fmt.Sprintf("%d pages exceeds limit of %d", pages, cfg.MaxPages),
			}
		}
	}

	return nil
}

// Discover walks dir and returns the sorted list of candidate files:
// regular, non-hidden files with a supported extension. Limit checks are
// left to Check so rejected files still surface in the report.
func Discover(dir string) ([]string, error) {
	var candidates []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(candidates)
	return candidates, nil
}
