// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import "errors"

// classifiedError tags an engine failure as retryable or not. The retry
// guard inspects the tag with IsTransient; untagged errors are treated as
// permanent.
type classifiedError struct {
	err       error
	transient bool
}

func (e *classifiedError) Error() string { return e.err.Error() }

func (e *classifiedError) Unwrap() error { return e.err }

// Transient wraps err as a recoverable failure, eligible for retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: true}
}

// Permanent wraps err as an unrecoverable failure; the job fails
// immediately without retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: false}
}

// IsTransient reports whether err carries the transient classification.
func IsTransient(err error) bool {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.transient
	}
	return false
}
