// Package errors defines the sentinel errors shared across fileflow
// components. Callers discriminate error kinds with errors.Is rather
// than matching on message text.
package errors

import "errors"

var (
	// Validation errors, rejected before any I/O happens.
	ErrEmptyFileName    = errors.New("file name must not be blank")
	ErrEmptyContentType = errors.New("content type must not be blank")
	ErrInvalidFileSize  = errors.New("file size must be positive")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")

	// Temporary file lifecycle errors.
	ErrReferenceNotFound = errors.New("temporary file reference not found")
	ErrReferenceExpired  = errors.New("temporary file reference expired")

	// Storage errors.
	ErrObjectNotFound = errors.New("stored object not found")

	// Routing errors.
	ErrNoBackendAvailable = errors.New("no storage backend available")

	// Pipeline errors.
	ErrPipelineTimeout = errors.New("pipeline processing timed out")
)
