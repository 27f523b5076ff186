// Package transaction guarantees release of temporary file references
// around business operations. The operation's outcome is always what
// propagates to the caller; cleanup failures are logged and swallowed,
// never substituted for the real result.
package transaction

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"fileflow/internal/fileflow/tempfile"
	fferrors "fileflow/pkg/errors"
	"fileflow/pkg/logger"
)

// Executor wraps business operations with finally-style temp file
// cleanup.
type Executor struct {
	temps  *tempfile.Manager
	logger *logger.Logger
}

// NewExecutor builds an executor over the given temp file manager.
func NewExecutor(temps *tempfile.Manager, log *logger.Logger) *Executor {
	return &Executor{
		temps:  temps,
		logger: log.WithField("component", "transaction"),
	}
}

// WithCleanup runs op and releases the reference after it settles,
// success or failure.
func (e *Executor) WithCleanup(ctx context.Context, referenceID string, op func(context.Context) error) error {
	defer e.release(ctx, referenceID)
	return op(ctx)
}

// WithCleanupAll runs op and then releases every reference in
// parallel; each release is independently fault-isolated.
func (e *Executor) WithCleanupAll(ctx context.Context, referenceIDs []string, op func(context.Context) error) error {
	defer func() {
		var wg sync.WaitGroup
		for _, id := range referenceIDs {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.release(ctx, id)
			}()
		}
		wg.Wait()
	}()
	return op(ctx)
}

// WithTemporaryFile spools the stream into a fresh temporary file, runs
// op against its reference id, and releases the reference afterwards
// regardless of outcome.
func (e *Executor) WithTemporaryFile(ctx context.Context, name string, size int64, contentType string, r io.Reader, op func(ctx context.Context, referenceID string) error) error {
	ref, err := e.temps.Create(ctx, name, size, contentType, r)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	defer e.release(ctx, ref.ID)
	return op(ctx, ref.ID)
}

// EnsureValid verifies a caller-supplied reference id before it is
// trusted, cleaning up whatever is left of an invalid reference. It
// distinguishes expired from never-existed so callers can choose
// between retrying the upload and treating the failure as permanent.
func (e *Executor) EnsureValid(ctx context.Context, referenceID string) error {
	if e.temps.IsValid(referenceID) {
		return nil
	}

	ref, err := e.temps.GetReference(referenceID)
	if err != nil {
		return fmt.Errorf("reference %s: %w", referenceID, fferrors.ErrReferenceNotFound)
	}

	// reference record survives but is expired or lost its bytes
	e.release(ctx, referenceID)
	if ref.IsExpired(time.Now()) {
		return fmt.Errorf("reference %s: %w", referenceID, fferrors.ErrReferenceExpired)
	}
	return fmt.Errorf("reference %s: %w", referenceID, fferrors.ErrReferenceNotFound)
}

// release deletes the reference, swallowing every failure.
func (e *Executor) release(ctx context.Context, referenceID string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("panic during temp file cleanup", "referenceId", referenceID, "panic", rec)
		}
	}()

	if !e.temps.Delete(ctx, referenceID) {
		e.logger.Debug("reference already released", "referenceId", referenceID)
	}
}
