// Package tempfile manages the holding area for in-flight uploads:
// spooling incoming streams to disk, tracking reference lifecycle, and
// sweeping expired files in the background. References are independent
// of each other, so all mutations are single-key operations on the
// reference table; no multi-key transactions exist.
package tempfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/metrics"
	"fileflow/pkg/config"
	fferrors "fileflow/pkg/errors"
	"fileflow/pkg/logger"
)

// Manager owns the temporary file lifecycle. Safe for concurrent use:
// the reference table is the only structure mutated by concurrent
// uploads and the background sweep.
type Manager struct {
	cfg      config.TempFileConfig
	observer *metrics.Observer
	logger   *logger.Logger

	mutex sync.RWMutex
	refs  map[string]*domain.TemporaryFileReference

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates the temp directory if needed and starts the background
// expiry sweep. The observer may be nil. Call Stop on shutdown.
func New(cfg config.TempFileConfig, observer *metrics.Observer, log *logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create temp directory %s: %w", cfg.Directory, err)
	}

	m := &Manager{
		cfg:      cfg,
		observer: observer,
		logger:   log.WithField("component", "tempfile-manager"),
		refs:     make(map[string]*domain.TemporaryFileReference),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go m.sweep()
	return m, nil
}

// Stop cancels the background sweep and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

// sweep runs CleanupExpired on a fixed interval until stopped.
func (m *Manager) sweep() {
	defer close(m.done)

	interval := m.cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			removed := m.CleanupExpired(context.Background())
			if removed > 0 {
				m.logger.Info("expiry sweep completed", "removed", removed)
			}
		}
	}
}

// Create validates the inputs, spools the stream to a uniquely named
// file under the temp directory while computing its checksum, and
// registers a reference expiring after the configured duration.
// Validation happens before any storage is touched.
func (m *Manager) Create(ctx context.Context, name string, size int64, contentType string, r io.Reader) (*domain.TemporaryFileReference, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fferrors.ErrEmptyFileName
	}
	if strings.TrimSpace(contentType) == "" {
		return nil, fferrors.ErrEmptyContentType
	}
	if size < 1 {
		return nil, fferrors.ErrInvalidFileSize
	}
	if size > m.cfg.MaxFileSize {
		return nil, fmt.Errorf("declared size %d: %w", size, fferrors.ErrFileTooLarge)
	}

	id := uuid.NewString()
	path := filepath.Join(m.cfg.Directory, id)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(f, hasher), io.LimitReader(r, m.cfg.MaxFileSize+1))
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if written > m.cfg.MaxFileSize {
		_ = os.Remove(path)
		return nil, fmt.Errorf("stream exceeded %d bytes: %w", m.cfg.MaxFileSize, fferrors.ErrFileTooLarge)
	}

	now := time.Now()
	ref := &domain.TemporaryFileReference{
		ID:          id,
		FileName:    name,
		Size:        written,
		ContentType: contentType,
		StoragePath: path,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.DefaultExpiration),
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}

	// ids are generated fresh per call, so this is insert-once
	m.mutex.Lock()
	m.refs[id] = ref
	m.mutex.Unlock()

	m.logger.Debug("temporary file created",
		"referenceId", id, "file", name, "size", written, "expiresAt", ref.ExpiresAt)

	refCopy := *ref
	return &refCopy, nil
}

// GetStream opens the reference's bytes for reading. An expired
// reference is eagerly cleaned up; a live reference whose physical file
// disappeared is evicted rather than served as valid.
func (m *Manager) GetStream(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mutex.RLock()
	ref, exists := m.refs[id]
	m.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("reference %s: %w", id, fferrors.ErrReferenceNotFound)
	}

	if ref.IsExpired(time.Now()) {
		m.removeReference(id)
		return nil, fmt.Errorf("reference %s: %w", id, fferrors.ErrReferenceExpired)
	}

	f, err := os.Open(ref.StoragePath)
	if err != nil {
		if os.IsNotExist(err) {
			// stale reference: the physical file is gone
			m.removeReference(id)
			return nil, fmt.Errorf("reference %s: %w", id, fferrors.ErrReferenceNotFound)
		}
		return nil, fmt.Errorf("failed to open temp file for %s: %w", id, err)
	}
	return f, nil
}

// GetReference returns a copy of the reference's metadata.
func (m *Manager) GetReference(id string) (*domain.TemporaryFileReference, error) {
	m.mutex.RLock()
	ref, exists := m.refs[id]
	m.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("reference %s: %w", id, fferrors.ErrReferenceNotFound)
	}

	refCopy := *ref
	return &refCopy, nil
}

// IsValid reports whether the reference exists, has not expired, and
// still has its physical bytes. A reference whose file disappeared is
// evicted on this access.
func (m *Manager) IsValid(id string) bool {
	m.mutex.RLock()
	ref, exists := m.refs[id]
	m.mutex.RUnlock()

	if !exists {
		return false
	}
	if ref.IsExpired(time.Now()) {
		return false
	}
	if _, err := os.Stat(ref.StoragePath); err != nil {
		m.removeReference(id)
		return false
	}
	return true
}

// Delete removes the reference and its physical file. Idempotent:
// deleting an absent reference returns false, never an error. A
// physical deletion failure is logged but still counts as logical
// success so cleanup can never block a caller's control flow.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	ref, taken := m.take(id)
	if !taken {
		return false
	}

	if err := os.Remove(ref.StoragePath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove temp file", "referenceId", id, "path", ref.StoragePath, "error", err)
	}

	m.logger.Debug("temporary file deleted", "referenceId", id, "file", ref.FileName)
	return true
}

// CleanupExpired removes every expired reference and its physical file,
// returning the count removed. Failures on individual files are
// isolated and do not abort the sweep.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	now := time.Now()

	m.mutex.RLock()
	expired := make([]string, 0)
	for id, ref := range m.refs {
		if ref.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	m.mutex.RUnlock()

	removed := 0
	for _, id := range expired {
		// take is atomic, so a racing explicit delete and the sweep
		// cannot both act on the same reference
		ref, taken := m.take(id)
		if !taken {
			continue
		}
		if err := os.Remove(ref.StoragePath); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("sweep failed to remove temp file",
				"referenceId", id, "path", ref.StoragePath, "error", err)
		}
		removed++
	}

	m.observer.RecordSweep(removed)
	return removed
}

// Count returns the number of live references.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.refs)
}

// take atomically removes and returns the reference. Only one caller
// ever proceeds to act on the physical file for a given id.
func (m *Manager) take(id string) (*domain.TemporaryFileReference, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ref, exists := m.refs[id]
	if !exists {
		return nil, false
	}
	delete(m.refs, id)
	return ref, true
}

// removeReference evicts a reference and best-effort removes its file.
func (m *Manager) removeReference(id string) {
	ref, taken := m.take(id)
	if !taken {
		return
	}
	if err := os.Remove(ref.StoragePath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove temp file during eviction",
			"referenceId", id, "path", ref.StoragePath, "error", err)
	}
}
