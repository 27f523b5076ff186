package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fileflow/pkg/logger"
)

// LocalBackend stores objects as files under a root directory.
type LocalBackend struct {
	name    string
	rootDir string
	logger  *logger.Logger
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates the root directory if needed and returns a
// disk-backed storage backend.
func NewLocalBackend(name, rootDir string, log *logger.Logger) (*LocalBackend, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", rootDir, err)
	}
	return &LocalBackend{
		name:    name,
		rootDir: rootDir,
		logger:  log.WithField("component", "local-backend").WithField("backend", name),
	}, nil
}

func (b *LocalBackend) Name() string { return b.name }
func (b *LocalBackend) Kind() string { return KindLocal }

// resolve maps an object path onto the root directory, rejecting
// traversal outside it.
func (b *LocalBackend) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return filepath.Join(b.rootDir, cleaned), nil
}

func (b *LocalBackend) Upload(ctx context.Context, path string, r io.Reader, contentType string, metadata map[string]string) (*ObjectInfo, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create object file: %w", err)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(f, hasher), r)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("failed to write object %s: %w", path, err)
	}
	if closeErr != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("failed to close object %s: %w", path, closeErr)
	}

	b.logger.Debug("object uploaded", "path", path, "size", written)

	return &ObjectInfo{
		Path:        path,
		Size:        written,
		ContentType: contentType,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		ModifiedAt:  time.Now(),
		Metadata:    metadata,
	}, nil
}

func (b *LocalBackend) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", path, err)
	}
	return f, nil
}

func (b *LocalBackend) Delete(ctx context.Context, path string) (bool, error) {
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return true, nil
}

func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *LocalBackend) Copy(ctx context.Context, src, dst string) error {
	stream, err := b.Download(ctx, src)
	if err != nil {
		return err
	}
	defer stream.Close()

	_, err = b.Upload(ctx, dst, stream, "", nil)
	return err
}

func (b *LocalBackend) Move(ctx context.Context, src, dst string) error {
	srcFull, err := b.resolve(src)
	if err != nil {
		return err
	}
	dstFull, err := b.resolve(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstFull), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.Rename(srcFull, dstFull); err != nil {
		return fmt.Errorf("failed to move object %s: %w", src, err)
	}
	return nil
}

func (b *LocalBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.Walk(b.rootDir, func(full string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(b.rootDir, full)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		objects = append(objects, ObjectInfo{
			Path:       rel,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	return objects, nil
}

func (b *LocalBackend) CreateDir(ctx context.Context, path string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}

func (b *LocalBackend) DeleteDir(ctx context.Context, path string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}

func (b *LocalBackend) Checksum(ctx context.Context, path string) (string, error) {
	stream, err := b.Download(ctx, path)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, stream); err != nil {
		return "", fmt.Errorf("failed to checksum object %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (b *LocalBackend) Usage(ctx context.Context) (*UsageInfo, error) {
	var usage UsageInfo

	var stat syscall.Statfs_t
	if err := syscall.Statfs(b.rootDir, &stat); err == nil {
		usage.TotalBytes = int64(stat.Blocks) * int64(stat.Bsize)
		usage.FreeBytes = int64(stat.Bavail) * int64(stat.Bsize)
	}

	err := filepath.Walk(b.rootDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		usage.UsedBytes += info.Size()
		usage.FileCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute usage: %w", err)
	}
	return &usage, nil
}

func (b *LocalBackend) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	err := filepath.Walk(b.rootDir, func(full string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(full); rmErr != nil {
				b.logger.Warn("failed to remove stale object", "path", full, "error", rmErr)
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cleanup walk failed: %w", err)
	}
	return removed, nil
}

func (b *LocalBackend) IsAvailable(ctx context.Context) bool {
	info, err := os.Stat(b.rootDir)
	return err == nil && info.IsDir()
}
