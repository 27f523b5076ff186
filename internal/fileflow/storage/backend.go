// Package storage defines the abstract storage backend contract the
// router and ingestion pipeline depend on, plus the concrete backends
// shipped with fileflow. Components never depend on a concrete backend
// type, only on the Backend interface.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend kinds. The router reasons about kinds, not concrete types.
const (
	KindLocal  = "local"
	KindS3     = "s3"
	KindOSS    = "oss"
	KindMemory = "memory"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Path        string
	Size        int64
	ContentType string
	Checksum    string
	ModifiedAt  time.Time
	Metadata    map[string]string
}

// UsageInfo reports capacity figures for a backend.
type UsageInfo struct {
	TotalBytes int64
	UsedBytes  int64
	FreeBytes  int64
	FileCount  int64
}

// Backend is the abstract storage capability contract. All methods must
// be safe for concurrent use.
type Backend interface {
	// Name returns the backend's registry name (e.g. "LOCAL", "S3").
	Name() string
	// Kind returns the backend kind ("local", "s3", "oss", "memory").
	Kind() string

	// Upload writes the stream to path and returns the stored object's info.
	Upload(ctx context.Context, path string, r io.Reader, contentType string, metadata map[string]string) (*ObjectInfo, error)
	// Download opens the object at path for reading. The caller closes
	// the returned stream.
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the object at path. Deleting an absent object is
	// not an error; the boolean reports whether anything was removed.
	Delete(ctx context.Context, path string) (bool, error)
	// Exists reports whether an object is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
	// Copy duplicates src to dst.
	Copy(ctx context.Context, src, dst string) error
	// Move relocates src to dst.
	Move(ctx context.Context, src, dst string) error
	// List returns the objects whose paths start with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// CreateDir ensures a directory (or key prefix) exists.
	CreateDir(ctx context.Context, path string) error
	// DeleteDir removes a directory (or key prefix) and its contents.
	DeleteDir(ctx context.Context, path string) error
	// Checksum returns the hex SHA-256 digest of the object at path.
	Checksum(ctx context.Context, path string) (string, error)
	// Usage reports the backend's capacity figures.
	Usage(ctx context.Context) (*UsageInfo, error)
	// Cleanup removes objects older than the given age and returns how
	// many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
	// IsAvailable reports whether the backend can currently serve
	// requests.
	IsAvailable(ctx context.Context) bool
}
