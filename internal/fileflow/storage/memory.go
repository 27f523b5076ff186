package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	fferrors "fileflow/pkg/errors"
)

// MemoryBackend keeps objects in memory. It stands in for object-store
// backends whose wire protocols live outside this module, and backs the
// test suites. The kind is injectable so the router can treat it as an
// S3 or OSS target.
type MemoryBackend struct {
	name string
	kind string

	mutex     sync.RWMutex
	objects   map[string]memoryObject
	available bool
}

type memoryObject struct {
	data        []byte
	contentType string
	checksum    string
	modifiedAt  time.Time
	metadata    map[string]string
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an available in-memory backend of the given
// kind.
func NewMemoryBackend(name, kind string) *MemoryBackend {
	if kind == "" {
		kind = KindMemory
	}
	return &MemoryBackend{
		name:      name,
		kind:      kind,
		objects:   make(map[string]memoryObject),
		available: true,
	}
}

func (b *MemoryBackend) Name() string { return b.name }
func (b *MemoryBackend) Kind() string { return b.kind }

// SetAvailable toggles availability, used to exercise router fallback
// behavior.
func (b *MemoryBackend) SetAvailable(available bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.available = available
}

func (b *MemoryBackend) Upload(ctx context.Context, path string, r io.Reader, contentType string, metadata map[string]string) (*ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload stream: %w", err)
	}

	sum := sha256.Sum256(data)
	obj := memoryObject{
		data:        data,
		contentType: contentType,
		checksum:    hex.EncodeToString(sum[:]),
		modifiedAt:  time.Now(),
		metadata:    metadata,
	}

	b.mutex.Lock()
	b.objects[path] = obj
	b.mutex.Unlock()

	return &ObjectInfo{
		Path:        path,
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    obj.checksum,
		ModifiedAt:  obj.modifiedAt,
		Metadata:    metadata,
	}, nil
}

func (b *MemoryBackend) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	b.mutex.RLock()
	obj, exists := b.objects[path]
	b.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("object %s: %w", path, fferrors.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *MemoryBackend) Delete(ctx context.Context, path string) (bool, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, exists := b.objects[path]; !exists {
		return false, nil
	}
	delete(b.objects, path)
	return true, nil
}

func (b *MemoryBackend) Exists(ctx context.Context, path string) (bool, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	_, exists := b.objects[path]
	return exists, nil
}

func (b *MemoryBackend) Copy(ctx context.Context, src, dst string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	obj, exists := b.objects[src]
	if !exists {
		return fmt.Errorf("object %s: %w", src, fferrors.ErrObjectNotFound)
	}
	copied := obj
	copied.data = append([]byte(nil), obj.data...)
	copied.modifiedAt = time.Now()
	b.objects[dst] = copied
	return nil
}

func (b *MemoryBackend) Move(ctx context.Context, src, dst string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	obj, exists := b.objects[src]
	if !exists {
		return fmt.Errorf("object %s: %w", src, fferrors.ErrObjectNotFound)
	}
	b.objects[dst] = obj
	delete(b.objects, src)
	return nil
}

func (b *MemoryBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var objects []ObjectInfo
	for path, obj := range b.objects {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Path:        path,
			Size:        int64(len(obj.data)),
			ContentType: obj.contentType,
			Checksum:    obj.checksum,
			ModifiedAt:  obj.modifiedAt,
			Metadata:    obj.metadata,
		})
	}
	return objects, nil
}

func (b *MemoryBackend) CreateDir(ctx context.Context, path string) error {
	// key prefixes need no materialization
	return nil
}

func (b *MemoryBackend) DeleteDir(ctx context.Context, path string) error {
	prefix := strings.TrimSuffix(path, "/") + "/"

	b.mutex.Lock()
	defer b.mutex.Unlock()
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
		}
	}
	return nil
}

func (b *MemoryBackend) Checksum(ctx context.Context, path string) (string, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	obj, exists := b.objects[path]
	if !exists {
		return "", fmt.Errorf("object %s: %w", path, fferrors.ErrObjectNotFound)
	}
	return obj.checksum, nil
}

func (b *MemoryBackend) Usage(ctx context.Context) (*UsageInfo, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	usage := &UsageInfo{FileCount: int64(len(b.objects))}
	for _, obj := range b.objects {
		usage.UsedBytes += int64(len(obj.data))
	}
	return usage, nil
}

func (b *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	b.mutex.Lock()
	defer b.mutex.Unlock()
	for path, obj := range b.objects {
		if obj.modifiedAt.Before(cutoff) {
			delete(b.objects, path)
			removed++
		}
	}
	return removed, nil
}

func (b *MemoryBackend) IsAvailable(ctx context.Context) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.available
}
