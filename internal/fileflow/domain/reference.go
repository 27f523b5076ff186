package domain

import "time"

// TemporaryFileReference is the sole authoritative record of an
// in-flight upload's temporary location. Created by the temporary file
// manager, destroyed on explicit delete or expiry sweep.
type TemporaryFileReference struct {
	ID          string
	FileName    string
	Size        int64
	ContentType string
	StoragePath string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Checksum    string
}

// IsExpired reports whether the reference has passed its expiry time.
func (r *TemporaryFileReference) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
