package domain

import (
	"strings"
	"time"
)

// ProcessingOptions is the immutable flag set controlling which
// processors run for one upload. Created once per upload request from
// caller intent plus tag-derived inference; never mutated afterwards.
type ProcessingOptions struct {
	EnableVirusScan          bool
	EnableChecksumValidation bool
	EnableCompression        bool
	EnableEncryption         bool
	EnableThumbnail          bool

	BufferSize        int
	MaxProcessingTime time.Duration

	CompressionLevel    int
	EncryptionAlgorithm string
	ThumbnailSize       int
}

// ProcessingContext is the mutable state threaded through one pipeline
// run. It is owned exclusively by that run: processors mutate the
// metadata bag during the run and the whole context is discarded once
// the run completes.
type ProcessingContext struct {
	FileName    string
	ContentType string
	FileSize    int64
	UploaderID  string
	Metadata    Metadata
	Options     ProcessingOptions
	StartedAt   time.Time

	// Thumbnail holds the resized side artifact produced by the
	// thumbnail processor; the main byte stream is never modified.
	Thumbnail []byte
}

// NewProcessingContext builds the context for one pipeline run.
func NewProcessingContext(fileName, contentType string, fileSize int64, uploaderID string, opts ProcessingOptions) *ProcessingContext {
	return &ProcessingContext{
		FileName:    fileName,
		ContentType: contentType,
		FileSize:    fileSize,
		UploaderID:  uploaderID,
		Metadata:    NewMetadata(),
		Options:     opts,
		StartedAt:   time.Now(),
	}
}

// Clone returns a copy of the context with its own metadata bag, so a
// detached pipeline run can keep writing without touching the
// original.
func (c *ProcessingContext) Clone() *ProcessingContext {
	clone := *c
	clone.Metadata = c.Metadata.Clone()
	return &clone
}

// IsImage reports whether the content type is a recognized raster image.
func (c *ProcessingContext) IsImage() bool {
	switch c.ContentType {
	case "image/png", "image/jpeg", "image/gif", "image/bmp", "image/tiff", "image/webp":
		return true
	}
	return false
}

// alreadyCompressedPrefixes lists content type families that gain
// nothing from recompression.
var alreadyCompressedPrefixes = []string{
	"image/", "video/", "audio/",
	"application/zip", "application/gzip", "application/x-7z",
	"application/x-rar", "application/x-bzip2", "application/zstd",
}

// IsAlreadyCompressed reports whether the content type identifies data
// that is already in a compressed format.
func (c *ProcessingContext) IsAlreadyCompressed() bool {
	for _, prefix := range alreadyCompressedPrefixes {
		if strings.HasPrefix(c.ContentType, prefix) {
			return true
		}
	}
	return false
}
