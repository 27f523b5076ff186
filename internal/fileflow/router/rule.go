// Package router implements the intelligent storage router: independent
// heuristic rules score candidate backends, and the router aggregates
// their decisions with a weighted table and confidence-based fallback.
package router

import (
	"context"
	"strings"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/storage"
)

// Rule is one independent routing heuristic. Evaluate returns nil when
// the rule chooses not to participate for this upload. Rules must not
// mutate the upload context.
type Rule interface {
	Type() string
	Evaluate(ctx context.Context, upload *domain.FileUploadContext, backends []storage.Backend) (*domain.RoutingDecision, error)
}

// Content categories used by the content-type rule.
const (
	categoryRasterImage = "raster-image"
	categoryVectorImage = "vector-image"
	categoryVideo       = "video"
	categoryDocument    = "document"
	categoryArchive     = "archive"
	categoryCode        = "code"
	categoryBinary      = "binary"
	categoryOther       = "other"
)

func classifyContentType(contentType string) string {
	switch {
	case contentType == "image/svg+xml":
		return categoryVectorImage
	case strings.HasPrefix(contentType, "image/"):
		return categoryRasterImage
	case strings.HasPrefix(contentType, "video/"):
		return categoryVideo
	case contentType == "application/pdf",
		contentType == "application/msword",
		strings.HasPrefix(contentType, "application/vnd.openxmlformats"),
		strings.HasPrefix(contentType, "text/"):
		return categoryDocument
	case contentType == "application/zip",
		contentType == "application/gzip",
		contentType == "application/x-tar",
		contentType == "application/x-7z-compressed",
		contentType == "application/x-rar":
		return categoryArchive
	case contentType == "application/json",
		contentType == "application/xml",
		contentType == "application/javascript",
		contentType == "application/x-sh",
		strings.HasSuffix(contentType, "+json"),
		strings.HasSuffix(contentType, "+xml"):
		return categoryCode
	case contentType == "application/octet-stream":
		return categoryBinary
	default:
		return categoryOther
	}
}

// findByKind returns the first backend matching any of the preferred
// kinds, in preference order, falling back to the first backend.
func findByKind(backends []storage.Backend, preferred ...string) storage.Backend {
	for _, kind := range preferred {
		for _, b := range backends {
			if b.Kind() == kind {
				return b
			}
		}
	}
	if len(backends) > 0 {
		return backends[0]
	}
	return nil
}
