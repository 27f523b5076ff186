package router

import (
	"context"
	"fmt"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/storage"
)

// ContentTypeRule routes by content category, visibility and size:
// small private code and documents favor local disk, large media and
// archives favor object storage.
type ContentTypeRule struct{}

var _ Rule = (*ContentTypeRule)(nil)

func (r *ContentTypeRule) Type() string { return domain.RuleContentType }

func (r *ContentTypeRule) Evaluate(ctx context.Context, upload *domain.FileUploadContext, backends []storage.Backend) (*domain.RoutingDecision, error) {
	category := classifyContentType(upload.ContentType)

	var (
		backend storage.Backend
		score   int
		reason  string
	)

	switch category {
	case categoryVideo, categoryArchive:
		score = 85
		backend = findByKind(backends, storage.KindS3, storage.KindOSS, storage.KindMemory)
		reason = fmt.Sprintf("%s content suits object storage", category)

	case categoryRasterImage, categoryVectorImage:
		if upload.IsPublic {
			score = 80
			backend = findByKind(backends, storage.KindS3, storage.KindOSS, storage.KindMemory)
			reason = "public image suits object storage"
		} else {
			score = 70
			backend = findByKind(backends, storage.KindLocal)
			reason = "private image suits local storage"
		}

	case categoryCode:
		score = 80
		backend = findByKind(backends, storage.KindLocal)
		reason = "code content suits local storage"

	case categoryDocument:
		if upload.FileSize < sizeSmall && !upload.IsPublic {
			score = 75
			backend = findByKind(backends, storage.KindLocal)
			reason = "small private document suits local storage"
		} else {
			score = 70
			backend = findByKind(backends, storage.KindS3, storage.KindOSS, storage.KindMemory)
			reason = "document suits object storage"
		}

	default:
		score = 60
		if upload.FileSize >= sizeMedium {
			backend = findByKind(backends, storage.KindS3, storage.KindOSS, storage.KindMemory)
			reason = fmt.Sprintf("large %s content suits object storage", category)
		} else {
			backend = findByKind(backends, storage.KindLocal)
			reason = fmt.Sprintf("%s content defaults to local storage", category)
		}
	}

	if backend == nil {
		return nil, fmt.Errorf("no backend candidates")
	}

	decision := domain.NewRoutingDecision(backend.Name(), score, reason, r.Type())
	decision.Metadata["contentCategory"] = category
	return decision, nil
}
