package router

import (
	"context"
	"fmt"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/storage"
)

// AccessPatternRule routes by expected access pattern. It only
// participates when the upload signals a non-default pattern, elevated
// priority or public visibility; otherwise it abstains.
type AccessPatternRule struct{}

var _ Rule = (*AccessPatternRule)(nil)

func (r *AccessPatternRule) Type() string { return domain.RuleAccessPattern }

func (r *AccessPatternRule) activates(upload *domain.FileUploadContext) bool {
	if upload.AccessPattern == domain.AccessHot || upload.AccessPattern == domain.AccessCold {
		return true
	}
	if upload.Priority == domain.PriorityHigh || upload.Priority == domain.PriorityCritical {
		return true
	}
	return upload.IsPublic
}

func (r *AccessPatternRule) Evaluate(ctx context.Context, upload *domain.FileUploadContext, backends []storage.Backend) (*domain.RoutingDecision, error) {
	if !r.activates(upload) {
		return nil, nil
	}

	var (
		backend storage.Backend
		score   int
		reason  string
	)

	switch {
	case upload.AccessPattern == domain.AccessHot && upload.IsPublic:
		score = 85
		backend = findByKind(backends, storage.KindS3, storage.KindOSS, storage.KindMemory)
		reason = "hot public content suits CDN-capable object storage"

	case upload.AccessPattern == domain.AccessHot:
		score = 80
		backend = findByKind(backends, storage.KindLocal)
		reason = "hot private content suits local storage"

	case upload.AccessPattern == domain.AccessCold:
		score = 85
		// lowest-cost object store for cold data
		backend = findByKind(backends, storage.KindOSS, storage.KindS3, storage.KindMemory)
		reason = "cold content suits low-cost object storage"

	case upload.Priority == domain.PriorityCritical, upload.Priority == domain.PriorityHigh:
		score = 75
		backend = findByKind(backends, storage.KindLocal)
		reason = fmt.Sprintf("%s priority suits low-latency local storage", upload.Priority)

	default:
		score = 70
		backend = findByKind(backends, storage.KindS3, storage.KindOSS, storage.KindMemory)
		reason = "public content suits object storage"
	}

	if backend == nil {
		return nil, fmt.Errorf("no backend candidates")
	}

	decision := domain.NewRoutingDecision(backend.Name(), score, reason, r.Type())
	decision.Metadata["accessPattern"] = string(upload.AccessPattern)
	decision.Metadata["priority"] = string(upload.Priority)
	return decision, nil
}
