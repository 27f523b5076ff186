package router

import (
	"context"
	"fmt"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/storage"
)

// Size thresholds for the size rule.
const (
	sizeTiny   = 100 << 10 // 100KB
	sizeSmall  = 10 << 20  // 10MB
	sizeMedium = 100 << 20 // 100MB
)

// SizeRule routes by declared file size: small files favor local disk,
// medium files favor either object store, large files favor the
// cheapest object store.
type SizeRule struct{}

var _ Rule = (*SizeRule)(nil)

func (r *SizeRule) Type() string { return domain.RuleSize }

func (r *SizeRule) Evaluate(ctx context.Context, upload *domain.FileUploadContext, backends []storage.Backend) (*domain.RoutingDecision, error) {
	var (
		backend storage.Backend
		score   int
		tier    string
	)

	switch {
	case upload.FileSize < sizeTiny:
		tier = "tiny"
		score = 90
		backend = findByKind(backends, storage.KindLocal)
	case upload.FileSize < sizeSmall:
		tier = "small"
		score = 85
		backend = findByKind(backends, storage.KindLocal)
	case upload.FileSize < sizeMedium:
		tier = "medium"
		score = 80
		backend = findByKind(backends, storage.KindS3, storage.KindOSS, storage.KindMemory)
	default:
		tier = "large"
		score = 85
		// cheapest object store first
		backend = findByKind(backends, storage.KindOSS, storage.KindS3, storage.KindMemory)
	}

	if backend == nil {
		return nil, fmt.Errorf("no backend candidates")
	}
	if backend.Kind() == storage.KindLocal && tier != "tiny" && tier != "small" {
		// landed on local only because no object store exists
		score -= 15
	}

	decision := domain.NewRoutingDecision(backend.Name(), score,
		fmt.Sprintf("%s file (%d bytes) suits %s storage", tier, upload.FileSize, backend.Kind()),
		r.Type())
	decision.Metadata["sizeTier"] = tier
	return decision, nil
}
