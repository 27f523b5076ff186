package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"fileflow/internal/fileflow/domain"
	"fileflow/internal/fileflow/storage"
	"fileflow/pkg/config"
	fferrors "fileflow/pkg/errors"
	"fileflow/pkg/logger"
)

// fallbackScore is the fixed score of a synthetic fallback decision.
const fallbackScore = 75

// Router aggregates the routing rules into one decision per upload.
// It holds no mutable shared state beyond a TTL-bounded availability
// cache; the enabled-backend set is re-snapshotted on every call.
type Router struct {
	cfg      config.RouterConfig
	registry *storage.Registry
	rules    []Rule

	// availability probes can hit the network; the TTL keeps the
	// snapshot read-mostly without caching it indefinitely
	availability *expirable.LRU[string, bool]
	logger       *logger.Logger
}

// New builds a router over the given backend registry with the three
// standard rules. A non-positive cache TTL disables availability
// caching entirely.
func New(cfg config.RouterConfig, registry *storage.Registry, log *logger.Logger) *Router {
	var availability *expirable.LRU[string, bool]
	if cfg.AvailabilityCacheTTL > 0 {
		availability = expirable.NewLRU[string, bool](64, nil, cfg.AvailabilityCacheTTL)
	}

	return &Router{
		cfg:      cfg,
		registry: registry,
		rules: []Rule{
			&SizeRule{},
			&ContentTypeRule{},
			&AccessPatternRule{},
		},
		availability: availability,
		logger:       log.WithField("component", "router"),
	}
}

// SelectOptimalStrategy picks the best backend for the upload. It
// returns ErrNoBackendAvailable when there is nothing to choose from;
// that is the only routing failure that propagates as a hard error.
func (r *Router) SelectOptimalStrategy(ctx context.Context, upload *domain.FileUploadContext) (*domain.RoutingDecision, error) {
	return r.Select(ctx, upload, nil)
}

// Select is SelectOptimalStrategy with an exclusion set; callers
// re-invoke it excluding a chosen backend that turned out to be
// unavailable.
func (r *Router) Select(ctx context.Context, upload *domain.FileUploadContext, exclude map[string]bool) (*domain.RoutingDecision, error) {
	backends := r.candidateBackends(exclude)
	if len(backends) == 0 {
		return nil, fmt.Errorf("routing %s: %w", upload.FileName, fferrors.ErrNoBackendAvailable)
	}

	decisions := r.evaluateRules(ctx, upload, backends)

	winner := r.aggregate(decisions)
	if winner == nil {
		// every rule abstained; fall back to the first candidate
		winner = domain.NewRoutingDecision(backends[0].Name(), 60,
			"no rule produced a decision", domain.RuleDefault)
	}

	if winner.Confidence() < r.cfg.FallbackThreshold && r.cfg.EnableFallback {
		if fallback := r.fallbackDecision(ctx, winner, backends); fallback != nil {
			r.logger.Debug("low-confidence decision replaced by fallback",
				"file", upload.FileName, "original", winner.Backend,
				"confidence", winner.Confidence(), "fallback", fallback.Backend)
			winner = fallback
		}
	}

	r.logger.Debug("backend selected",
		"file", upload.FileName, "backend", winner.Backend,
		"score", winner.Score, "rule", winner.RuleType, "reason", winner.Reason)
	return winner, nil
}

func (r *Router) candidateBackends(exclude map[string]bool) []storage.Backend {
	enabled := r.registry.Enabled()
	if len(exclude) == 0 {
		return enabled
	}
	candidates := make([]storage.Backend, 0, len(enabled))
	for _, b := range enabled {
		if !exclude[b.Name()] {
			candidates = append(candidates, b)
		}
	}
	return candidates
}

// evaluateRules runs every rule concurrently and independently. A rule
// that errors or panics yields the default decision rather than
// propagating the failure.
func (r *Router) evaluateRules(ctx context.Context, upload *domain.FileUploadContext, backends []storage.Backend) []*domain.RoutingDecision {
	results := make([]*domain.RoutingDecision, len(r.rules))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range r.rules {
		i, rule := i, rule
		g.Go(func() error {
			decision, err := func() (d *domain.RoutingDecision, err error) {
				defer func() {
					if rec := recover(); rec != nil {
						err = fmt.Errorf("rule panicked: %v", rec)
					}
				}()
				return rule.Evaluate(gctx, upload, backends)
			}()

			if err != nil {
				r.logger.Warn("rule evaluation failed, using default decision",
					"rule", rule.Type(), "file", upload.FileName, "error", err)
				results[i] = domain.NewRoutingDecision(backends[0].Name(), 60,
					fmt.Sprintf("default after %s failure", rule.Type()), domain.RuleDefault)
				return nil
			}
			results[i] = decision // nil when the rule abstained
			return nil
		})
	}
	_ = g.Wait()

	decisions := make([]*domain.RoutingDecision, 0, len(results))
	for _, d := range results {
		if d != nil {
			decisions = append(decisions, d)
		}
	}
	return decisions
}

func (r *Router) weightFor(ruleType string) int {
	switch ruleType {
	case domain.RuleSize:
		return r.cfg.Weights.Size
	case domain.RuleContentType:
		return r.cfg.Weights.ContentType
	case domain.RuleAccessPattern:
		return r.cfg.Weights.AccessPattern
	case domain.RuleFallback:
		return r.cfg.Weights.Fallback
	default:
		return r.cfg.Weights.Default
	}
}

// aggregate picks the decision with the highest weighted score, ties
// broken by raw score.
func (r *Router) aggregate(decisions []*domain.RoutingDecision) *domain.RoutingDecision {
	var (
		winner       *domain.RoutingDecision
		bestWeighted int
	)
	for _, d := range decisions {
		weighted := d.Score * r.weightFor(d.RuleType)
		switch {
		case winner == nil, weighted > bestWeighted:
			winner = d
			bestWeighted = weighted
		case weighted == bestWeighted && d.Score > winner.Score:
			winner = d
		}
	}
	return winner
}

// fallbackDecision builds the synthetic decision pointing at the
// next-best available backend. Returns nil when no alternative exists.
func (r *Router) fallbackDecision(ctx context.Context, winner *domain.RoutingDecision, backends []storage.Backend) *domain.RoutingDecision {
	for _, name := range r.FallbackStrategies(winner.Backend) {
		if !r.IsStrategyAvailable(ctx, name) {
			continue
		}
		decision := domain.NewRoutingDecision(name, fallbackScore,
			fmt.Sprintf("fallback from low-confidence %s decision", winner.RuleType),
			domain.RuleFallback)
		decision.Metadata["replacedBackend"] = winner.Backend
		return decision
	}
	return nil
}

// reliabilityRank orders backend kinds for the emergency fallback list:
// local disk first, then the primary object store, then the rest.
func reliabilityRank(kind string) int {
	switch kind {
	case storage.KindLocal:
		return 0
	case storage.KindS3:
		return 1
	case storage.KindOSS:
		return 2
	default:
		return 3
	}
}

// FallbackStrategies returns the remaining backends ordered by the
// fixed reliability ranking. It never re-runs the rules; this list is
// used only as an emergency path.
func (r *Router) FallbackStrategies(primary string) []string {
	backends := r.registry.Enabled()

	remaining := make([]storage.Backend, 0, len(backends))
	for _, b := range backends {
		if b.Name() != primary {
			remaining = append(remaining, b)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		return reliabilityRank(remaining[i].Kind()) < reliabilityRank(remaining[j].Kind())
	})

	names := make([]string, len(remaining))
	for i, b := range remaining {
		names[i] = b.Name()
	}
	return names
}

// IsStrategyAvailable reports whether the named backend can serve
// requests, with a short-lived cache over the probe.
func (r *Router) IsStrategyAvailable(ctx context.Context, name string) bool {
	if r.availability != nil {
		if available, ok := r.availability.Get(name); ok {
			return available
		}
	}

	backend, exists := r.registry.Get(name)
	if !exists {
		return false
	}
	available := backend.IsAvailable(ctx)
	if r.availability != nil {
		r.availability.Add(name, available)
	}
	return available
}

// StrategyHealthScore rates a backend 0..100 from availability and
// remaining capacity.
func (r *Router) StrategyHealthScore(ctx context.Context, name string) int {
	backend, exists := r.registry.Get(name)
	if !exists || !r.IsStrategyAvailable(ctx, name) {
		return 0
	}

	usage, err := backend.Usage(ctx)
	if err != nil || usage == nil || usage.TotalBytes == 0 {
		// available but capacity unknown
		return 75
	}

	freeRatio := float64(usage.FreeBytes) / float64(usage.TotalBytes)
	return 70 + int(freeRatio*30)
}
