package domain

// Rule type tags attached to routing decisions.
const (
	RuleSize          = "SIZE"
	RuleContentType   = "CONTENT_TYPE"
	RuleAccessPattern = "ACCESS_PATTERN"
	RuleDefault       = "DEFAULT"
	RuleFallback      = "FALLBACK"
)

// RoutingDecision is one rule's (or the router's final) scored backend
// recommendation. Decisions are never mutated after construction; a
// low-confidence decision may be superseded by a fallback decision
// within the same routing call.
type RoutingDecision struct {
	Backend  string
	Score    int // 0..100
	Reason   string
	RuleType string
	Metadata map[string]string
}

// NewRoutingDecision builds a decision, clamping the score into [0, 100].
func NewRoutingDecision(backend string, score int, reason, ruleType string) *RoutingDecision {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &RoutingDecision{
		Backend:  backend,
		Score:    score,
		Reason:   reason,
		RuleType: ruleType,
		Metadata: make(map[string]string),
	}
}

// Confidence is the decision's score normalized to [0, 1].
func (d *RoutingDecision) Confidence() float64 {
	return float64(d.Score) / 100.0
}
