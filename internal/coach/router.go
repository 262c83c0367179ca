package coach

import "strings"

// Feature names, used for routing, caching, and interaction logging.
const (
	FeatureWeeklyPlan         = "weekly_plan"
	FeatureCoachSays          = "coach_says"
	FeatureWeeklySummary      = "weekly_summary"
	FeatureQuickEncouragement = "quick_encouragement"
	FeatureGeneralChat        = "general_chat"
	FeatureCoachTone          = "coach_tone"
)

// Model tiers, cheapest last.
const (
	ModelTop   = "gpt-5.2"
	ModelHeavy = "gpt-5-mini"
	ModelCheap = "gpt-5-nano"
)

// severeRiskFlags force the top tier regardless of feature cost class.
// Coaching advice under physical risk must not come from the cheapest model.
var severeRiskFlags = map[string]bool{
	RiskInjury:          true,
	RiskOvertraining:    true,
	RiskSuddenLoadSpike: true,
}

// cheapFeatures are single-shot artifacts served by the cheapest tier.
// Everything else, including heavy multi-day generation and open-ended
// chat, gets the mid tier.
var cheapFeatures = map[string]bool{
	FeatureCoachSays:          true,
	FeatureWeeklySummary:      true,
	FeatureQuickEncouragement: true,
	FeatureCoachTone:          true,
}

// RouteDecision is the (model, escalation-allowed) pair chosen for one
// generation attempt.
type RouteDecision struct {
	Model           string
	AllowEscalation bool
}

// RouteModel picks the model tier for a feature call. Low confidence (a
// prior validation failure) and severe risk flags both force the top tier
// with escalation allowed; the two triggers land on the same tier, there is
// no tier above it. Normal-tier routes do not permit escalation.
func RouteModel(feature string, lowConfidence bool, riskFlags []string) RouteDecision {
	if lowConfidence {
		return RouteDecision{Model: ModelTop, AllowEscalation: true}
	}
	for _, f := range riskFlags {
		if severeRiskFlags[strings.ToLower(f)] {
			return RouteDecision{Model: ModelTop, AllowEscalation: true}
		}
	}
	if cheapFeatures[feature] {
		return RouteDecision{Model: ModelCheap}
	}
	return RouteDecision{Model: ModelHeavy}
}
