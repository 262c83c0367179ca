package coach

import "testing"

func TestRouteModel(t *testing.T) {
	cases := []struct {
		name       string
		feature    string
		lowConf    bool
		riskFlags  []string
		wantModel  string
		wantEscal  bool
	}{
		{"cheap feature", FeatureCoachSays, false, nil, ModelCheap, false},
		{"cheap feature summary", FeatureWeeklySummary, false, nil, ModelCheap, false},
		{"heavy feature", FeatureWeeklyPlan, false, nil, ModelHeavy, false},
		{"chat is heavy", FeatureGeneralChat, false, nil, ModelHeavy, false},
		{"unknown feature is heavy", "mystery_feature", false, nil, ModelHeavy, false},
		{"low confidence forces top", FeatureCoachSays, true, nil, ModelTop, true},
		{"injury forces top on cheap feature", FeatureQuickEncouragement, false, []string{RiskInjury}, ModelTop, true},
		{"overtraining forces top", FeatureWeeklyPlan, false, []string{RiskOvertraining}, ModelTop, true},
		{"load spike forces top", FeatureWeeklySummary, false, []string{RiskSuddenLoadSpike}, ModelTop, true},
		{"risk flag match is case insensitive", FeatureCoachSays, false, []string{"INJURY"}, ModelTop, true},
		{"mild flag does not escalate", FeatureCoachSays, false, []string{"low_sleep"}, ModelCheap, false},
		{"low confidence wins over flags", FeatureWeeklyPlan, true, []string{RiskInjury}, ModelTop, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RouteModel(tc.feature, tc.lowConf, tc.riskFlags)
			if got.Model != tc.wantModel {
				t.Errorf("model = %q, want %q", got.Model, tc.wantModel)
			}
			if got.AllowEscalation != tc.wantEscal {
				t.Errorf("escalation = %v, want %v", got.AllowEscalation, tc.wantEscal)
			}
		})
	}
}
