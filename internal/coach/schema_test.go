package coach

import (
	"encoding/json"
	"testing"
)

func parseObject(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("unmarshal test fixture: %v", err)
	}
	return m
}

const validWeeklyPlanJSON = `{
	"week_start_date": "2026-08-31",
	"plan": [
		{"date": "2026-08-31", "type": "easy", "duration_min": 45, "distance_km": 8,
		 "intensity_notes": "Z2", "main_set": "", "warmup_cooldown": "", "coach_note": "keep it relaxed"},
		{"date": "2026-09-02", "type": "Tempo", "duration_min": 50, "distance_km": 9,
		 "intensity_notes": "Z3", "main_set": "3x10min", "warmup_cooldown": "10min jog", "coach_note": ""},
		{"date": "2026-09-05", "type": "sprint ladder", "duration_min": 70, "distance_km": 14,
		 "intensity_notes": "Z2", "main_set": "", "warmup_cooldown": "", "coach_note": ""}
	],
	"weekly_targets": {"total_distance_km": 31, "total_duration_min": 165, "hard_sessions": 1, "focus": "base"},
	"risk_notes": ["watch left knee"]
}`

func TestParseWeeklyPlan(t *testing.T) {
	out, err := ParseWeeklyPlan(parseObject(t, validWeeklyPlanJSON))
	if err != nil {
		t.Fatalf("ParseWeeklyPlan: %v", err)
	}
	if out.WeekStartDate != "2026-08-31" {
		t.Errorf("week_start_date = %q", out.WeekStartDate)
	}
	if len(out.Plan) != 3 {
		t.Fatalf("got %d days, want 3", len(out.Plan))
	}
	if out.Plan[1].Type != "tempo" {
		t.Errorf("day 1 type = %q, want lowercased tempo", out.Plan[1].Type)
	}
	if out.Plan[2].Type != "easy" {
		t.Errorf("day 2 type = %q, unknown types normalize to easy", out.Plan[2].Type)
	}
	if out.WeeklyTargets.TotalDistanceKM != 31 || out.WeeklyTargets.HardSessions != 1 {
		t.Errorf("targets = %+v", out.WeeklyTargets)
	}
	if len(out.RiskNotes) != 1 || out.RiskNotes[0] != "watch left knee" {
		t.Errorf("risk_notes = %v", out.RiskNotes)
	}
}

func TestParseWeeklyPlanRejections(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"missing weekly_targets", `{"week_start_date": "2026-08-31", "plan": [{"date": "2026-08-31", "type": "easy", "duration_min": 45, "distance_km": 8}]}`},
		{"empty plan", `{"week_start_date": "2026-08-31", "plan": [], "weekly_targets": {"total_distance_km": 0, "total_duration_min": 0, "hard_sessions": 0, "focus": "x"}}`},
		{"day missing date", `{"week_start_date": "2026-08-31", "plan": [{"type": "easy", "duration_min": 45, "distance_km": 8}], "weekly_targets": {"total_distance_km": 0, "total_duration_min": 0, "hard_sessions": 0, "focus": "x"}}`},
		{"negative distance", `{"week_start_date": "2026-08-31", "plan": [{"date": "2026-08-31", "type": "easy", "duration_min": 45, "distance_km": -2}], "weekly_targets": {"total_distance_km": 0, "total_duration_min": 0, "hard_sessions": 0, "focus": "x"}}`},
		{"targets missing focus", `{"week_start_date": "2026-08-31", "plan": [{"date": "2026-08-31", "type": "easy", "duration_min": 45, "distance_km": 8}], "weekly_targets": {"total_distance_km": 0, "total_duration_min": 0, "hard_sessions": 0}}`},
		{"empty week start", `{"week_start_date": "", "plan": [{"date": "2026-08-31", "type": "easy", "duration_min": 45, "distance_km": 8}], "weekly_targets": {"total_distance_km": 0, "total_duration_min": 0, "hard_sessions": 0, "focus": "x"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseWeeklyPlan(parseObject(t, tc.json)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNormalizeDayType(t *testing.T) {
	cases := map[string]string{
		"easy":      "easy",
		" Long ":    "long",
		"INTERVAL":  "interval",
		"fartlek":   "easy",
		"":          "easy",
		"strength":  "strength",
		"crossfit!": "easy",
	}
	for in, want := range cases {
		if got := NormalizeDayType(in); got != want {
			t.Errorf("NormalizeDayType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCoachSays(t *testing.T) {
	out, err := ParseCoachSays(parseObject(t, `{"coach_says": "  Solid session. Recover well.  "}`))
	if err != nil {
		t.Fatalf("ParseCoachSays: %v", err)
	}
	if out.CoachSays != "Solid session. Recover well." {
		t.Errorf("coach_says = %q", out.CoachSays)
	}

	if _, err := ParseCoachSays(parseObject(t, `{"coach_says": "   "}`)); err == nil {
		t.Error("expected error for blank coach_says")
	}
	if _, err := ParseCoachSays(parseObject(t, `{}`)); err == nil {
		t.Error("expected error for missing coach_says")
	}
}

func TestParseWeeklySummary(t *testing.T) {
	out, err := ParseWeeklySummary(parseObject(t, `{
		"headline": "Consistent base week",
		"highlights": ["longest run of the block", 42],
		"what_to_improve": [],
		"next_week_focus": ["add one tempo"],
		"risk_flags": []
	}`))
	if err != nil {
		t.Fatalf("ParseWeeklySummary: %v", err)
	}
	if out.Headline != "Consistent base week" {
		t.Errorf("headline = %q", out.Headline)
	}
	// Non-string array entries are dropped, not fatal.
	if len(out.Highlights) != 1 || out.Highlights[0] != "longest run of the block" {
		t.Errorf("highlights = %v", out.Highlights)
	}

	if _, err := ParseWeeklySummary(parseObject(t, `{"headline": "x", "highlights": []}`)); err == nil {
		t.Error("expected error for missing keys")
	}
}

func TestParseQuickEncouragement(t *testing.T) {
	out, err := ParseQuickEncouragement(parseObject(t, `{"encouragement": "Keep showing up. It compounds."}`))
	if err != nil {
		t.Fatalf("ParseQuickEncouragement: %v", err)
	}
	if out.Encouragement == "" {
		t.Error("encouragement is empty")
	}
	if _, err := ParseQuickEncouragement(parseObject(t, `{"encouragement": ""}`)); err == nil {
		t.Error("expected error for empty encouragement")
	}
}
