package coach

import (
	"fmt"
	"strings"
)

// Workout-type vocabulary for plan days. Unrecognized values normalize to
// "easy" rather than failing validation.
var allowedDayTypes = map[string]bool{
	"rest": true, "easy": true, "long": true, "interval": true,
	"tempo": true, "hills": true, "cross": true, "strength": true,
}

// NormalizeDayType collapses a model-produced workout type onto the fixed
// vocabulary.
func NormalizeDayType(v string) string {
	n := strings.ToLower(strings.TrimSpace(v))
	if allowedDayTypes[n] {
		return n
	}
	return "easy"
}

// PlanDay is one day of a weekly plan.
type PlanDay struct {
	Date            string  `json:"date"`
	Type            string  `json:"type"`
	DurationMin     int     `json:"duration_min"`
	DistanceKM      float64 `json:"distance_km"`
	IntensityNotes  string  `json:"intensity_notes"`
	MainSet         string  `json:"main_set"`
	WarmupCooldown  string  `json:"warmup_cooldown"`
	CoachNote       string  `json:"coach_note"`
}

// WeeklyTargets are the aggregate goals a weekly plan commits to.
type WeeklyTargets struct {
	TotalDistanceKM  float64 `json:"total_distance_km"`
	TotalDurationMin int     `json:"total_duration_min"`
	HardSessions     int     `json:"hard_sessions"`
	Focus            string  `json:"focus"`
}

// WeeklyPlanOutput is the validated weekly-plan artifact.
type WeeklyPlanOutput struct {
	WeekStartDate string        `json:"week_start_date"`
	Plan          []PlanDay     `json:"plan"`
	WeeklyTargets WeeklyTargets `json:"weekly_targets"`
	RiskNotes     []string      `json:"risk_notes"`
}

// CoachSaysOutput is a short post-activity reaction.
type CoachSaysOutput struct {
	CoachSays string `json:"coach_says"`
}

// WeeklySummaryOutput is the end-of-week review artifact.
type WeeklySummaryOutput struct {
	Headline      string   `json:"headline"`
	Highlights    []string `json:"highlights"`
	WhatToImprove []string `json:"what_to_improve"`
	NextWeekFocus []string `json:"next_week_focus"`
	RiskFlags     []string `json:"risk_flags"`
}

// QuickEncouragementOutput is a two-sentence nudge.
type QuickEncouragementOutput struct {
	Encouragement string `json:"encouragement"`
}

// ParseWeeklyPlan validates a raw parsed object into a WeeklyPlanOutput,
// enforcing required keys, range constraints, and day-type normalization.
func ParseWeeklyPlan(raw map[string]any) (*WeeklyPlanOutput, error) {
	if err := requireKeys(raw, "week_start_date", "plan", "weekly_targets"); err != nil {
		return nil, err
	}

	out := &WeeklyPlanOutput{
		WeekStartDate: asString(raw["week_start_date"]),
		RiskNotes:     asStringSlice(raw["risk_notes"]),
	}
	if out.WeekStartDate == "" {
		return nil, fmt.Errorf("coach: weekly plan: week_start_date is empty")
	}

	days, ok := raw["plan"].([]any)
	if !ok || len(days) == 0 {
		return nil, fmt.Errorf("coach: weekly plan: plan must be a non-empty array")
	}
	for i, rawDay := range days {
		m, ok := rawDay.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("coach: weekly plan: day %d is not an object", i)
		}
		if err := requireKeys(m, "date", "type", "duration_min", "distance_km"); err != nil {
			return nil, fmt.Errorf("coach: weekly plan day %d: %w", i, err)
		}
		day := PlanDay{
			Date:           asString(m["date"]),
			Type:           NormalizeDayType(asString(m["type"])),
			DurationMin:    asInt(m["duration_min"]),
			DistanceKM:     asFloat(m["distance_km"]),
			IntensityNotes: asString(m["intensity_notes"]),
			MainSet:        asString(m["main_set"]),
			WarmupCooldown: asString(m["warmup_cooldown"]),
			CoachNote:      asString(m["coach_note"]),
		}
		if day.DurationMin < 0 || day.DistanceKM < 0 {
			return nil, fmt.Errorf("coach: weekly plan day %d: negative duration or distance", i)
		}
		out.Plan = append(out.Plan, day)
	}

	targets, ok := raw["weekly_targets"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("coach: weekly plan: weekly_targets is not an object")
	}
	if err := requireKeys(targets, "total_distance_km", "total_duration_min", "hard_sessions", "focus"); err != nil {
		return nil, fmt.Errorf("coach: weekly plan targets: %w", err)
	}
	out.WeeklyTargets = WeeklyTargets{
		TotalDistanceKM:  asFloat(targets["total_distance_km"]),
		TotalDurationMin: asInt(targets["total_duration_min"]),
		HardSessions:     asInt(targets["hard_sessions"]),
		Focus:            asString(targets["focus"]),
	}
	if out.WeeklyTargets.TotalDistanceKM < 0 || out.WeeklyTargets.TotalDurationMin < 0 || out.WeeklyTargets.HardSessions < 0 {
		return nil, fmt.Errorf("coach: weekly plan targets: negative value")
	}
	return out, nil
}

// ParseCoachSays validates a raw parsed object into a CoachSaysOutput.
func ParseCoachSays(raw map[string]any) (*CoachSaysOutput, error) {
	text := strings.TrimSpace(asString(raw["coach_says"]))
	if text == "" {
		return nil, fmt.Errorf("coach: coach_says is missing or empty")
	}
	return &CoachSaysOutput{CoachSays: text}, nil
}

// ParseWeeklySummary validates a raw parsed object into a WeeklySummaryOutput.
func ParseWeeklySummary(raw map[string]any) (*WeeklySummaryOutput, error) {
	if err := requireKeys(raw, "headline", "highlights", "what_to_improve", "next_week_focus"); err != nil {
		return nil, err
	}
	out := &WeeklySummaryOutput{
		Headline:      strings.TrimSpace(asString(raw["headline"])),
		Highlights:    asStringSlice(raw["highlights"]),
		WhatToImprove: asStringSlice(raw["what_to_improve"]),
		NextWeekFocus: asStringSlice(raw["next_week_focus"]),
		RiskFlags:     asStringSlice(raw["risk_flags"]),
	}
	if out.Headline == "" {
		return nil, fmt.Errorf("coach: weekly summary: headline is empty")
	}
	return out, nil
}

// ParseQuickEncouragement validates a raw parsed object into a
// QuickEncouragementOutput.
func ParseQuickEncouragement(raw map[string]any) (*QuickEncouragementOutput, error) {
	text := strings.TrimSpace(asString(raw["encouragement"]))
	if text == "" {
		return nil, fmt.Errorf("coach: encouragement is missing or empty")
	}
	return &QuickEncouragementOutput{Encouragement: text}, nil
}

func requireKeys(m map[string]any, keys ...string) error {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return fmt.Errorf("missing required key %q", k)
		}
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func asInt(v any) int { return int(asFloat(v)) }

func asStringSlice(v any) []string {
	raw, _ := v.([]any)
	out := []string{}
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// JSON-schema documents sent with schema-constrained completions.

var weeklyPlanSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"week_start_date", "plan", "weekly_targets", "risk_notes"},
	"properties": map[string]any{
		"week_start_date": map[string]any{"type": "string"},
		"plan": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required": []string{
					"date", "type", "duration_min", "distance_km",
					"intensity_notes", "main_set", "warmup_cooldown", "coach_note",
				},
				"properties": map[string]any{
					"date":            map[string]any{"type": "string"},
					"type":            map[string]any{"type": "string"},
					"duration_min":    map[string]any{"type": "integer", "minimum": 0},
					"distance_km":     map[string]any{"type": "number", "minimum": 0},
					"intensity_notes": map[string]any{"type": "string"},
					"main_set":        map[string]any{"type": "string"},
					"warmup_cooldown": map[string]any{"type": "string"},
					"coach_note":      map[string]any{"type": "string"},
				},
			},
		},
		"weekly_targets": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"total_distance_km", "total_duration_min", "hard_sessions", "focus"},
			"properties": map[string]any{
				"total_distance_km":  map[string]any{"type": "number", "minimum": 0},
				"total_duration_min": map[string]any{"type": "integer", "minimum": 0},
				"hard_sessions":      map[string]any{"type": "integer", "minimum": 0},
				"focus":              map[string]any{"type": "string"},
			},
		},
		"risk_notes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var coachSaysSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"coach_says"},
	"properties": map[string]any{
		"coach_says": map[string]any{"type": "string"},
	},
}

var weeklySummarySchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"headline", "highlights", "what_to_improve", "next_week_focus", "risk_flags"},
	"properties": map[string]any{
		"headline":        map[string]any{"type": "string"},
		"highlights":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"what_to_improve": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"next_week_focus": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"risk_flags":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var quickEncouragementSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"encouragement"},
	"properties": map[string]any{
		"encouragement": map[string]any{"type": "string"},
	},
}
