package coach

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
	"github.com/stridelab/stridecoach/internal/plan"
)

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// AISettings are per-user generation knobs, stored inside the profile's
// schedule blob under "ai_settings" so they travel with the profile row.
type AISettings struct {
	LookbackDays  int
	MemoryDays    int
	MaxReplyChars int
	FeatureFlags  map[string]bool
}

// Enabled reports whether a feature is switched on. Unknown features
// default to enabled.
func (s AISettings) Enabled(feature string) bool {
	v, ok := s.FeatureFlags[feature]
	if !ok {
		return true
	}
	return v
}

// SettingsFromProfile reads the AI settings out of the schedule blob,
// applying defaults and floors for missing or malformed values.
func SettingsFromProfile(profile *models.AthleteProfile) AISettings {
	schedule := profile.Schedule()
	ai, _ := schedule["ai_settings"].(map[string]any)
	rawFlags, _ := ai["feature_flags"].(map[string]any)

	s := AISettings{
		LookbackDays:  intOr(ai["lookback_days"], 15),
		MemoryDays:    intOr(ai["memory_days"], 30),
		MaxReplyChars: intOr(ai["max_reply_chars"], 220),
		FeatureFlags: map[string]bool{
			FeatureWeeklyPlan:         boolOr(rawFlags[FeatureWeeklyPlan], true),
			FeatureCoachSays:          boolOr(rawFlags[FeatureCoachSays], true),
			FeatureWeeklySummary:      boolOr(rawFlags[FeatureWeeklySummary], true),
			FeatureGeneralChat:        boolOr(rawFlags[FeatureGeneralChat], true),
			FeatureQuickEncouragement: boolOr(rawFlags[FeatureQuickEncouragement], true),
		},
	}
	if s.LookbackDays < 1 {
		s.LookbackDays = 1
	}
	if s.MemoryDays < 1 {
		s.MemoryDays = 1
	}
	if s.MaxReplyChars < 40 {
		s.MaxReplyChars = 40
	}
	return s
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func trainingDays(schedule map[string]any) []string {
	raw, _ := schedule["training_days"].([]any)
	out := []string{}
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// GoalPayload is the athlete's goal as embedded in prompts, merged from the
// schedule blob's "goal" object and the profile's scalar goal fields.
type GoalPayload struct {
	Type             string   `json:"type"`
	TargetDistanceKM *float64 `json:"target_distance_km"`
	TargetTimeMin    *float64 `json:"target_time_min"`
	RaceDistanceKM   *float64 `json:"race_distance_km"`
	EventName        string   `json:"event_name"`
	EventDate        string   `json:"event_date"`
	Notes            string   `json:"notes"`
}

func goalPayload(profile *models.AthleteProfile) GoalPayload {
	goal, _ := profile.Schedule()["goal"].(map[string]any)
	g := GoalPayload{
		Type:             stringOr(goal["type"], "race"),
		TargetDistanceKM: floatPtr(goal["target_distance_km"]),
		TargetTimeMin:    floatPtr(goal["target_time_min"]),
		RaceDistanceKM:   floatPtr(goal["race_distance_km"]),
		EventName:        stringOr(goal["event_name"], profile.GoalEventName),
		Notes:            stringOr(goal["notes"], profile.Goals),
	}
	g.EventDate = stringOr(goal["event_date"], "")
	if g.EventDate == "" && profile.GoalEventDate.Valid {
		g.EventDate = profile.GoalEventDate.String
	}
	return g
}

// ProfilePayload is the prompt-facing view of the athlete profile.
type ProfilePayload struct {
	DisplayName       string   `json:"display_name"`
	PrimarySport      string   `json:"primary_sport"`
	Age               *int64   `json:"age"`
	ExperienceLevel   string   `json:"experience_level"`
	Availability      []string `json:"availability"`
	Constraints       string   `json:"constraints"`
	InjuryNotes       string   `json:"injury_notes"`
	WeeklyTargetHours float64  `json:"weekly_target_hours"`
}

func profilePayload(profile *models.AthleteProfile) ProfilePayload {
	p := ProfilePayload{
		DisplayName:       profile.DisplayName,
		PrimarySport:      profile.PrimarySport,
		ExperienceLevel:   profile.ExperienceLevel,
		Availability:      trainingDays(profile.Schedule()),
		Constraints:       profile.Constraints,
		InjuryNotes:       profile.InjuryNotes,
		WeeklyTargetHours: profile.WeeklyTargetHours,
	}
	if profile.Age.Valid {
		age := profile.Age.Int64
		p.Age = &age
	}
	return p
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func floatPtr(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

// relevantWorkouts selects up to 7 activities worth showing the model: the
// 3 most recent, plus a representative long run, a hard effort, and any run
// whose heart rate drifts well above the athlete's baseline at an easy pace.
func relevantWorkouts(activities []*models.Activity) []CompactWorkout {
	selected := map[int64]CompactWorkout{}

	for i, a := range activities {
		if i >= 3 {
			break
		}
		selected[a.ID] = compactWorkout(a)
	}

	for _, a := range activities {
		if containsFold(a.Type, "run") && a.DistanceM >= 12000 {
			selected[a.ID] = compactWorkout(a)
			break
		}
	}

	for _, a := range activities {
		if (a.AvgHR.Valid && a.AvgHR.Float64 >= hrHardFloor) || containsFold(a.Name, "interval") {
			selected[a.ID] = compactWorkout(a)
			break
		}
	}

	if w, ok := hrDriftAnomaly(activities); ok {
		selected[w.ID] = w
	}

	out := make([]CompactWorkout, 0, len(selected))
	for _, w := range selected {
		out = append(out, w)
	}
	sortCompactByDateDesc(out)
	if len(out) > 7 {
		out = out[:7]
	}
	return out
}

// hrDriftAnomaly flags the first run whose average heart rate sits 10+ bpm
// above the runs' baseline average while the pace is slower than 6:30/km.
func hrDriftAnomaly(activities []*models.Activity) (CompactWorkout, bool) {
	var runs []*models.Activity
	var hrSum float64
	for _, a := range activities {
		if containsFold(a.Type, "run") && a.AvgHR.Valid && a.DistanceM > 0 && a.MovingTimeS > 0 {
			runs = append(runs, a)
			hrSum += a.AvgHR.Float64
		}
	}
	if len(runs) == 0 {
		return CompactWorkout{}, false
	}
	baseline := hrSum / float64(len(runs))
	for _, a := range runs {
		km := a.DistanceM / 1000.0
		if km < 0.1 {
			km = 0.1
		}
		pace := float64(a.MovingTimeS) / km
		if a.AvgHR.Float64 >= baseline+10 && pace > 390 {
			w := compactWorkout(a)
			w.Anomaly = "high_hr_drift"
			return w, true
		}
	}
	return CompactWorkout{}, false
}

func sortCompactByDateDesc(ws []CompactWorkout) {
	for i := 1; i < len(ws); i++ {
		for j := i; j > 0 && ws[j].Date > ws[j-1].Date; j-- {
			ws[j], ws[j-1] = ws[j-1], ws[j]
		}
	}
}

// WeeklyStats summarizes the current calendar week's completed activities.
type WeeklyStats struct {
	WeekStart   string           `json:"week_start"`
	WeekEnd     string           `json:"week_end"`
	Count       int              `json:"count"`
	DistanceKM  float64          `json:"distance_km"`
	DurationMin int              `json:"duration_min"`
	Workouts    []CompactWorkout `json:"workouts"`
}

func weeklyStats(db *sql.DB, userID int64, now time.Time) (*WeeklyStats, error) {
	start, end := weekBounds(now)
	activities, err := models.ListActivitiesBetweenDates(db, userID, start, end)
	if err != nil {
		return nil, err
	}

	stats := &WeeklyStats{WeekStart: start, WeekEnd: end, Count: len(activities)}
	var meters float64
	var seconds int
	for _, a := range activities {
		meters += a.DistanceM
		seconds += a.MovingTimeS
		stats.Workouts = append(stats.Workouts, compactWorkout(a))
	}
	stats.DistanceKM = round1(meters / 1000.0)
	stats.DurationMin = seconds / 60
	return stats, nil
}

// WeekPlanSnapshot is a compact view of the current week's plan used both in
// prompts and as plan context for reply grounding.
type WeekPlanSnapshot struct {
	WeekStart             string            `json:"week_start"`
	WeekEnd               string            `json:"week_end"`
	HasPlan               bool              `json:"has_plan"`
	PlannedSessionCount   int               `json:"planned_session_count"`
	CompletedSessionCount int               `json:"completed_session_count"`
	Days                  []WeekPlanDayView `json:"days"`
}

type WeekPlanDayView struct {
	Date   string `json:"date"`
	Sport  string `json:"sport"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// currentWeekPlan loads this week's planned rows, materializing them from
// the active plan blob first if the denormalized rows are missing.
func currentWeekPlan(db *sql.DB, userID int64, now time.Time) (*WeekPlanSnapshot, error) {
	weekStart, weekEnd := weekBounds(now)

	tp, err := models.GetActivePlanCovering(db, userID, weekStart, weekEnd)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if tp != nil {
		if err := plan.EnsureWeekRows(db, userID, tp); err != nil {
			return nil, err
		}
	}

	rows, err := models.ListPlannedWorkouts(db, userID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	snap := &WeekPlanSnapshot{
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
		HasPlan:   tp != nil || len(rows) > 0,
		Days:      []WeekPlanDayView{},
	}
	for _, row := range rows {
		status := row.Status
		if status == "" {
			status = models.StatusPlanned
		}
		snap.Days = append(snap.Days, WeekPlanDayView{
			Date:   row.PlannedDate,
			Sport:  row.Sport,
			Title:  row.Title,
			Status: status,
		})
		switch status {
		case models.StatusPlanned:
			snap.PlannedSessionCount++
		case models.StatusDone, models.StatusPartialDone:
			snap.CompletedSessionCount++
		}
	}
	return snap, nil
}

// weekBounds returns the Monday and Sunday of the week containing t, as
// YYYY-MM-DD strings.
func weekBounds(t time.Time) (string, string) {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	start := t.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 6)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

// jsonHash produces the content hash used for cache-invalidation checks.
// encoding/json writes map keys in sorted order, so marshaling the same
// logical payload always yields the same bytes.
func jsonHash(payload any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
