// Package plan maintains the denormalized planned-workout rows for a week
// and reconciles their statuses against observed activity data.
package plan

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
)

// DayRow is one day inside a plan blob's days[] array, and the shape a
// planned-workout row is built from.
type DayRow struct {
	Date        string   `json:"date"`
	Sport       string   `json:"sport"`
	DurationMin int      `json:"duration_min"`
	DistanceKM  *float64 `json:"distance_km"`
	HRZone      string   `json:"hr_zone"`
	Title       string   `json:"title"`
	WorkoutType string   `json:"workout_type"`
	CoachNotes  string   `json:"coach_notes"`
	Status      string   `json:"status"`
	MainSet     string   `json:"main_set,omitempty"`
}

// ReplaceWeekRows deletes a user's planned rows for the week and rebuilds
// them from days. Rows with an unparseable date are skipped. Returns the
// number of rows inserted.
func ReplaceWeekRows(db *sql.DB, userID int64, weekStart, weekEnd string, days []DayRow, trainingPlanID int64, source string) (int, error) {
	if err := models.DeletePlannedWorkoutsForWeek(db, userID, weekStart, weekEnd); err != nil {
		return 0, err
	}

	inserted := 0
	for idx, day := range days {
		if _, err := time.Parse("2006-01-02", day.Date); err != nil {
			continue
		}
		sport := strings.ToLower(strings.TrimSpace(day.Sport))
		if sport == "" {
			sport = "run"
		}
		status := day.Status
		if status == "" {
			status = models.StatusPlanned
		}
		row := &models.PlannedWorkout{
			UserID:      userID,
			WeekStart:   weekStart,
			WeekEnd:     weekEnd,
			PlannedDate: day.Date,
			Sport:       truncate(sport, 32),
			DurationMin: day.DurationMin,
			HRZone:      truncate(day.HRZone, 16),
			Title:       truncate(day.Title, 255),
			WorkoutType: truncate(day.WorkoutType, 64),
			CoachNotes:  day.CoachNotes,
			Status:      truncate(status, 16),
			SortOrder:   idx,
			Source:      truncate(source, 32),
		}
		if trainingPlanID > 0 {
			row.TrainingPlanID = sql.NullInt64{Int64: trainingPlanID, Valid: true}
		}
		if day.DistanceKM != nil {
			row.DistanceKM = sql.NullFloat64{Float64: *day.DistanceKM, Valid: true}
		}
		if _, err := models.InsertPlannedWorkout(db, row); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// EnsureWeekRows materializes planned rows from a plan blob if the week has
// none yet. A week that already has rows is left alone: reconciliation may
// have mutated their statuses.
func EnsureWeekRows(db *sql.DB, userID int64, tp *models.TrainingPlan) error {
	if tp == nil || tp.PlanJSON == "" {
		return nil
	}
	exists, err := models.HasPlannedWorkouts(db, userID, tp.StartDate, tp.EndDate)
	if err != nil || exists {
		return err
	}

	var blob struct {
		Days   []DayRow `json:"days"`
		Source string   `json:"source"`
	}
	if err := json.Unmarshal([]byte(tp.PlanJSON), &blob); err != nil {
		return nil
	}
	source := blob.Source
	if source == "" {
		source = "plan_json"
	}
	_, err = ReplaceWeekRows(db, userID, tp.StartDate, tp.EndDate, blob.Days, tp.ID, source)
	return err
}

// RowMeta is the reconciliation evidence stored on each planned row.
type RowMeta struct {
	ActualDistanceKM     float64  `json:"actual_distance_km"`
	PlannedDistanceKM    float64  `json:"planned_distance_km"`
	DistanceDeviationPct *float64 `json:"distance_deviation_pct"`
	MatchedActivityCount int      `json:"matched_activity_count"`
}

type dayBucket struct {
	count      int
	distanceKM float64
}

// RefreshWeekStatuses re-derives the status of every planned row in the week
// from the activities recorded on its date. Idempotent: every row is
// re-evaluated each pass, so a late-arriving activity can still flip a
// terminal state. Returns the number of rows whose status changed; meta-only
// updates are written but not counted.
func RefreshWeekStatuses(db *sql.DB, userID int64, weekStart, weekEnd string, today time.Time) (int, error) {
	rows, err := models.ListPlannedWorkouts(db, userID, weekStart, weekEnd)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	activities, err := models.ListActivitiesBetweenDates(db, userID, weekStart, weekEnd)
	if err != nil {
		return 0, err
	}

	// Bucket actuals by (date, normalized sport). Vendor sport strings vary
	// ("VirtualRide", "EBikeRide"), so the bucket key is the contained token.
	buckets := map[string]*dayBucket{}
	for _, a := range activities {
		key := a.StartTime.Format("2006-01-02") + "|" + normalizeSport(a.Type)
		b := buckets[key]
		if b == nil {
			b = &dayBucket{}
			buckets[key] = b
		}
		b.count++
		b.distanceKM += a.DistanceM / 1000.0
	}

	todayDate := today.Format("2006-01-02")
	changed := 0
	for _, row := range rows {
		b := buckets[row.PlannedDate+"|"+strings.ToLower(row.Sport)]
		hasMatch := b != nil && b.count > 0

		var actualKM float64
		matchCount := 0
		if hasMatch {
			actualKM = b.distanceKM
			matchCount = b.count
		}
		plannedKM := 0.0
		if row.DistanceKM.Valid {
			plannedKM = row.DistanceKM.Float64
		}

		var deviationPct *float64
		if hasMatch && plannedKM > 0 {
			d := math.Abs(actualKM-plannedKM) / plannedKM * 100.0
			deviationPct = &d
		}

		past := row.PlannedDate < todayDate
		newStatus := models.StatusPlanned
		switch {
		case hasMatch && plannedKM <= 0:
			newStatus = models.StatusDone
		case hasMatch && *deviationPct <= 5.0:
			newStatus = models.StatusDone
		case hasMatch && *deviationPct <= 50.0:
			newStatus = models.StatusPartialDone
		case past:
			newStatus = models.StatusMissed
		}

		meta := RowMeta{
			PlannedDistanceKM:    round3(plannedKM),
			MatchedActivityCount: matchCount,
		}
		if hasMatch {
			meta.ActualDistanceKM = round3(actualKM)
		}
		if deviationPct != nil {
			d := math.Round(*deviationPct*100) / 100
			meta.DistanceDeviationPct = &d
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return changed, fmt.Errorf("plan: marshal meta for row %d: %w", row.ID, err)
		}

		switch {
		case row.Status != newStatus:
			if err := models.UpdatePlannedWorkoutStatus(db, row.ID, newStatus, string(metaJSON)); err != nil {
				return changed, err
			}
			changed++
		case row.MetaJSON != string(metaJSON):
			if err := models.UpdatePlannedWorkoutMeta(db, row.ID, string(metaJSON)); err != nil {
				return changed, err
			}
		}
	}
	return changed, nil
}

// SerializedWeek is the row-backed view of a week's plan.
type SerializedWeek struct {
	WeekStart string   `json:"week_start"`
	WeekEnd   string   `json:"week_end"`
	Days      []DayRow `json:"days"`
	Source    string   `json:"source"`
}

// SerializeWeekPlan renders the planned rows for a week back into the
// days[] shape.
func SerializeWeekPlan(db *sql.DB, userID int64, weekStart, weekEnd string) (*SerializedWeek, error) {
	rows, err := models.ListPlannedWorkouts(db, userID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	out := &SerializedWeek{
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
		Days:      []DayRow{},
		Source:    "planned_workout_table",
	}
	for _, row := range rows {
		day := DayRow{
			Date:        row.PlannedDate,
			Sport:       row.Sport,
			DurationMin: row.DurationMin,
			HRZone:      row.HRZone,
			Title:       row.Title,
			WorkoutType: row.WorkoutType,
			CoachNotes:  row.CoachNotes,
			Status:      row.Status,
		}
		if row.DistanceKM.Valid {
			km := row.DistanceKM.Float64
			day.DistanceKM = &km
		}
		out.Days = append(out.Days, day)
	}
	if len(rows) > 0 {
		out.Source = rows[0].Source
	}
	return out, nil
}

// normalizeSport collapses a vendor sport-type string onto the token a
// planned row uses.
func normalizeSport(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "run"):
		return "run"
	case strings.Contains(s, "swim"):
		return "swim"
	case strings.Contains(s, "ride") || strings.Contains(s, "bike") || strings.Contains(s, "cycle"):
		return "ride"
	default:
		return truncate(s, 32)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
