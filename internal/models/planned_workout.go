package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Planned workout statuses.
const (
	StatusPlanned     = "planned"
	StatusDone        = "done"
	StatusPartialDone = "partial_done"
	StatusMissed      = "missed"
)

// PlannedWorkout is one per-day row denormalized from a training plan's
// days[] blob. Status and meta are mutated in place by reconciliation; the
// rows for a week are fully replaced when the owning plan is regenerated.
type PlannedWorkout struct {
	ID             int64
	UserID         int64
	TrainingPlanID sql.NullInt64
	WeekStart      string // YYYY-MM-DD
	WeekEnd        string // YYYY-MM-DD
	PlannedDate    string // YYYY-MM-DD
	Sport          string
	DurationMin    int
	DistanceKM     sql.NullFloat64
	HRZone         string
	Title          string
	WorkoutType    string
	CoachNotes     string
	Status         string
	SortOrder      int
	Source         string
	MetaJSON       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeletePlannedWorkoutsForWeek removes all rows for a user's week.
func DeletePlannedWorkoutsForWeek(db *sql.DB, userID int64, weekStart, weekEnd string) error {
	_, err := db.Exec(
		`DELETE FROM planned_workouts WHERE user_id = ? AND week_start = ? AND week_end = ?`,
		userID, normalizeDate(weekStart), normalizeDate(weekEnd),
	)
	if err != nil {
		return fmt.Errorf("models: delete planned workouts for user %d week %s: %w", userID, weekStart, err)
	}
	return nil
}

// InsertPlannedWorkout inserts one row and returns its id.
func InsertPlannedWorkout(db *sql.DB, row *PlannedWorkout) (int64, error) {
	if row.Status == "" {
		row.Status = StatusPlanned
	}
	if row.MetaJSON == "" {
		row.MetaJSON = "{}"
	}
	var id int64
	err := db.QueryRow(
		`INSERT INTO planned_workouts
		   (user_id, training_plan_id, week_start, week_end, planned_date, sport, duration_min,
		    distance_km, hr_zone, title, workout_type, coach_notes, status, sort_order, source, meta_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		row.UserID, row.TrainingPlanID, normalizeDate(row.WeekStart), normalizeDate(row.WeekEnd),
		normalizeDate(row.PlannedDate), row.Sport, row.DurationMin, row.DistanceKM, row.HRZone,
		row.Title, row.WorkoutType, row.CoachNotes, row.Status, row.SortOrder, row.Source, row.MetaJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("models: insert planned workout for user %d on %s: %w", row.UserID, row.PlannedDate, err)
	}
	return id, nil
}

// ListPlannedWorkouts returns a user's rows for a week ordered by date,
// sort order, then id.
func ListPlannedWorkouts(db *sql.DB, userID int64, weekStart, weekEnd string) ([]*PlannedWorkout, error) {
	rows, err := db.Query(
		`SELECT id, user_id, training_plan_id, week_start, week_end, planned_date, sport, duration_min,
		        distance_km, hr_zone, title, workout_type, coach_notes, status, sort_order, source, meta_json,
		        created_at, updated_at
		 FROM planned_workouts
		 WHERE user_id = ? AND week_start = ? AND week_end = ?
		 ORDER BY planned_date, sort_order, id`,
		userID, normalizeDate(weekStart), normalizeDate(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("models: list planned workouts for user %d week %s: %w", userID, weekStart, err)
	}
	defer rows.Close()

	var out []*PlannedWorkout
	for rows.Next() {
		row := &PlannedWorkout{}
		if err := rows.Scan(&row.ID, &row.UserID, &row.TrainingPlanID, &row.WeekStart, &row.WeekEnd,
			&row.PlannedDate, &row.Sport, &row.DurationMin, &row.DistanceKM, &row.HRZone, &row.Title,
			&row.WorkoutType, &row.CoachNotes, &row.Status, &row.SortOrder, &row.Source, &row.MetaJSON,
			&row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("models: scan planned workout: %w", err)
		}
		row.WeekStart = normalizeDate(row.WeekStart)
		row.WeekEnd = normalizeDate(row.WeekEnd)
		row.PlannedDate = normalizeDate(row.PlannedDate)
		out = append(out, row)
	}
	return out, rows.Err()
}

// HasPlannedWorkouts reports whether any rows exist for a user's week.
func HasPlannedWorkouts(db *sql.DB, userID int64, weekStart, weekEnd string) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM planned_workouts WHERE user_id = ? AND week_start = ? AND week_end = ?`,
		userID, normalizeDate(weekStart), normalizeDate(weekEnd),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("models: count planned workouts for user %d week %s: %w", userID, weekStart, err)
	}
	return n > 0, nil
}

// UpdatePlannedWorkoutStatus mutates status and meta on one row.
func UpdatePlannedWorkoutStatus(db *sql.DB, id int64, status, metaJSON string) error {
	result, err := db.Exec(
		`UPDATE planned_workouts SET status = ?, meta_json = ?, updated_at = ? WHERE id = ?`,
		status, metaJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("models: update planned workout %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePlannedWorkoutMeta mutates only the meta blob on one row.
func UpdatePlannedWorkoutMeta(db *sql.DB, id int64, metaJSON string) error {
	result, err := db.Exec(
		`UPDATE planned_workouts SET meta_json = ?, updated_at = ? WHERE id = ?`,
		metaJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("models: update planned workout %d meta: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserIDsWithPlannedWeek returns users having planned rows for the week.
// Used by the scheduler's reconciliation pass.
func ListUserIDsWithPlannedWeek(db *sql.DB, weekStart, weekEnd string) ([]int64, error) {
	rows, err := db.Query(
		`SELECT DISTINCT user_id FROM planned_workouts WHERE week_start = ? AND week_end = ? ORDER BY user_id`,
		normalizeDate(weekStart), normalizeDate(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("models: list users with planned week %s: %w", weekStart, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("models: scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
