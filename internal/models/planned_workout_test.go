package models

import (
	"database/sql"
	"testing"
)

func TestPlannedWorkoutWeekReplacement(t *testing.T) {
	db := testDB(t)
	u, _ := CreateUser(db, "plan-user", "")

	row := &PlannedWorkout{
		UserID:      u.ID,
		WeekStart:   "2026-03-02",
		WeekEnd:     "2026-03-08",
		PlannedDate: "2026-03-03",
		Sport:       "run",
		DurationMin: 45,
		DistanceKM:  sql.NullFloat64{Float64: 8, Valid: true},
		Title:       "Easy",
		WorkoutType: "easy",
	}
	if _, err := InsertPlannedWorkout(db, row); err != nil {
		t.Fatalf("insert: %v", err)
	}
	row.PlannedDate = "2026-03-07"
	row.Title = "Long"
	row.WorkoutType = "long"
	row.SortOrder = 1
	if _, err := InsertPlannedWorkout(db, row); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	rows, err := ListPlannedWorkouts(db, u.ID, "2026-03-02", "2026-03-08")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	if rows[0].PlannedDate != "2026-03-03" {
		t.Errorf("first row date = %q, want 2026-03-03", rows[0].PlannedDate)
	}
	if rows[0].Status != StatusPlanned {
		t.Errorf("default status = %q, want planned", rows[0].Status)
	}

	if err := DeletePlannedWorkoutsForWeek(db, u.ID, "2026-03-02", "2026-03-08"); err != nil {
		t.Fatalf("delete week: %v", err)
	}
	has, _ := HasPlannedWorkouts(db, u.ID, "2026-03-02", "2026-03-08")
	if has {
		t.Error("rows remain after week replacement delete")
	}
}

func TestUpdatePlannedWorkoutStatus(t *testing.T) {
	db := testDB(t)
	u, _ := CreateUser(db, "status-user", "")

	id, err := InsertPlannedWorkout(db, &PlannedWorkout{
		UserID:      u.ID,
		WeekStart:   "2026-03-02",
		WeekEnd:     "2026-03-08",
		PlannedDate: "2026-03-04",
		Sport:       "run",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	meta := `{"actual_distance_km":10.3,"distance_deviation_pct":3.0}`
	if err := UpdatePlannedWorkoutStatus(db, id, StatusDone, meta); err != nil {
		t.Fatalf("update status: %v", err)
	}

	rows, _ := ListPlannedWorkouts(db, u.ID, "2026-03-02", "2026-03-08")
	if rows[0].Status != StatusDone {
		t.Errorf("status = %q, want done", rows[0].Status)
	}
	if rows[0].MetaJSON != meta {
		t.Errorf("meta = %q, want %q", rows[0].MetaJSON, meta)
	}

	if err := UpdatePlannedWorkoutStatus(db, 99999, StatusDone, "{}"); err != ErrNotFound {
		t.Errorf("missing row err = %v, want ErrNotFound", err)
	}
}

func TestListUserIDsWithPlannedWeek(t *testing.T) {
	db := testDB(t)
	u1, _ := CreateUser(db, "week-user-1", "")
	u2, _ := CreateUser(db, "week-user-2", "")

	for _, uid := range []int64{u1.ID, u2.ID} {
		InsertPlannedWorkout(db, &PlannedWorkout{
			UserID: uid, WeekStart: "2026-03-02", WeekEnd: "2026-03-08",
			PlannedDate: "2026-03-03", Sport: "run",
		})
	}

	ids, err := ListUserIDsWithPlannedWeek(db, "2026-03-02", "2026-03-08")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("len = %d, want 2", len(ids))
	}
}
