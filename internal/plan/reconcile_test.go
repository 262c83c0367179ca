package plan

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stridelab/stridecoach/internal/database"
	"github.com/stridelab/stridecoach/internal/models"
)

func testDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testUser(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	u, err := models.CreateUser(db, "runner", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func addActivity(t *testing.T, db *sql.DB, userID int64, sportType, date string, distanceKM float64) {
	t.Helper()
	start, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("parse date %q: %v", date, err)
	}
	_, err = models.CreateActivity(db, &models.Activity{
		UserID:      userID,
		Type:        sportType,
		Name:        sportType + " session",
		StartTime:   start.Add(8 * time.Hour),
		DistanceM:   distanceKM * 1000,
		MovingTimeS: 3000,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
}

func plannedRun(t *testing.T, db *sql.DB, userID int64, date string, distanceKM float64) int64 {
	t.Helper()
	km := distanceKM
	n, err := ReplaceWeekRows(db, userID, "2026-08-24", "2026-08-30", []DayRow{
		{Date: date, Sport: "run", DurationMin: 50, DistanceKM: &km, Title: "Easy", WorkoutType: "easy"},
	}, 0, "test")
	if err != nil {
		t.Fatalf("replace week rows: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted %d rows, want 1", n)
	}
	rows, err := models.ListPlannedWorkouts(db, userID, "2026-08-24", "2026-08-30")
	if err != nil {
		t.Fatalf("list planned workouts: %v", err)
	}
	return rows[0].ID
}

func rowStatus(t *testing.T, db *sql.DB, userID int64) *models.PlannedWorkout {
	t.Helper()
	rows, err := models.ListPlannedWorkouts(db, userID, "2026-08-24", "2026-08-30")
	if err != nil {
		t.Fatalf("list planned workouts: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	return rows[0]
}

// today for all reconciliation tests: Friday of the planned week.
var testToday = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func TestRefreshWeekStatuses(t *testing.T) {
	cases := []struct {
		name       string
		plannedKM  float64
		date       string
		actualKM   float64 // 0 = no activity
		wantStatus string
	}{
		{"small deviation is done", 10, "2026-08-25", 10.3, models.StatusDone},
		{"moderate deviation is partial", 10, "2026-08-25", 6, models.StatusPartialDone},
		{"large deviation past is missed", 10, "2026-08-25", 2, models.StatusMissed},
		{"no match past is missed", 10, "2026-08-25", 0, models.StatusMissed},
		{"no match future stays planned", 10, "2026-08-30", 0, models.StatusPlanned},
		{"large deviation future stays planned", 10, "2026-08-30", 2, models.StatusPlanned},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := testDB(t)
			userID := testUser(t, db)
			plannedRun(t, db, userID, tc.date, tc.plannedKM)
			if tc.actualKM > 0 {
				addActivity(t, db, userID, "Run", tc.date, tc.actualKM)
			}

			changed, err := RefreshWeekStatuses(db, userID, "2026-08-24", "2026-08-30", testToday)
			if err != nil {
				t.Fatalf("refresh: %v", err)
			}
			row := rowStatus(t, db, userID)
			if row.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", row.Status, tc.wantStatus)
			}
			wantChanged := 0
			if tc.wantStatus != models.StatusPlanned {
				wantChanged = 1
			}
			if changed != wantChanged {
				t.Errorf("changed = %d, want %d", changed, wantChanged)
			}
		})
	}
}

func TestRefreshWeekStatusesLooseSportMatch(t *testing.T) {
	db := testDB(t)
	userID := testUser(t, db)

	km := 20.0
	if _, err := ReplaceWeekRows(db, userID, "2026-08-24", "2026-08-30", []DayRow{
		{Date: "2026-08-25", Sport: "ride", DistanceKM: &km},
	}, 0, "test"); err != nil {
		t.Fatalf("replace week rows: %v", err)
	}
	// Vendor sport-type variant must still match the planned "ride".
	addActivity(t, db, userID, "VirtualRide", "2026-08-25", 20.2)

	if _, err := RefreshWeekStatuses(db, userID, "2026-08-24", "2026-08-30", testToday); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := rowStatus(t, db, userID).Status; got != models.StatusDone {
		t.Errorf("status = %q, want done", got)
	}
}

func TestRefreshWeekStatusesZeroPlannedDistance(t *testing.T) {
	db := testDB(t)
	userID := testUser(t, db)

	if _, err := ReplaceWeekRows(db, userID, "2026-08-24", "2026-08-30", []DayRow{
		{Date: "2026-08-25", Sport: "run", DurationMin: 40},
	}, 0, "test"); err != nil {
		t.Fatalf("replace week rows: %v", err)
	}
	addActivity(t, db, userID, "Run", "2026-08-25", 5)

	if _, err := RefreshWeekStatuses(db, userID, "2026-08-24", "2026-08-30", testToday); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// Any match completes a row with no distance target.
	if got := rowStatus(t, db, userID).Status; got != models.StatusDone {
		t.Errorf("status = %q, want done", got)
	}
}

func TestRefreshWeekStatusesWritesMeta(t *testing.T) {
	db := testDB(t)
	userID := testUser(t, db)
	plannedRun(t, db, userID, "2026-08-25", 10)
	addActivity(t, db, userID, "Run", "2026-08-25", 6)

	if _, err := RefreshWeekStatuses(db, userID, "2026-08-24", "2026-08-30", testToday); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	var meta RowMeta
	if err := json.Unmarshal([]byte(rowStatus(t, db, userID).MetaJSON), &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.ActualDistanceKM != 6 {
		t.Errorf("actual = %v, want 6", meta.ActualDistanceKM)
	}
	if meta.PlannedDistanceKM != 10 {
		t.Errorf("planned = %v, want 10", meta.PlannedDistanceKM)
	}
	if meta.DistanceDeviationPct == nil || *meta.DistanceDeviationPct != 40 {
		t.Errorf("deviation = %v, want 40", meta.DistanceDeviationPct)
	}
	if meta.MatchedActivityCount != 1 {
		t.Errorf("matched = %d, want 1", meta.MatchedActivityCount)
	}
}

func TestRefreshWeekStatusesIdempotentAndReversible(t *testing.T) {
	db := testDB(t)
	userID := testUser(t, db)
	plannedRun(t, db, userID, "2026-08-25", 10)

	// First pass: no match on a past date, row goes missed.
	changed, err := RefreshWeekStatuses(db, userID, "2026-08-24", "2026-08-30", testToday)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}

	// Second pass with no new data changes nothing.
	changed, err = RefreshWeekStatuses(db, userID, "2026-08-24", "2026-08-30", testToday)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if changed != 0 {
		t.Errorf("changed = %d, want 0", changed)
	}

	// Late-arriving activity data flips the terminal state back.
	addActivity(t, db, userID, "Run", "2026-08-25", 10.1)
	changed, err = RefreshWeekStatuses(db, userID, "2026-08-24", "2026-08-30", testToday)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if got := rowStatus(t, db, userID).Status; got != models.StatusDone {
		t.Errorf("status = %q, want done", got)
	}
}

func TestReplaceWeekRowsSkipsBadDates(t *testing.T) {
	db := testDB(t)
	userID := testUser(t, db)

	n, err := ReplaceWeekRows(db, userID, "2026-08-24", "2026-08-30", []DayRow{
		{Date: "2026-08-25", Sport: "run"},
		{Date: "soon", Sport: "run"},
		{Date: "", Sport: "run"},
	}, 0, "test")
	if err != nil {
		t.Fatalf("replace week rows: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d rows, want 1", n)
	}
}

func TestEnsureWeekRows(t *testing.T) {
	db := testDB(t)
	userID := testUser(t, db)

	blob := `{"week_start":"2026-08-24","week_end":"2026-08-30","source":"provider","days":[
		{"date":"2026-08-24","sport":"run","duration_min":45,"distance_km":8},
		{"date":"2026-08-27","sport":"run","duration_min":70,"distance_km":12}]}`
	tp, err := models.UpsertActivePlan(db, userID, "2026-08-24", "2026-08-30", blob)
	if err != nil {
		t.Fatalf("upsert plan: %v", err)
	}

	if err := EnsureWeekRows(db, userID, tp); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	rows, err := models.ListPlannedWorkouts(db, userID, "2026-08-24", "2026-08-30")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Source != "provider" {
		t.Errorf("source = %q, want provider", rows[0].Source)
	}

	// A second ensure must not clobber reconciled statuses.
	if err := models.UpdatePlannedWorkoutStatus(db, rows[0].ID, models.StatusDone, "{}"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := EnsureWeekRows(db, userID, tp); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	rows, _ = models.ListPlannedWorkouts(db, userID, "2026-08-24", "2026-08-30")
	if rows[0].Status != models.StatusDone {
		t.Errorf("status = %q, want done after re-ensure", rows[0].Status)
	}
}

func TestSerializeWeekPlan(t *testing.T) {
	db := testDB(t)
	userID := testUser(t, db)
	plannedRun(t, db, userID, "2026-08-25", 10)

	week, err := SerializeWeekPlan(db, userID, "2026-08-24", "2026-08-30")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(week.Days) != 1 {
		t.Fatalf("got %d days, want 1", len(week.Days))
	}
	day := week.Days[0]
	if day.Date != "2026-08-25" || day.Sport != "run" {
		t.Errorf("day = %+v", day)
	}
	if day.DistanceKM == nil || *day.DistanceKM != 10 {
		t.Errorf("distance = %v, want 10", day.DistanceKM)
	}
	if week.Source != "test" {
		t.Errorf("source = %q, want test", week.Source)
	}
}

func TestNormalizeSport(t *testing.T) {
	cases := map[string]string{
		"Run":         "run",
		"TrailRun":    "run",
		"VirtualRide": "ride",
		"EBikeRide":   "ride",
		"Swim":        "swim",
		"Yoga":        "yoga",
	}
	for in, want := range cases {
		if got := normalizeSport(in); got != want {
			t.Errorf("normalizeSport(%q) = %q, want %q", in, got, want)
		}
	}
}
