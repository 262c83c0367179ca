package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
)

// seedCurrentWeekPlan stores an active plan blob covering the current week
// and returns its bounds.
func seedCurrentWeekPlan(t testing.TB, db *sql.DB, userID int64) (string, string) {
	t.Helper()

	weekStart, weekEnd := weekBoundsFor(time.Now())
	planJSON := fmt.Sprintf(`{
		"week_start": %q,
		"week_end": %q,
		"days": [
			{"date": %q, "sport": "run", "duration_min": 45, "distance_km": 8, "hr_zone": "Z2", "title": "Easy Run", "workout_type": "easy"},
			{"date": %q, "sport": "run", "duration_min": 70, "distance_km": 12, "hr_zone": "Z2", "title": "Long Run", "workout_type": "long"}
		],
		"source": "provider"
	}`, weekStart, weekEnd, weekStart, weekEnd)

	if _, err := models.UpsertActivePlan(db, userID, weekStart, weekEnd, planJSON); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return weekStart, weekEnd
}

func TestPlans_Get_NoPlan(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, _ := doJSON(t, srv, http.MethodGet, userPath(id, "/plan"), nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestPlans_Get_MaterializesAndReconciles(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")
	weekStart, _ := seedCurrentWeekPlan(t, db, id)

	status, body := doJSON(t, srv, http.MethodGet, userPath(id, "/plan"), nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	if body["week_start"] != weekStart {
		t.Errorf("week_start = %v, want %v", body["week_start"], weekStart)
	}
	days, ok := body["days"].([]any)
	if !ok || len(days) != 2 {
		t.Fatalf("days = %v, want 2 entries", body["days"])
	}
	first := days[0].(map[string]any)
	if first["title"] != "Easy Run" {
		t.Errorf("title = %v, want Easy Run", first["title"])
	}
	// Reconcile-on-read assigns every row a concrete status.
	for _, d := range days {
		if d.(map[string]any)["status"] == "" {
			t.Errorf("day %v has empty status after read", d)
		}
	}
}

func TestPlans_Generate_FallbackWithoutProvider(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")
	seedActivity(t, db, id, 2, 6, 35)

	status, body := doJSON(t, srv, http.MethodPost, userPath(id, "/plan/generate"), nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	planBlob, ok := body["plan"].(map[string]any)
	if !ok {
		t.Fatalf("plan missing from response: %v", body)
	}
	days, ok := planBlob["days"].([]any)
	if !ok || len(days) != 3 {
		t.Errorf("fallback plan days = %v, want 3", planBlob["days"])
	}

	// A second call with identical inputs is skipped.
	status, body = doJSON(t, srv, http.MethodPost, userPath(id, "/plan/generate"), nil)
	if status != http.StatusOK {
		t.Fatalf("second status = %d", status)
	}
	if body["skipped"] != true {
		t.Errorf("skipped = %v, want true on unchanged inputs", body["skipped"])
	}

	// force=1 regenerates regardless.
	status, body = doJSON(t, srv, http.MethodPost, userPath(id, "/plan/generate?force=1"), nil)
	if status != http.StatusOK {
		t.Fatalf("forced status = %d", status)
	}
	if body["skipped"] == true {
		t.Error("forced generate was skipped")
	}
}

func TestPlans_Reconcile(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")
	seedCurrentWeekPlan(t, db, id)

	// Materialize rows first via the read path.
	if status, _ := doJSON(t, srv, http.MethodGet, userPath(id, "/plan"), nil); status != http.StatusOK {
		t.Fatalf("plan read status = %d", status)
	}

	status, body := doJSON(t, srv, http.MethodPost, userPath(id, "/plan/reconcile"), nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	if _, ok := body["changed"]; !ok {
		t.Errorf("response missing changed count: %v", body)
	}
}

func TestWeekBoundsFor(t *testing.T) {
	cases := []struct {
		day       string
		wantStart string
		wantEnd   string
	}{
		{"2026-08-24", "2026-08-24", "2026-08-30"}, // Monday
		{"2026-08-28", "2026-08-24", "2026-08-30"}, // Friday
		{"2026-08-30", "2026-08-24", "2026-08-30"}, // Sunday
	}
	for _, tc := range cases {
		d, err := time.Parse("2006-01-02", tc.day)
		if err != nil {
			t.Fatal(err)
		}
		start, end := weekBoundsFor(d)
		if start != tc.wantStart || end != tc.wantEnd {
			t.Errorf("weekBoundsFor(%s) = %s..%s, want %s..%s", tc.day, start, end, tc.wantStart, tc.wantEnd)
		}
	}
}
