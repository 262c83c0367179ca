package handlers

import (
	"net/http"
	"testing"
)

func TestProfiles_Get_CreatesEmpty(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, body := doJSON(t, srv, http.MethodGet, userPath(id, "/profile"), nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	if body["user_id"] != float64(id) {
		t.Errorf("user_id = %v, want %d", body["user_id"], id)
	}
}

func TestProfiles_Update_PatchesFields(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, body := doJSON(t, srv, http.MethodPatch, userPath(id, "/profile"), map[string]any{
		"display_name":        "Alex",
		"primary_sport":       "run",
		"goal_event_name":     "City Half",
		"goal_event_date":     "2026-11-15",
		"weekly_target_hours": 6.5,
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	if body["display_name"] != "Alex" {
		t.Errorf("display_name = %v, want Alex", body["display_name"])
	}
	if body["goal_event_date"] != "2026-11-15" {
		t.Errorf("goal_event_date = %v, want 2026-11-15", body["goal_event_date"])
	}

	// A later patch leaves untouched fields alone.
	status, body = doJSON(t, srv, http.MethodPatch, userPath(id, "/profile"), map[string]any{
		"injury_notes": "left knee niggle",
	})
	if status != http.StatusOK {
		t.Fatalf("second patch status = %d", status)
	}
	if body["display_name"] != "Alex" {
		t.Errorf("display_name = %v after unrelated patch, want Alex", body["display_name"])
	}
	if body["injury_notes"] != "left knee niggle" {
		t.Errorf("injury_notes = %v", body["injury_notes"])
	}
}

func TestProfiles_Update_ReplacesSchedule(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, body := doJSON(t, srv, http.MethodPatch, userPath(id, "/profile"), map[string]any{
		"schedule": map[string]any{
			"days_available": []string{"mon", "wed", "sat"},
			"ai_settings":    map[string]any{"lookback_days": 21},
		},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	schedule, ok := body["schedule"].(map[string]any)
	if !ok {
		t.Fatalf("schedule missing: %v", body)
	}
	if _, ok := schedule["ai_settings"]; !ok {
		t.Errorf("ai_settings missing from schedule: %v", schedule)
	}
}

func TestProfiles_Update_BadGoalDate(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, _ := doJSON(t, srv, http.MethodPatch, userPath(id, "/profile"), map[string]any{
		"goal_event_date": "Nov 15",
	})
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestProfiles_Update_BadSchedule(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, _ := doJSON(t, srv, http.MethodPatch, userPath(id, "/profile"), map[string]any{
		"schedule": []string{"mon", "wed"},
	})
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}
