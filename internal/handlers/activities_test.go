package handlers

import (
	"fmt"
	"net/http"
	"testing"
)

func TestActivities_Create_And_List(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, body := doJSON(t, srv, http.MethodPost, userPath(id, "/activities"), map[string]any{
		"date":         "2026-08-27",
		"type":         "Run",
		"name":         "Tempo",
		"distance_km":  8.0,
		"duration_min": 40,
		"avg_hr":       158.0,
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d (body %v)", status, http.StatusCreated, body)
	}
	if body["distance_km"] != 8.0 {
		t.Errorf("distance_km = %v, want 8", body["distance_km"])
	}

	status, body = doJSON(t, srv, http.MethodGet, userPath(id, "/activities?days=30"), nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d, want %d", status, http.StatusOK)
	}
	activities, ok := body["activities"].([]any)
	if !ok || len(activities) != 1 {
		t.Fatalf("activities = %v, want 1 entry", body["activities"])
	}
	first := activities[0].(map[string]any)
	if first["name"] != "Tempo" {
		t.Errorf("name = %v, want Tempo", first["name"])
	}
	if first["avg_hr"] != 158.0 {
		t.Errorf("avg_hr = %v, want 158", first["avg_hr"])
	}
}

func TestActivities_Create_Validation(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad date", map[string]any{"date": "08/27/2026", "type": "Run"}},
		{"missing type", map[string]any{"date": "2026-08-27"}},
		{"unknown field", map[string]any{"date": "2026-08-27", "type": "Run", "pace": "5:00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := doJSON(t, srv, http.MethodPost, userPath(id, "/activities"), tc.body)
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
			}
		})
	}
}

func TestActivities_Create_DuplicateExternalID(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	body := map[string]any{
		"date": "2026-08-27", "type": "Run", "external_id": "trk-1",
		"distance_km": 5.0, "duration_min": 30,
	}
	status, _ := doJSON(t, srv, http.MethodPost, userPath(id, "/activities"), body)
	if status != http.StatusCreated {
		t.Fatalf("first create status = %d, want %d", status, http.StatusCreated)
	}
	status, _ = doJSON(t, srv, http.MethodPost, userPath(id, "/activities"), body)
	if status != http.StatusConflict {
		t.Errorf("second create status = %d, want %d", status, http.StatusConflict)
	}
}

func TestActivities_Import_CSV(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	csv := "Date,Type,Name,Distance,Duration,Avg HR,External ID\n" +
		"2026-08-25,Run,Morning Run,6.0,30,142,trk-1\n" +
		"2026-08-26,Run,Tempo,8.0,40,158,trk-2\n" +
		",Run,No Date,5.0,25,,trk-3\n"

	status, body := uploadCSV(t, srv, userPath(id, "/activities/import"), csv)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	if body["imported"] != 2.0 {
		t.Errorf("imported = %v, want 2", body["imported"])
	}

	// Re-importing the same file skips both rows on external id.
	status, body = uploadCSV(t, srv, userPath(id, "/activities/import"), csv)
	if status != http.StatusOK {
		t.Fatalf("re-import status = %d", status)
	}
	if body["imported"] != 0.0 || body["skipped"] != 2.0 {
		t.Errorf("re-import = %v, want 0 imported / 2 skipped", body)
	}
}

func TestActivities_Import_MissingFile(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")

	status, _ := doJSON(t, srv, http.MethodPost, userPath(id, "/activities/import"), map[string]any{})
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestActivities_React_Fallback(t *testing.T) {
	srv, db := testServer(t)
	id := seedUser(t, db, "runner")
	a := seedActivity(t, db, id, 1, 6, 35)

	status, body := doJSON(t, srv, http.MethodPost, userPath(id, fmt.Sprintf("/activities/%d/reaction", a.ID)), nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %v)", status, http.StatusOK, body)
	}
	if body["answer"] == "" || body["answer"] == nil {
		t.Error("answer is empty")
	}
	if body["status"] != "fallback" {
		t.Errorf("status = %v, want fallback without a provider", body["status"])
	}
}

func TestActivities_React_WrongOwner(t *testing.T) {
	srv, db := testServer(t)
	owner := seedUser(t, db, "owner")
	other := seedUser(t, db, "other")
	a := seedActivity(t, db, owner, 1, 6, 35)

	status, _ := doJSON(t, srv, http.MethodPost, userPath(other, fmt.Sprintf("/activities/%d/reaction", a.ID)), nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
}
