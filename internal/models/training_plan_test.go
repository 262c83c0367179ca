package models

import (
	"testing"
)

func TestUpsertActivePlan(t *testing.T) {
	db := testDB(t)
	u, _ := CreateUser(db, "tp-user", "")

	tp, err := UpsertActivePlan(db, u.ID, "2026-03-02", "2026-03-08", `{"days":[]}`)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if tp.Status != "active" {
		t.Errorf("status = %q, want active", tp.Status)
	}

	// Regeneration for the same week overwrites, not appends.
	tp2, err := UpsertActivePlan(db, u.ID, "2026-03-02", "2026-03-08", `{"days":[{"date":"2026-03-03"}]}`)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if tp2.ID != tp.ID {
		t.Errorf("id = %d, want %d (same row)", tp2.ID, tp.ID)
	}
	if tp2.PlanJSON == tp.PlanJSON {
		t.Error("plan_json unchanged after regeneration")
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM training_plans WHERE user_id = ?`, u.ID).Scan(&count)
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestGetActivePlanCovering(t *testing.T) {
	db := testDB(t)
	u, _ := CreateUser(db, "cover-user", "")

	UpsertActivePlan(db, u.ID, "2026-03-02", "2026-03-08", `{}`)

	tp, err := GetActivePlanCovering(db, u.ID, "2026-03-02", "2026-03-08")
	if err != nil {
		t.Fatalf("covering: %v", err)
	}
	if tp.StartDate != "2026-03-02" {
		t.Errorf("start = %q, want 2026-03-02", tp.StartDate)
	}

	if _, err := GetActivePlanCovering(db, u.ID, "2026-03-09", "2026-03-15"); err != ErrNotFound {
		t.Errorf("next week err = %v, want ErrNotFound", err)
	}
}
