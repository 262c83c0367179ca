package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TrainingPlan is the authoritative weekly plan blob. One active row exists
// per (user, week start, week end); regeneration overwrites it in place.
type TrainingPlan struct {
	ID        int64
	UserID    int64
	Status    string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	PlanJSON  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertActivePlan creates or replaces the active plan for a week and
// returns the stored row.
func UpsertActivePlan(db *sql.DB, userID int64, startDate, endDate, planJSON string) (*TrainingPlan, error) {
	startDate = normalizeDate(startDate)
	endDate = normalizeDate(endDate)
	_, err := db.Exec(
		`INSERT INTO training_plans (user_id, status, start_date, end_date, plan_json, updated_at)
		 VALUES (?, 'active', ?, ?, ?, ?)
		 ON CONFLICT (user_id, status, start_date, end_date) DO UPDATE SET
		   plan_json = excluded.plan_json,
		   updated_at = excluded.updated_at`,
		userID, startDate, endDate, planJSON, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("models: upsert plan for user %d week %s: %w", userID, startDate, err)
	}
	return GetActivePlanByStart(db, userID, startDate)
}

// GetActivePlanByStart retrieves the active plan starting exactly on startDate.
func GetActivePlanByStart(db *sql.DB, userID int64, startDate string) (*TrainingPlan, error) {
	return queryPlan(db,
		`SELECT id, user_id, status, start_date, end_date, plan_json, created_at, updated_at
		 FROM training_plans
		 WHERE user_id = ? AND status = 'active' AND start_date = ?
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, normalizeDate(startDate))
}

// GetActivePlanCovering retrieves the most recent active plan whose week
// overlaps [weekStart, weekEnd].
func GetActivePlanCovering(db *sql.DB, userID int64, weekStart, weekEnd string) (*TrainingPlan, error) {
	return queryPlan(db,
		`SELECT id, user_id, status, start_date, end_date, plan_json, created_at, updated_at
		 FROM training_plans
		 WHERE user_id = ? AND status = 'active' AND start_date <= ? AND end_date >= ?
		 ORDER BY start_date DESC LIMIT 1`,
		userID, normalizeDate(weekEnd), normalizeDate(weekStart))
}

func queryPlan(db *sql.DB, query string, args ...any) (*TrainingPlan, error) {
	tp := &TrainingPlan{}
	err := db.QueryRow(query, args...).Scan(&tp.ID, &tp.UserID, &tp.Status,
		&tp.StartDate, &tp.EndDate, &tp.PlanJSON, &tp.CreatedAt, &tp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: query training plan: %w", err)
	}
	tp.StartDate = normalizeDate(tp.StartDate)
	tp.EndDate = normalizeDate(tp.EndDate)
	return tp, nil
}
