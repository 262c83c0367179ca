package models

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AthleteProfile holds per-user coaching inputs: goal, schedule blob,
// constraints, and injury notes. The schedule blob also carries the per-user
// AI settings (lookback days, feature flags) under an "ai_settings" key.
type AthleteProfile struct {
	ID                int64
	UserID            int64
	DisplayName       string
	PrimarySport      string
	Age               sql.NullInt64
	ExperienceLevel   string
	GoalEventName     string
	GoalEventDate     sql.NullString // YYYY-MM-DD
	Goals             string
	ScheduleJSON      string
	Constraints       string
	InjuryNotes       string
	WeeklyTargetHours float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Schedule decodes the schedule blob. A malformed blob decodes as empty —
// profile edits from older clients must never break generation.
func (p *AthleteProfile) Schedule() map[string]any {
	out := map[string]any{}
	if p.ScheduleJSON != "" {
		_ = json.Unmarshal([]byte(p.ScheduleJSON), &out)
	}
	return out
}

// GetOrCreateProfile returns the profile for a user, creating an empty one
// if none exists yet.
func GetOrCreateProfile(db *sql.DB, userID int64) (*AthleteProfile, error) {
	p, err := getProfileByUser(db, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = db.Exec(`INSERT INTO athlete_profiles (user_id) VALUES (?)`, userID)
	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("models: create profile for user %d: %w", userID, err)
	}
	return getProfileByUser(db, userID)
}

func getProfileByUser(db *sql.DB, userID int64) (*AthleteProfile, error) {
	p := &AthleteProfile{}
	err := db.QueryRow(
		`SELECT id, user_id, display_name, primary_sport, age, experience_level,
		        goal_event_name, goal_event_date, goals, schedule_json, constraints,
		        injury_notes, weekly_target_hours, created_at, updated_at
		 FROM athlete_profiles WHERE user_id = ?`, userID,
	).Scan(&p.ID, &p.UserID, &p.DisplayName, &p.PrimarySport, &p.Age, &p.ExperienceLevel,
		&p.GoalEventName, &p.GoalEventDate, &p.Goals, &p.ScheduleJSON, &p.Constraints,
		&p.InjuryNotes, &p.WeeklyTargetHours, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get profile for user %d: %w", userID, err)
	}
	return p, nil
}

// ProfileUpdate carries field-scoped profile changes. Nil fields are left
// untouched, so concurrent edits to unrelated fields do not clobber each
// other. This is a correctness requirement: onboarding and settings flows
// write the same row.
type ProfileUpdate struct {
	DisplayName       *string
	PrimarySport      *string
	Age               *int64
	ExperienceLevel   *string
	GoalEventName     *string
	GoalEventDate     *string
	Goals             *string
	ScheduleJSON      *string
	Constraints       *string
	InjuryNotes       *string
	WeeklyTargetHours *float64
}

// UpdateProfileFields persists only the fields set in upd.
func UpdateProfileFields(db *sql.DB, userID int64, upd ProfileUpdate) error {
	set := make([]string, 0, 12)
	args := make([]any, 0, 12)
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}

	if upd.DisplayName != nil {
		add("display_name", *upd.DisplayName)
	}
	if upd.PrimarySport != nil {
		add("primary_sport", *upd.PrimarySport)
	}
	if upd.Age != nil {
		add("age", *upd.Age)
	}
	if upd.ExperienceLevel != nil {
		add("experience_level", *upd.ExperienceLevel)
	}
	if upd.GoalEventName != nil {
		add("goal_event_name", *upd.GoalEventName)
	}
	if upd.GoalEventDate != nil {
		add("goal_event_date", normalizeDate(*upd.GoalEventDate))
	}
	if upd.Goals != nil {
		add("goals", *upd.Goals)
	}
	if upd.ScheduleJSON != nil {
		add("schedule_json", *upd.ScheduleJSON)
	}
	if upd.Constraints != nil {
		add("constraints", *upd.Constraints)
	}
	if upd.InjuryNotes != nil {
		add("injury_notes", *upd.InjuryNotes)
	}
	if upd.WeeklyTargetHours != nil {
		add("weekly_target_hours", *upd.WeeklyTargetHours)
	}
	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := "UPDATE athlete_profiles SET "
	for i, s := range set {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE user_id = ?"
	args = append(args, userID)

	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("models: update profile for user %d: %w", userID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
