package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrActivityExists is returned when an external activity id is already imported.
var ErrActivityExists = errors.New("models: activity already exists")

// Activity is one recorded session from the athlete's tracker. Ingestion is a
// collaborator's job; this package only stores and queries the rows.
type Activity struct {
	ID          int64
	UserID      int64
	ExternalID  string
	Type        string // vendor sport-type string, e.g. "Run", "VirtualRide"
	Name        string
	StartTime   time.Time
	DistanceM   float64
	MovingTimeS int
	AvgHR       sql.NullFloat64
	SufferScore sql.NullFloat64
	IsDeleted   bool
	CreatedAt   time.Time
}

// DistanceKM returns the activity distance in kilometers.
func (a *Activity) DistanceKM() float64 {
	return a.DistanceM / 1000.0
}

// DurationMin returns the moving time in whole minutes.
func (a *Activity) DurationMin() int {
	return a.MovingTimeS / 60
}

// CreateActivity inserts an activity row.
func CreateActivity(db *sql.DB, a *Activity) (*Activity, error) {
	var id int64
	err := db.QueryRow(
		`INSERT INTO activities (user_id, external_id, type, name, start_time, distance_m, moving_time_s, avg_hr, suffer_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		a.UserID, a.ExternalID, a.Type, a.Name, a.StartTime.UTC(), a.DistanceM, a.MovingTimeS, a.AvgHR, a.SufferScore,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActivityExists
		}
		return nil, fmt.Errorf("models: create activity for user %d: %w", a.UserID, err)
	}
	return GetActivityByID(db, id)
}

// GetActivityByID retrieves an activity by primary key.
func GetActivityByID(db *sql.DB, id int64) (*Activity, error) {
	a := &Activity{}
	err := db.QueryRow(
		`SELECT id, user_id, external_id, type, name, start_time, distance_m, moving_time_s, avg_hr, suffer_score, is_deleted, created_at
		 FROM activities WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &a.ExternalID, &a.Type, &a.Name, &a.StartTime, &a.DistanceM,
		&a.MovingTimeS, &a.AvgHR, &a.SufferScore, &a.IsDeleted, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get activity %d: %w", id, err)
	}
	return a, nil
}

// ListActivitiesSince returns non-deleted activities starting at or after the
// cutoff, most recent first.
func ListActivitiesSince(db *sql.DB, userID int64, since time.Time) ([]*Activity, error) {
	return queryActivities(db,
		`SELECT id, user_id, external_id, type, name, start_time, distance_m, moving_time_s, avg_hr, suffer_score, is_deleted, created_at
		 FROM activities
		 WHERE user_id = ? AND is_deleted = 0 AND start_time >= ?
		 ORDER BY start_time DESC`,
		userID, since.UTC())
}

// ListRecentActivities returns the most recent non-deleted activities, newest
// first, up to limit.
func ListRecentActivities(db *sql.DB, userID int64, limit int) ([]*Activity, error) {
	if limit < 1 {
		limit = 1
	}
	return queryActivities(db,
		`SELECT id, user_id, external_id, type, name, start_time, distance_m, moving_time_s, avg_hr, suffer_score, is_deleted, created_at
		 FROM activities
		 WHERE user_id = ? AND is_deleted = 0
		 ORDER BY start_time DESC
		 LIMIT ?`,
		userID, limit)
}

// ListActivitiesBetweenDates returns non-deleted activities whose start falls
// on a date within [startDate, endDate] (inclusive, YYYY-MM-DD), oldest first.
func ListActivitiesBetweenDates(db *sql.DB, userID int64, startDate, endDate string) ([]*Activity, error) {
	return queryActivities(db,
		`SELECT id, user_id, external_id, type, name, start_time, distance_m, moving_time_s, avg_hr, suffer_score, is_deleted, created_at
		 FROM activities
		 WHERE user_id = ? AND is_deleted = 0
		   AND date(start_time) >= ? AND date(start_time) <= ?
		 ORDER BY start_time ASC`,
		userID, normalizeDate(startDate), normalizeDate(endDate))
}

// ListUserIDsActiveSince returns the ids of users with at least one
// non-deleted activity starting at or after since.
func ListUserIDsActiveSince(db *sql.DB, since time.Time) ([]int64, error) {
	rows, err := db.Query(
		`SELECT DISTINCT user_id FROM activities
		 WHERE is_deleted = 0 AND start_time >= ?
		 ORDER BY user_id`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("models: list active users: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("models: scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func queryActivities(db *sql.DB, query string, args ...any) ([]*Activity, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("models: query activities: %w", err)
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		a := &Activity{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.ExternalID, &a.Type, &a.Name, &a.StartTime,
			&a.DistanceM, &a.MovingTimeS, &a.AvgHR, &a.SufferScore, &a.IsDeleted, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("models: scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
