package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserExists is returned when a username is already taken.
var ErrUserExists = errors.New("models: user already exists")

// User is an account row. Authentication lives outside this service; a user
// row exists so profiles, activities, and artifacts have an owner to hang off.
type User struct {
	ID        int64
	Username  string
	Email     sql.NullString
	CreatedAt time.Time
}

// CreateUser inserts a new user.
func CreateUser(db *sql.DB, username, email string) (*User, error) {
	var emailVal sql.NullString
	if email != "" {
		emailVal = sql.NullString{String: email, Valid: true}
	}

	var id int64
	err := db.QueryRow(
		`INSERT INTO users (username, email) VALUES (?, ?) RETURNING id`,
		username, emailVal,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("models: create user %q: %w", username, err)
	}
	return GetUserByID(db, id)
}

// GetUserByID retrieves a user by primary key.
func GetUserByID(db *sql.DB, id int64) (*User, error) {
	u := &User{}
	err := db.QueryRow(
		`SELECT id, username, email, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get user %d: %w", id, err)
	}
	return u, nil
}

// ListUserIDs returns the ids of all users, ordered by id. Used by the
// scheduler to walk every account.
func ListUserIDs(db *sql.DB) ([]int64, error) {
	rows, err := db.Query(`SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("models: list user ids: %w", err)
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
