package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
)

// Users holds dependencies for user handlers.
type Users struct {
	DB *sql.DB
}

type userJSON struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

func userToJSON(u *models.User) userJSON {
	out := userJSON{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.Email.Valid {
		out.Email = u.Email.String
	}
	return out
}

// Create registers a user.
func (h *Users) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Username == "" {
		jsonError(w, http.StatusBadRequest, "username is required")
		return
	}

	user, err := models.CreateUser(h.DB, req.Username, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrUserExists) {
			jsonError(w, http.StatusConflict, "username already taken")
			return
		}
		log.Printf("handlers: create user: %v", err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, userToJSON(user))
}

// Get returns a user by id.
func (h *Users) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := models.GetUserByID(h.DB, id)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		log.Printf("handlers: get user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, userToJSON(user))
}
