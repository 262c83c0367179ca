package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
)

// Profiles holds dependencies for athlete-profile handlers.
type Profiles struct {
	DB *sql.DB
}

type profileJSON struct {
	UserID            int64          `json:"user_id"`
	DisplayName       string         `json:"display_name"`
	PrimarySport      string         `json:"primary_sport"`
	Age               *int64         `json:"age,omitempty"`
	ExperienceLevel   string         `json:"experience_level"`
	GoalEventName     string         `json:"goal_event_name"`
	GoalEventDate     string         `json:"goal_event_date,omitempty"`
	Goals             string         `json:"goals"`
	Schedule          map[string]any `json:"schedule"`
	Constraints       string         `json:"constraints"`
	InjuryNotes       string         `json:"injury_notes"`
	WeeklyTargetHours float64        `json:"weekly_target_hours"`
}

func profileToJSON(p *models.AthleteProfile) profileJSON {
	out := profileJSON{
		UserID:            p.UserID,
		DisplayName:       p.DisplayName,
		PrimarySport:      p.PrimarySport,
		ExperienceLevel:   p.ExperienceLevel,
		GoalEventName:     p.GoalEventName,
		Goals:             p.Goals,
		Schedule:          p.Schedule(),
		Constraints:       p.Constraints,
		InjuryNotes:       p.InjuryNotes,
		WeeklyTargetHours: p.WeeklyTargetHours,
	}
	if p.Age.Valid {
		age := p.Age.Int64
		out.Age = &age
	}
	if p.GoalEventDate.Valid {
		out.GoalEventDate = p.GoalEventDate.String
	}
	return out
}

// Get returns the athlete profile, creating an empty one on first read.
func (h *Profiles) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	p, err := models.GetOrCreateProfile(h.DB, id)
	if err != nil {
		log.Printf("handlers: get profile for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, profileToJSON(p))
}

// Update patches the fields present in the request body, leaving the rest
// unchanged. The schedule blob is replaced whole, never merged.
func (h *Profiles) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		DisplayName       *string         `json:"display_name"`
		PrimarySport      *string         `json:"primary_sport"`
		Age               *int64          `json:"age"`
		ExperienceLevel   *string         `json:"experience_level"`
		GoalEventName     *string         `json:"goal_event_name"`
		GoalEventDate     *string         `json:"goal_event_date"`
		Goals             *string         `json:"goals"`
		Schedule          json.RawMessage `json:"schedule"`
		Constraints       *string         `json:"constraints"`
		InjuryNotes       *string         `json:"injury_notes"`
		WeeklyTargetHours *float64        `json:"weekly_target_hours"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GoalEventDate != nil && *req.GoalEventDate != "" {
		if _, err := time.Parse("2006-01-02", *req.GoalEventDate); err != nil {
			jsonError(w, http.StatusBadRequest, "goal_event_date must be YYYY-MM-DD")
			return
		}
	}

	// Ensure the profile row exists before patching.
	if _, err := models.GetOrCreateProfile(h.DB, id); err != nil {
		log.Printf("handlers: ensure profile for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	upd := models.ProfileUpdate{
		DisplayName:       req.DisplayName,
		PrimarySport:      req.PrimarySport,
		Age:               req.Age,
		ExperienceLevel:   req.ExperienceLevel,
		GoalEventName:     req.GoalEventName,
		GoalEventDate:     req.GoalEventDate,
		Goals:             req.Goals,
		Constraints:       req.Constraints,
		InjuryNotes:       req.InjuryNotes,
		WeeklyTargetHours: req.WeeklyTargetHours,
	}
	if len(req.Schedule) > 0 {
		var blob map[string]any
		if err := json.Unmarshal(req.Schedule, &blob); err != nil {
			jsonError(w, http.StatusBadRequest, "schedule must be a JSON object")
			return
		}
		s := string(req.Schedule)
		upd.ScheduleJSON = &s
	}

	if err := models.UpdateProfileFields(h.DB, id, upd); err != nil {
		log.Printf("handlers: update profile for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	p, err := models.GetOrCreateProfile(h.DB, id)
	if err != nil {
		log.Printf("handlers: reload profile for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, profileToJSON(p))
}
