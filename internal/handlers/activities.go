package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stridelab/stridecoach/internal/coach"
	"github.com/stridelab/stridecoach/internal/importers"
	"github.com/stridelab/stridecoach/internal/models"
)

const maxUploadSize = 10 << 20 // 10 MB

// Activities holds dependencies for activity handlers.
type Activities struct {
	DB     *sql.DB
	Engine *coach.Engine
}

type activityJSON struct {
	ID          int64    `json:"id"`
	ExternalID  string   `json:"external_id,omitempty"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	StartTime   string   `json:"start_time"`
	DistanceKM  float64  `json:"distance_km"`
	DurationMin int      `json:"duration_min"`
	AvgHR       *float64 `json:"avg_hr,omitempty"`
	SufferScore *float64 `json:"suffer_score,omitempty"`
}

func activityToJSON(a *models.Activity) activityJSON {
	out := activityJSON{
		ID:          a.ID,
		ExternalID:  a.ExternalID,
		Type:        a.Type,
		Name:        a.Name,
		StartTime:   a.StartTime.UTC().Format(time.RFC3339),
		DistanceKM:  a.DistanceKM(),
		DurationMin: a.DurationMin(),
	}
	if a.AvgHR.Valid {
		hr := a.AvgHR.Float64
		out.AvgHR = &hr
	}
	if a.SufferScore.Valid {
		ss := a.SufferScore.Float64
		out.SufferScore = &ss
	}
	return out
}

// List returns a user's activities within the lookback window. The ?days=
// parameter defaults to 30.
func (h *Activities) List(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days < 1 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	activities, err := models.ListActivitiesSince(h.DB, id, since)
	if err != nil {
		log.Printf("handlers: list activities for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]activityJSON, 0, len(activities))
	for _, a := range activities {
		out = append(out, activityToJSON(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": out})
}

// Create records a single activity from a JSON body.
func (h *Activities) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		Date        string   `json:"date"`
		Type        string   `json:"type"`
		Name        string   `json:"name"`
		DistanceKM  float64  `json:"distance_km"`
		DurationMin int      `json:"duration_min"`
		AvgHR       *float64 `json:"avg_hr"`
		SufferScore *float64 `json:"suffer_score"`
		ExternalID  string   `json:"external_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if req.Type == "" {
		jsonError(w, http.StatusBadRequest, "type is required")
		return
	}
	if req.Name == "" {
		req.Name = req.Type
	}

	a := &models.Activity{
		UserID:      id,
		ExternalID:  req.ExternalID,
		Type:        req.Type,
		Name:        req.Name,
		StartTime:   start,
		DistanceM:   req.DistanceKM * 1000,
		MovingTimeS: req.DurationMin * 60,
	}
	if req.AvgHR != nil {
		a.AvgHR = sql.NullFloat64{Float64: *req.AvgHR, Valid: true}
	}
	if req.SufferScore != nil {
		a.SufferScore = sql.NullFloat64{Float64: *req.SufferScore, Valid: true}
	}

	created, err := models.CreateActivity(h.DB, a)
	if err != nil {
		if errors.Is(err, models.ErrActivityExists) {
			jsonError(w, http.StatusConflict, "activity already imported")
			return
		}
		log.Printf("handlers: create activity for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, activityToJSON(created))
}

// Import ingests a CSV export uploaded as a multipart "file" field.
func (h *Activities) Import(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or malformed upload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	rows, err := importers.ParseActivitiesCSV(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := importers.ImportActivities(h.DB, id, rows)
	if err != nil {
		log.Printf("handlers: import activities for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// React produces the coach's reaction to a completed activity.
func (h *Activities) React(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	activityID, err := strconv.ParseInt(chi.URLParam(r, "activityID"), 10, 64)
	if err != nil || activityID < 1 {
		jsonError(w, http.StatusBadRequest, "invalid activity id")
		return
	}

	activity, err := models.GetActivityByID(h.DB, activityID)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "activity not found")
		return
	}
	if err != nil {
		log.Printf("handlers: get activity %d: %v", activityID, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if activity.UserID != id {
		jsonError(w, http.StatusNotFound, "activity not found")
		return
	}

	artifact, err := h.Engine.GenerateActivityReaction(r.Context(), id, activity)
	if err != nil {
		log.Printf("handlers: reaction for activity %d: %v", activityID, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}
