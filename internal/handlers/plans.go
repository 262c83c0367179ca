package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/stridelab/stridecoach/internal/coach"
	"github.com/stridelab/stridecoach/internal/models"
	"github.com/stridelab/stridecoach/internal/plan"
)

// Plans holds dependencies for training-plan handlers.
type Plans struct {
	DB     *sql.DB
	Engine *coach.Engine
}

// weekBoundsFor returns the Monday and Sunday of the week containing t,
// formatted as YYYY-MM-DD.
func weekBoundsFor(t time.Time) (string, string) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start.Format("2006-01-02"), start.AddDate(0, 0, 6).Format("2006-01-02")
}

// Get returns the current week's plan. Statuses are reconciled on read so a
// client always sees rows consistent with the activity log.
func (h *Plans) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	weekStart, weekEnd := weekBoundsFor(time.Now())

	tp, err := models.GetActivePlanCovering(h.DB, id, weekStart, weekEnd)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "no plan for current week")
		return
	}
	if err != nil {
		log.Printf("handlers: get plan for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := plan.EnsureWeekRows(h.DB, id, tp); err != nil {
		log.Printf("handlers: ensure week rows for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if _, err := h.Engine.ReconcileWeek(id, tp.StartDate, tp.EndDate); err != nil {
		log.Printf("handlers: reconcile week for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	week, err := plan.SerializeWeekPlan(h.DB, id, tp.StartDate, tp.EndDate)
	if err != nil {
		log.Printf("handlers: serialize week for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, week)
}

// Generate builds next week's plan. ?force=1 bypasses the input-hash skip;
// ?bootstrap=N seeds the context from the N newest activities for accounts
// without a lookback window's worth of history.
func (h *Plans) Generate(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"
	bootstrap, _ := strconv.Atoi(r.URL.Query().Get("bootstrap"))
	if bootstrap < 0 {
		bootstrap = 0
	}

	artifact, err := h.Engine.GenerateWeeklyPlan(r.Context(), id, force, bootstrap)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("handlers: generate plan for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// Reconcile re-derives planned-workout statuses for the current week.
func (h *Plans) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	weekStart, weekEnd := weekBoundsFor(time.Now())

	changed, err := h.Engine.ReconcileWeek(id, weekStart, weekEnd)
	if err != nil {
		log.Printf("handlers: reconcile for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": weekStart,
		"week_end":   weekEnd,
		"changed":    changed,
	})
}
