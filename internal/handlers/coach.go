package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stridelab/stridecoach/internal/coach"
	"github.com/stridelab/stridecoach/internal/models"
)

// Coach holds dependencies for the AI feature endpoints.
type Coach struct {
	DB     *sql.DB
	Engine *coach.Engine
}

// Summary returns the end-of-week review, generated or served from cache.
func (h *Coach) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	artifact, err := h.Engine.GenerateWeeklySummary(r.Context(), id)
	if err != nil {
		log.Printf("handlers: weekly summary for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// Encouragement returns the two-sentence weekly nudge.
func (h *Coach) Encouragement(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	artifact, err := h.Engine.GenerateQuickEncouragement(r.Context(), id)
	if err != nil {
		log.Printf("handlers: encouragement for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// Chat answers a free-form question against the athlete's current context.
func (h *Coach) Chat(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		Message  string `json:"message"`
		MaxChars int    `json:"max_chars"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		jsonError(w, http.StatusBadRequest, "message is required")
		return
	}

	artifact, err := h.Engine.AnswerGeneralChat(r.Context(), id, req.Message, req.MaxChars)
	if err != nil {
		log.Printf("handlers: chat for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// Tone returns the ambient coach tone line for dashboards.
func (h *Coach) Tone(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	artifact, err := h.Engine.CoachTone(r.Context(), id)
	if err != nil {
		log.Printf("handlers: coach tone for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

type interactionJSON struct {
	ID           int64  `json:"id"`
	Mode         string `json:"mode"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	Source       string `json:"source"`
	ErrorMessage string `json:"error_message,omitempty"`
	ResponseText string `json:"response_text"`
	CreatedAt    string `json:"created_at"`
}

// Interactions lists a user's recent model invocations, newest first. The
// prompt columns are deliberately omitted; this is a history view, not a
// debugging dump.
func (h *Coach) Interactions(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := models.ListInteractions(h.DB, id, limit)
	if err != nil {
		log.Printf("handlers: list interactions for user %d: %v", id, err)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]interactionJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, interactionJSON{
			ID:           rec.ID,
			Mode:         rec.Mode,
			Model:        rec.Model,
			Status:       rec.Status,
			Source:       rec.Source,
			ErrorMessage: rec.ErrorMessage,
			ResponseText: rec.ResponseText,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": out})
}
