package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Interaction is one append-only audit record of a model invocation. Rows are
// never mutated after creation.
type Interaction struct {
	ID                int64
	UserID            int64
	Mode              string
	Model             string
	Status            string
	Source            string
	ErrorMessage      string
	ResponseText      string
	PromptSystem      string
	PromptUser        string
	ContextHash       string
	RelatedActivityID sql.NullInt64
	RelatedPlanID     sql.NullInt64
	TokensInput       sql.NullInt64
	TokensOutput      sql.NullInt64
	CreatedAt         time.Time
}

// CreateInteraction appends an audit record and returns its id. Callers treat
// failure as non-fatal: a lost log row must never fail the generation it was
// recording.
func CreateInteraction(db *sql.DB, rec *Interaction) (int64, error) {
	var id int64
	err := db.QueryRow(
		`INSERT INTO ai_interactions
		   (user_id, mode, model, status, source, error_message, response_text,
		    prompt_system, prompt_user, context_hash, related_activity_id, related_plan_id,
		    tokens_input, tokens_output)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		rec.UserID, rec.Mode, rec.Model, rec.Status, rec.Source, rec.ErrorMessage,
		rec.ResponseText, rec.PromptSystem, rec.PromptUser, rec.ContextHash,
		rec.RelatedActivityID, rec.RelatedPlanID, rec.TokensInput, rec.TokensOutput,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("models: create interaction for user %d mode %q: %w", rec.UserID, rec.Mode, err)
	}
	return id, nil
}

// ListInteractions returns the most recent interactions for a user, newest
// first, up to limit. Used by diagnostic/history views.
func ListInteractions(db *sql.DB, userID int64, limit int) ([]*Interaction, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, user_id, mode, model, status, source, error_message, response_text,
		        prompt_system, prompt_user, context_hash, related_activity_id, related_plan_id,
		        tokens_input, tokens_output, created_at
		 FROM ai_interactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("models: list interactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		rec := &Interaction{}
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Mode, &rec.Model, &rec.Status, &rec.Source,
			&rec.ErrorMessage, &rec.ResponseText, &rec.PromptSystem, &rec.PromptUser, &rec.ContextHash,
			&rec.RelatedActivityID, &rec.RelatedPlanID, &rec.TokensInput, &rec.TokensOutput, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("models: scan interaction: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteInteractionsBefore removes audit rows older than the cutoff and
// returns the number deleted. Called by scheduled retention pruning.
func DeleteInteractionsBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM ai_interactions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("models: delete interactions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
