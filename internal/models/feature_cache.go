package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FeatureCacheEntry is one content-addressed cache row. The (user, feature,
// cache_key) triple is unique; the stored input hash decides whether the
// payload is still current for that key. Regeneration overwrites the row —
// there is no version history.
type FeatureCacheEntry struct {
	ID           int64
	UserID       int64
	Feature      string
	CacheKey     string
	InputHash    string
	PayloadJSON  string
	Model        string
	TokensInput  sql.NullInt64
	TokensOutput sql.NullInt64
	UpdatedAt    time.Time
}

// GetFeatureCache retrieves the cache row for (user, feature, cacheKey).
func GetFeatureCache(db *sql.DB, userID int64, feature, cacheKey string) (*FeatureCacheEntry, error) {
	e := &FeatureCacheEntry{}
	err := db.QueryRow(
		`SELECT id, user_id, feature, cache_key, input_hash, payload_json, model, tokens_input, tokens_output, updated_at
		 FROM ai_feature_cache
		 WHERE user_id = ? AND feature = ? AND cache_key = ?`,
		userID, feature, cacheKey,
	).Scan(&e.ID, &e.UserID, &e.Feature, &e.CacheKey, &e.InputHash, &e.PayloadJSON,
		&e.Model, &e.TokensInput, &e.TokensOutput, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get feature cache %s/%s for user %d: %w", feature, cacheKey, userID, err)
	}
	return e, nil
}

// UpsertFeatureCache creates or overwrites the cache row for
// (user, feature, cacheKey). Last writer wins; there is no locking around
// concurrent misses for the same key.
func UpsertFeatureCache(db *sql.DB, e *FeatureCacheEntry) error {
	_, err := db.Exec(
		`INSERT INTO ai_feature_cache (user_id, feature, cache_key, input_hash, payload_json, model, tokens_input, tokens_output, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, feature, cache_key) DO UPDATE SET
		   input_hash = excluded.input_hash,
		   payload_json = excluded.payload_json,
		   model = excluded.model,
		   tokens_input = excluded.tokens_input,
		   tokens_output = excluded.tokens_output,
		   updated_at = excluded.updated_at`,
		e.UserID, e.Feature, e.CacheKey, e.InputHash, e.PayloadJSON, e.Model,
		e.TokensInput, e.TokensOutput, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("models: upsert feature cache %s/%s for user %d: %w", e.Feature, e.CacheKey, e.UserID, err)
	}
	return nil
}
