package coach

import (
	"database/sql"
	"errors"

	"github.com/stridelab/stridecoach/internal/models"
)

// GeneratorFunc produces a payload when the cache cannot serve one. It
// returns the payload JSON plus the provenance metadata to store with it.
type GeneratorFunc func() (payload string, meta GenerationMeta, err error)

// GenerationMeta is the provenance stored alongside a cached payload.
type GenerationMeta struct {
	Model        string
	TokensInput  int
	TokensOutput int
}

// getOrGenerate serves the cached payload for (user, feature, cacheKey) when
// the stored input hash matches inputHash and the payload is non-empty.
// Anything else is a miss: the generator runs and its result overwrites the
// row. Regeneration is driven by content change, not key expiry — keys are
// often stable identifiers like "2026-03-02:417" whose underlying data moves.
//
// There is no mutual exclusion: two concurrent misses for the same key both
// invoke the generator and the last writer wins.
func getOrGenerate(db *sql.DB, userID int64, feature, cacheKey, inputHash string, generate GeneratorFunc) (string, bool, error) {
	row, err := models.GetFeatureCache(db, userID, feature, cacheKey)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", false, err
	}
	if row != nil && row.InputHash == inputHash && row.PayloadJSON != "" && row.PayloadJSON != "{}" {
		return row.PayloadJSON, true, nil
	}

	payload, meta, err := generate()
	if err != nil {
		return "", false, err
	}

	entry := &models.FeatureCacheEntry{
		UserID:      userID,
		Feature:     feature,
		CacheKey:    cacheKey,
		InputHash:   inputHash,
		PayloadJSON: payload,
		Model:       meta.Model,
	}
	if meta.TokensInput > 0 {
		entry.TokensInput = sql.NullInt64{Int64: int64(meta.TokensInput), Valid: true}
	}
	if meta.TokensOutput > 0 {
		entry.TokensOutput = sql.NullInt64{Int64: int64(meta.TokensOutput), Valid: true}
	}
	if err := models.UpsertFeatureCache(db, entry); err != nil {
		return "", false, err
	}
	return payload, false, nil
}
