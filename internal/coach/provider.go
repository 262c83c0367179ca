// Package coach implements the AI coaching pipeline: athlete-state
// derivation, content-addressed feature caching, cost-tiered model routing,
// schema-constrained structured generation with a repair/fallback ladder, and
// the feature generators that compose them.
//
// The package is layered:
//  1. Provider — the raw model-provider boundary (HTTP, auth, transport retry)
//  2. Client — completion ladders, model alias resolution, typed failures
//  3. Engine — per-feature generators with caching, validation, and fallbacks
package coach

import (
	"context"
	"fmt"
	"time"
)

// ErrNotConfigured is returned when no model provider is configured.
var ErrNotConfigured = fmt.Errorf("coach: model provider not configured")

// Provider is the interface for model-provider backends.
type Provider interface {
	// Complete sends one completion request and returns the response text.
	// When req.Schema is set the provider requests a schema-constrained
	// JSON completion.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// ListModels returns the ids of models the provider account can use.
	// Called at most once per client lifetime unless it returns empty.
	ListModels(ctx context.Context) ([]string, error)

	// Name returns the display name of this provider (e.g. "OpenAI").
	Name() string
}

// CompletionRequest describes a single completion call.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float64      // nil = omit the parameter entirely
	Schema      *SchemaFormat // nil = free-text completion
	MaxTokens   int
}

// SchemaFormat names a JSON schema the response must conform to.
type SchemaFormat struct {
	Name   string
	Schema map[string]any
}

// Completion holds a provider's raw output.
type Completion struct {
	Text         string
	Model        string
	TokensInput  int
	TokensOutput int
	Duration     time.Duration
}

// APIError is a structured error from a provider's HTTP API.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error (HTTP %d, %s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

// UserMessage returns a short human-readable description suitable for
// diagnostic views.
func (e *APIError) UserMessage() string {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return fmt.Sprintf("%s rejected the configured API key. Check the provider credentials.", e.Provider)
	case e.StatusCode == 429:
		return fmt.Sprintf("%s is rate limiting requests. Try again in a little while.", e.Provider)
	case e.StatusCode >= 500:
		return fmt.Sprintf("%s is currently unavailable. Try again later.", e.Provider)
	default:
		return fmt.Sprintf("%s returned an error: %s", e.Provider, e.Message)
	}
}
