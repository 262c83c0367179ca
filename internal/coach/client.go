package coach

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Result sources. SourceProvider marks a live provider success; the others
// mark the reason a response did not come straight from the model.
const (
	SourceProvider        = "provider"
	SourceNoCredentials   = "no_credentials"
	SourceProviderError   = "provider_error"
	SourceCache           = "cache"
	SourceFallback        = "fallback"
	SourceFeatureDisabled = "feature_disabled"
)

// Result statuses.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusFallback = "fallback"
)

// Result is the outcome of one completion ladder run. Callers must treat
// StatusFailed as non-fatal and substitute a deterministic fallback.
type Result struct {
	Text         string
	Parsed       map[string]any
	Model        string
	Source       string
	Status       string
	TokensInput  int
	TokensOutput int
	ErrorMessage string
	Failure      FailureKind
}

// Client wraps a model provider with the retry/fallback ladders: temperature
// removal, fallback-model substitution, schema-to-text degradation, and a
// single JSON repair attempt. The model-list and alias-resolution caches live
// on the client instance so tests can construct a fresh one.
type Client struct {
	provider      Provider
	fallbackModel string

	mu       sync.Mutex
	models   []string
	resolved map[string]string
}

// NewClient creates a completion client. provider may be nil, in which case
// every call returns a no_credentials failure and callers fall back
// deterministically.
func NewClient(provider Provider, fallbackModel string) *Client {
	return &Client{
		provider:      provider,
		fallbackModel: fallbackModel,
		resolved:      make(map[string]string),
	}
}

// Configured reports whether a live provider is attached.
func (c *Client) Configured() bool { return c.provider != nil }

// CompleteText runs a free-text completion with the recoverable-failure
// ladder: temperature removal on parameter rejection, fallback-model
// substitution on model-unavailable.
func (c *Client) CompleteText(ctx context.Context, model, system, user string, temperature float64) *Result {
	if c.provider == nil {
		return notConfiguredResult()
	}
	model = c.resolveModel(ctx, model)

	req := CompletionRequest{Model: model, System: system, User: user}
	if supportsTemperature(model) {
		t := temperature
		req.Temperature = &t
	}

	comp, err := c.provider.Complete(ctx, req)
	if err != nil {
		switch classifyError(err) {
		case FailureParameterUnsupported:
			req.Temperature = nil
			comp, err = c.provider.Complete(ctx, req)
		case FailureModelUnavailable:
			if c.fallbackModel != "" && c.fallbackModel != model {
				req.Model = c.fallbackModel
				comp, err = c.provider.Complete(ctx, req)
			}
		}
	}
	if err != nil {
		return failedResult(err)
	}
	return successResult(comp, req.Model)
}

// CompleteJSON runs a schema-constrained completion and parses the response
// into a JSON object. At most two attempts are made; the second appends an
// explicit repair instruction. Schema or parameter rejections degrade the
// attempt to a free-text call asking for raw JSON, parsed defensively.
func (c *Client) CompleteJSON(ctx context.Context, model, system, user, schemaName string, schema map[string]any, temperature float64) *Result {
	if c.provider == nil {
		return notConfiguredResult()
	}
	model = c.resolveModel(ctx, model)

	var last *Result
	for attempt := 0; attempt < 2; attempt++ {
		prompt := user
		if attempt > 0 {
			prompt = user + "\n\nRepair and return valid JSON only. No prose, no code fences."
		}

		res := c.jsonAttempt(ctx, model, system, prompt, schemaName, schema, temperature)
		if res.Failure == FailureModelUnavailable && c.fallbackModel != "" && c.fallbackModel != model {
			model = c.fallbackModel
			res = c.jsonAttempt(ctx, model, system, prompt, schemaName, schema, temperature)
		}
		if res.Status == StatusSuccess {
			return res
		}
		last = res
		// Credentials will not appear between attempts.
		if res.Failure == FailureNoCredentials {
			break
		}
	}
	return last
}

// jsonAttempt makes one schema-constrained call, degrading to free text when
// the provider rejects the request shape.
func (c *Client) jsonAttempt(ctx context.Context, model, system, user, schemaName string, schema map[string]any, temperature float64) *Result {
	req := CompletionRequest{
		Model:  model,
		System: system,
		User:   user,
		Schema: &SchemaFormat{Name: schemaName, Schema: schema},
	}
	if supportsTemperature(model) {
		t := temperature
		req.Temperature = &t
	}

	comp, err := c.provider.Complete(ctx, req)
	if err != nil {
		kind := classifyError(err)
		switch {
		case kind == FailureParameterUnsupported:
			req.Temperature = nil
			comp, err = c.provider.Complete(ctx, req)
		case kind == FailureModelUnavailable || kind == FailureNoCredentials:
			return failedResult(err)
		case isBadRequest(err):
			// The provider rejected the structured request itself.
			// Ask for raw JSON as plain text and parse it client-side.
			req.Schema = nil
			req.User = user + "\n\nReturn ONLY a valid JSON object matching the required schema."
			comp, err = c.provider.Complete(ctx, req)
		}
	}
	if err != nil {
		return failedResult(err)
	}

	res := successResult(comp, req.Model)
	parsed := extractJSONObject(comp.Text)
	if parsed == nil {
		res.Status = StatusFailed
		res.Failure = FailureSchemaViolation
		res.ErrorMessage = "response did not contain a valid JSON object"
		return res
	}
	res.Parsed = parsed
	return res
}

// resolveModel maps a requested model name to an id the provider account
// actually serves: exact match first, then prefix, then substring, so a base
// name like "gpt-5" resolves to a dated variant. The live model list is
// fetched at most once per client unless it came back empty; resolutions are
// memoized.
func (c *Client) resolveModel(ctx context.Context, requested string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.resolved[requested]; ok {
		return m
	}
	if len(c.models) == 0 {
		models, err := c.provider.ListModels(ctx)
		if err != nil || len(models) == 0 {
			// Can't resolve without a list; use the name as requested
			// and let the completion call surface any mismatch.
			return requested
		}
		sort.Strings(models)
		c.models = models
	}

	resolved := requested
	if !contains(c.models, requested) {
		// Prefix match against "name-": dated variants sort after the
		// base name, so the last match is the newest snapshot.
		for _, id := range c.models {
			if strings.HasPrefix(id, requested+"-") {
				resolved = id
			}
		}
		if resolved == requested {
			for _, id := range c.models {
				if strings.Contains(id, requested) {
					resolved = id
				}
			}
		}
	}
	c.resolved[requested] = resolved
	return resolved
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// supportsTemperature reports whether the model accepts a temperature
// parameter. Newer reasoning-first families reject it; this is a static
// check to avoid a probing round trip on the common path.
func supportsTemperature(model string) bool {
	return !strings.HasPrefix(model, "gpt-5")
}

// extractJSONObject pulls the first complete JSON object out of model
// output, tolerating code fences and surrounding prose.
func extractJSONObject(s string) map[string]any {
	if idx := strings.Index(s, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			if m := decodeObject(strings.TrimSpace(s[start : start+end])); m != nil {
				return m
			}
		}
	}

	depth := 0
	start := -1
	for i, ch := range s {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				if m := decodeObject(s[start : i+1]); m != nil {
					return m
				}
				start = -1
			}
		}
	}
	return nil
}

func decodeObject(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// DefaultFallbackModel is substituted when a requested model is rejected by
// the provider and no explicit fallback is configured.
const DefaultFallbackModel = "gpt-4.1-mini"

// notConfiguredResult is the deterministic no-key outcome. The text is the
// one surface where an explicit unavailability message is acceptable: it is
// only shown in diagnostic views, never as coaching content.
func notConfiguredResult() *Result {
	return &Result{
		Text:         "AI key missing. Configure the provider API key to enable live responses.",
		Source:       SourceNoCredentials,
		Status:       StatusFallback,
		Failure:      FailureNoCredentials,
		ErrorMessage: ErrNotConfigured.Error(),
	}
}

func failedResult(err error) *Result {
	kind := classifyError(err)
	source := SourceProviderError
	if kind == FailureNoCredentials {
		source = SourceNoCredentials
	}
	return &Result{
		Source:       source,
		Status:       StatusFailed,
		Failure:      kind,
		ErrorMessage: err.Error(),
	}
}

func successResult(comp *Completion, requestedModel string) *Result {
	model := comp.Model
	if model == "" {
		model = requestedModel
	}
	return &Result{
		Text:         comp.Text,
		Model:        model,
		Source:       SourceProvider,
		Status:       StatusSuccess,
		TokensInput:  comp.TokensInput,
		TokensOutput: comp.TokensOutput,
	}
}
