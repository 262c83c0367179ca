package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible APIs.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI provider.
// If baseURL is empty, it defaults to the official OpenAI API.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 45 * time.Second,
		},
	}
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Complete(ctx context.Context, creq CompletionRequest) (*Completion, error) {
	body := map[string]any{
		"model": creq.Model,
		"messages": []map[string]string{
			{"role": "system", "content": creq.System},
			{"role": "user", "content": creq.User},
		},
	}
	if creq.Temperature != nil {
		body["temperature"] = *creq.Temperature
	}
	if creq.MaxTokens > 0 {
		body["max_completion_tokens"] = creq.MaxTokens
	}
	if creq.Schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   creq.Schema.Name,
				"schema": creq.Schema.Schema,
				"strict": false,
			},
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coach/openai: marshal request: %w", err)
	}

	start := time.Now()
	respBody, err := p.post(ctx, "/chat/completions", jsonBody)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("coach/openai: parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("coach/openai: no choices in response")
	}

	return &Completion{
		Text:         result.Choices[0].Message.Content,
		Model:        result.Model,
		TokensInput:  result.Usage.PromptTokens,
		TokensOutput: result.Usage.CompletionTokens,
		Duration:     duration,
	}, nil
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("coach/openai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coach/openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coach/openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p.apiError(resp.StatusCode, respBody)
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("coach/openai: parse models: %w", err)
	}
	ids := make([]string, 0, len(result.Data))
	for _, m := range result.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// post sends a JSON POST and retries transient failures (429 and 5xx) with
// exponential backoff. Request rejections (other 4xx) surface immediately.
func (p *OpenAIProvider) post(ctx context.Context, path string, jsonBody []byte) ([]byte, error) {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))

	var respBody []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(jsonBody))
		if err != nil {
			return fmt.Errorf("coach/openai: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("coach/openai: request failed: %w", err))
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("coach/openai: read response: %w", err))
		}
		if resp.StatusCode != http.StatusOK {
			apiErr := p.apiError(resp.StatusCode, respBody)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (p *OpenAIProvider) apiError(status int, respBody []byte) *APIError {
	apiErr := &APIError{
		Provider:   "OpenAI",
		StatusCode: status,
	}
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Code = errResp.Error.Code
		if apiErr.Code == "" {
			apiErr.Code = errResp.Error.Type
		}
		apiErr.Message = errResp.Error.Message
	} else {
		apiErr.Message = string(respBody)
	}
	return apiErr
}
