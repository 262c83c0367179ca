package coach

import (
	"context"
	"time"
)

// MockProvider implements Provider for testing. Responses are consumed in
// order; when the script runs out the last entry repeats. Every request is
// recorded in Calls.
type MockProvider struct {
	Responses []string
	Errs      []error
	Models    []string
	Calls     []CompletionRequest

	ListModelsErr error
}

// NewMockProvider creates a mock provider with a canned response script.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (p *MockProvider) Name() string { return "Mock" }

func (p *MockProvider) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	i := len(p.Calls)
	p.Calls = append(p.Calls, req)

	if i < len(p.Errs) && p.Errs[i] != nil {
		return nil, p.Errs[i]
	}

	text := ""
	if len(p.Responses) > 0 {
		if i >= len(p.Responses) {
			i = len(p.Responses) - 1
		}
		text = p.Responses[i]
	}
	return &Completion{
		Text:         text,
		Model:        req.Model,
		TokensInput:  50,
		TokensOutput: 50,
		Duration:     time.Millisecond,
	}, nil
}

func (p *MockProvider) ListModels(_ context.Context) ([]string, error) {
	if p.ListModelsErr != nil {
		return nil, p.ListModelsErr
	}
	return p.Models, nil
}
