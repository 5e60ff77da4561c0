package fixtures

import (
	"context"
	"sync"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// MockProvider is an LLMProvider driven by a callback.
type MockProvider struct {
	ProviderName string
	Respond      func(ctx context.Context, req *models.CompletionRequest) (string, error)

	mu       sync.Mutex
	requests []*models.CompletionRequest
}

// Name returns the configured provider name.
func (p *MockProvider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Complete records the request and delegates to Respond.
func (p *MockProvider) Complete(ctx context.Context, req *models.CompletionRequest) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Respond(ctx, req)
}

// CheckHealth always succeeds.
func (p *MockProvider) CheckHealth(ctx context.Context) error {
	return nil
}

// Requests returns a copy of every request seen so far.
func (p *MockProvider) Requests() []*models.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.CompletionRequest(nil), p.requests...)
}

// MockEmbedder returns vectors from a callback, one per text.
type MockEmbedder struct {
	Vector func(text string) ([]float64, error)

	mu    sync.Mutex
	calls int
}

// Embed implements services.Embedder.
func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Vector(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Calls returns how many times Embed was invoked.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
