package services

import (
	"context"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// LLMProvider defines the interface for all LLM provider implementations.
// This interface is defined in the domain layer and implemented in the
// infrastructure layer.
//
// Key design principles:
// - Small, focused interface
// - Easy to mock for testing
// - Provider-agnostic (supports OpenAI, Anthropic, DeepSeek, Ollama, etc.)
type LLMProvider interface {
	// Name returns the provider's identifier (e.g., "openai", "anthropic")
	Name() string

	// Complete sends a non-streaming completion request and returns the
	// assistant text with surrounding whitespace trimmed.
	//
	// Parameters:
	//   ctx: Context for cancellation and timeout control
	//   req: The completion request containing messages, model, parameters, etc.
	Complete(ctx context.Context, req *models.CompletionRequest) (string, error)

	// CheckHealth verifies the provider is operational and credentials are valid.
	// Returns nil if healthy, error otherwise.
	CheckHealth(ctx context.Context) error
}

// Embedder turns texts into embedding vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
