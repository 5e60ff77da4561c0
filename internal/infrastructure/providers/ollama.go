package providers

import (
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
)

// DefaultOllamaBaseURL is the OpenAI-compatible endpoint of a local Ollama.
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// NewOllamaProvider creates an Ollama provider. Ollama ignores the API key
// but the client requires one, so a placeholder is used when none is set.
func NewOllamaProvider(cfg config.ProviderConfig) *OpenAIProvider {
	if cfg.APIKey == "" {
		cfg.APIKey = "ollama"
	}
	return newCompatibleProvider("ollama", cfg, DefaultOllamaBaseURL)
}
