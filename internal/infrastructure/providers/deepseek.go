package providers

import (
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
)

// DefaultDeepSeekBaseURL is used when the provider config has no base_url.
const DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a DeepSeek provider.
// DeepSeek uses an OpenAI-compatible API, so the OpenAI implementation is reused.
func NewDeepSeekProvider(cfg config.ProviderConfig) *OpenAIProvider {
	return newCompatibleProvider("deepseek", cfg, DefaultDeepSeekBaseURL)
}
