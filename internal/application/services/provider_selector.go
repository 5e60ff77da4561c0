package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mshogin/reasonguard/internal/domain/models"
	domainServices "github.com/mshogin/reasonguard/internal/domain/services"
)

// ProviderSelector selects the appropriate LLM provider based on the model name.
type ProviderSelector struct {
	providers map[string]domainServices.LLMProvider
}

// NewProviderSelector creates a new ProviderSelector instance.
func NewProviderSelector(providers map[string]domainServices.LLMProvider) *ProviderSelector {
	return &ProviderSelector{
		providers: providers,
	}
}

// Select returns the named provider, or detects it from the model when
// provider is empty.
func (s *ProviderSelector) Select(provider, model string) (domainServices.LLMProvider, error) {
	if provider == "" {
		return s.SelectProvider(model)
	}
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrProviderNotFound, provider)
	}
	return p, nil
}

// SelectProvider returns the provider for the given model.
func (s *ProviderSelector) SelectProvider(model string) (domainServices.LLMProvider, error) {
	providerName := DetectProvider(model)

	provider, ok := s.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrProviderNotFound, providerName)
	}

	return provider, nil
}

// DetectProvider determines which provider serves a model name.
func DetectProvider(model string) string {
	modelLower := strings.ToLower(model)

	switch {
	case strings.HasPrefix(modelLower, "gpt-"),
		strings.HasPrefix(modelLower, "o1"),
		strings.HasPrefix(modelLower, "o3"),
		strings.HasPrefix(modelLower, "text-embedding-"):
		return "openai"
	case strings.HasPrefix(modelLower, "claude-"):
		return "anthropic"
	case strings.HasPrefix(modelLower, "deepseek-"):
		return "deepseek"
	}

	// Unknown models are assumed to be local
	return "ollama"
}

// GetAvailableProviders returns the sorted list of available provider names.
func (s *ProviderSelector) GetAvailableProviders() []string {
	providers := make([]string, 0, len(s.providers))
	for name := range s.providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// Providers returns the registered providers keyed by name.
func (s *ProviderSelector) Providers() map[string]domainServices.LLMProvider {
	return s.providers
}
