package providers

import (
	"fmt"
	"sort"

	"github.com/mshogin/reasonguard/internal/domain/services"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
)

// Registry holds the enabled providers by name.
type Registry struct {
	providers map[string]services.LLMProvider
	// compatible keeps the OpenAI-compatible providers, which can also embed.
	compatible map[string]*OpenAIProvider
}

// NewRegistry initializes every enabled provider in cfgs. Unknown provider
// names are reported in skipped.
func NewRegistry(cfgs map[string]config.ProviderConfig) (r *Registry, skipped []string) {
	r = &Registry{
		providers:  make(map[string]services.LLMProvider),
		compatible: make(map[string]*OpenAIProvider),
	}
	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}

		switch name {
		case "openai":
			r.addCompatible(NewOpenAIProvider(cfg))
		case "deepseek":
			r.addCompatible(NewDeepSeekProvider(cfg))
		case "ollama":
			r.addCompatible(NewOllamaProvider(cfg))
		case "anthropic":
			r.providers[name] = NewAnthropicProvider(cfg)
		default:
			skipped = append(skipped, name)
		}
	}
	sort.Strings(skipped)
	return r, skipped
}

func (r *Registry) addCompatible(p *OpenAIProvider) {
	r.providers[p.Name()] = p
	r.compatible[p.Name()] = p
}

// Providers returns the provider map for the ProviderSelector.
func (r *Registry) Providers() map[string]services.LLMProvider {
	return r.providers
}

// Embedder returns an embedder on the named provider.
func (r *Registry) Embedder(provider, model string) (services.Embedder, error) {
	p, ok := r.compatible[provider]
	if !ok {
		if _, enabled := r.providers[provider]; enabled {
			return nil, fmt.Errorf("provider %s does not support embeddings", provider)
		}
		return nil, fmt.Errorf("embedding provider %s is not enabled", provider)
	}
	return p.Embedder(model), nil
}
