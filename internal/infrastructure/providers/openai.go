package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
)

// DefaultOpenAIBaseURL is used when the provider config has no base_url.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements LLMProvider for OpenAI and every backend that
// speaks the same chat completions API (DeepSeek, Ollama).
type OpenAIProvider struct {
	name       string
	client     *openai.Client
	maxRetries int
}

var _ services.LLMProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a new OpenAI provider instance.
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	return newCompatibleProvider("openai", cfg, DefaultOpenAIBaseURL)
}

func newCompatibleProvider(name string, cfg config.ProviderConfig, defaultBaseURL string) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if clientCfg.BaseURL == "" {
		clientCfg.BaseURL = defaultBaseURL
	}
	clientCfg.HTTPClient = newHTTPClient(cfg.Timeout)

	return &OpenAIProvider{
		name:       name,
		client:     openai.NewClientWithConfig(clientCfg),
		maxRetries: cfg.MaxRetries,
	}
}

// newHTTPClient builds the pooled client shared by every provider.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete sends a chat completion and returns the first choice's text.
func (p *OpenAIProvider) Complete(ctx context.Context, req *models.CompletionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: float32(req.GetTemperature()),
		MaxTokens:   req.GetMaxTokens(),
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var content string
	err := withRetry(ctx, p.maxRetries, func() error {
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return p.wrapError(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%s: %w", p.name, models.ErrEmptyCompletion)
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", fmt.Errorf("%s: %w", p.name, models.ErrEmptyCompletion)
	}
	return content, nil
}

// CheckHealth lists models to verify the endpoint and credentials.
func (p *OpenAIProvider) CheckHealth(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %w", models.ErrProviderUnhealthy, p.wrapError(err))
	}
	return nil
}

// Embedder returns an Embedder backed by this provider's embeddings endpoint.
func (p *OpenAIProvider) Embedder(model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{provider: p, model: model}
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return fmt.Errorf("%s: %w: %s", p.name, models.ErrInvalidCredentials, apiErr.Message)
		}
		if retryableStatus(apiErr.HTTPStatusCode) {
			return retryable(fmt.Errorf("%s API error (status %d): %s", p.name, apiErr.HTTPStatusCode, apiErr.Message))
		}
		return fmt.Errorf("%s API error (status %d): %s", p.name, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return retryable(fmt.Errorf("%s request failed: %w", p.name, err))
	}
	return fmt.Errorf("%s request failed: %w", p.name, err)
}

// OpenAIEmbedder implements services.Embedder with the embeddings endpoint.
type OpenAIEmbedder struct {
	provider *OpenAIProvider
	model    string
}

var _ services.Embedder = (*OpenAIEmbedder)(nil)

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp openai.EmbeddingResponse
	err := withRetry(ctx, e.provider.maxRetries, func() error {
		var err error
		resp, err = e.provider.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return e.provider.wrapError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", e.provider.name, len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		v := make([]float64, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float64(x)
		}
		vectors[i] = v
	}
	return vectors, nil
}
