package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
)

const (
	// DefaultAnthropicBaseURL is used when the provider config has no base_url.
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"

	anthropicVersion = "2023-06-01"

	// Anthropic requires max_tokens on every request.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicProvider implements the LLMProvider interface for the Anthropic
// Messages API. It converts the provider-neutral request into Anthropic's
// format, moving system messages into the top-level system field.
type AnthropicProvider struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
}

var _ services.LLMProvider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a new Anthropic provider instance.
func NewAnthropicProvider(cfg config.ProviderConfig) *AnthropicProvider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a non-streaming Messages API request and joins the text
// blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, req *models.CompletionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(p.convertToAnthropicFormat(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var text string
	err = withRetry(ctx, p.maxRetries, func() error {
		var resp anthropicResponse
		if err := p.do(ctx, http.MethodPost, "/messages", body, &resp); err != nil {
			return err
		}

		var parts []string
		for _, block := range resp.Content {
			if block.Type == "text" {
				parts = append(parts, block.Text)
			}
		}
		text = strings.TrimSpace(strings.Join(parts, ""))
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("anthropic: %w", models.ErrEmptyCompletion)
	}
	return text, nil
}

// CheckHealth lists models to verify the endpoint and credentials.
func (p *AnthropicProvider) CheckHealth(ctx context.Context) error {
	if err := p.do(ctx, http.MethodGet, "/models", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", models.ErrProviderUnhealthy, err)
	}
	return nil
}

// convertToAnthropicFormat converts the neutral request to Anthropic format.
func (p *AnthropicProvider) convertToAnthropicFormat(req *models.CompletionRequest) anthropicRequest {
	out := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   anthropicDefaultMaxTokens,
		Temperature: req.Temperature,
	}
	if n := req.GetMaxTokens(); n > 0 {
		out.MaxTokens = n
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

func (p *AnthropicProvider) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		var apiErr anthropicError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("anthropic: %w: %s", models.ErrInvalidCredentials, msg)
		case retryableStatus(resp.StatusCode):
			return retryable(fmt.Errorf("Anthropic API error (status %d): %s", resp.StatusCode, msg))
		default:
			return fmt.Errorf("Anthropic API error (status %d): %s", resp.StatusCode, msg)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode anthropic response: %w", err)
	}
	return nil
}
