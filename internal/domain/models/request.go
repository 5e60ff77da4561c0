package models

// Message represents a single message in a chat completion request.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral, non-streaming chat completion request.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Validate checks if the request is valid.
func (r *CompletionRequest) Validate() error {
	if r.Model == "" {
		return ErrMissingModel
	}
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	return nil
}

// GetTemperature returns the temperature value or default (1.0).
func (r *CompletionRequest) GetTemperature() float64 {
	if r.Temperature == nil {
		return 1.0
	}
	return *r.Temperature
}

// GetMaxTokens returns the max tokens value or default (0 = provider default).
func (r *CompletionRequest) GetMaxTokens() int {
	if r.MaxTokens == nil {
		return 0
	}
	return *r.MaxTokens
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Prompt    string `json:"prompt" validate:"nonblank,max=8000"`
	NumAgents int    `json:"num_agents,omitempty" validate:"omitempty,min=3,max=20"`
}

// AnalyzeRequest is the body of the stateless POST /analyze.
type AnalyzeRequest struct {
	Runs   []AgentOutput `json:"runs" validate:"required,min=1"`
	Strict bool          `json:"strict,omitempty"`
}

// OverrideRequest is the body of POST /tasks/{id}/override.
type OverrideRequest struct {
	Confirmation string `json:"confirmation" validate:"nonblank,max=500"`
}
