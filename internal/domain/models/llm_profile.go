package models

// ModelProfile carries the call limits for one provider/model pair.
type ModelProfile struct {
	// Provider name (e.g., "openai", "anthropic", "deepseek", "ollama")
	Provider string `json:"provider"`

	// Model name (e.g., "gpt-4o-mini", "claude-3-5-sonnet")
	Model string `json:"model"`

	// Sustained request rate; 0 means unlimited.
	MaxRequestsPerSecond int `json:"max_requests_per_second"`

	// Per-call timeout in milliseconds.
	RequestTimeoutMS int `json:"request_timeout_ms"`
}

// Key returns the "provider/model" lookup key.
func (p ModelProfile) Key() string {
	return p.Provider + "/" + p.Model
}
