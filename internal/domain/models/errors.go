package models

import "errors"

// Domain-level errors for validation and business logic.
// These errors are defined in the domain layer and can be used
// throughout the application.

var (
	// Request validation errors
	ErrMissingModel   = errors.New("model field is required")
	ErrEmptyMessages  = errors.New("messages field cannot be empty")
	ErrMissingPrompt  = errors.New("prompt is required")
	ErrInvalidRequest = errors.New("invalid request")

	// Provider errors
	ErrProviderNotFound   = errors.New("provider not found")
	ErrProviderUnhealthy  = errors.New("provider health check failed")
	ErrInvalidCredentials = errors.New("invalid provider credentials")
	ErrEmptyCompletion    = errors.New("provider returned an empty completion")

	// Agent output errors
	ErrInvalidJSON    = errors.New("output is not valid JSON")
	ErrInvalidSummary = errors.New("reasoning summary failed validation")
	ErrNumberedPlan   = errors.New("plan_steps must not include numbering prefixes")
	ErrEmbedding      = errors.New("embedding generation failed")

	// Clustering errors
	ErrVectorLengthMismatch = errors.New("embedding vectors have different lengths")
	ErrInvalidEmbedding     = errors.New("embedding contains non-finite values")
	ErrMissingOutputID      = errors.New("agent output has no id")
	ErrDuplicateOutputID    = errors.New("duplicate agent output id")

	// Gate errors
	ErrConfirmationRequired = errors.New("override requires a confirmation message")
	ErrNoGateDecision       = errors.New("task has no gate decision to override")

	// Task errors
	ErrTaskNotFound       = errors.New("task not found")
	ErrGenerationDisabled = errors.New("task generation is not configured")
)
