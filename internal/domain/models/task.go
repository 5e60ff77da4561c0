package models

import "time"

// TaskStatus tracks a task through generation and analysis.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// Task is one submitted prompt together with its latest analysis.
type Task struct {
	ID             string         `json:"task_id"`
	Prompt         string         `json:"prompt"`
	Status         TaskStatus     `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	TotalRuns      int            `json:"total_runs"`
	ValidRuns      int            `json:"valid_runs"`
	FamilyCount    int            `json:"family_count"`
	Classification Classification `json:"classification,omitempty"`
	Confidence     float64        `json:"confidence"`
	AnswersAgree   bool           `json:"answers_agree"`
	Gate           *GateResult    `json:"gate,omitempty"`
	AnalysisError  string         `json:"analysis_error,omitempty"`
	Meta           *TaskMeta      `json:"meta,omitempty"`
}

// TaskMeta records the generation window of a task.
type TaskMeta struct {
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	TotalRuns         int       `json:"total_runs"`
	ValidRuns         int       `json:"valid_runs"`
	InvalidRuns       int       `json:"invalid_runs"`
	EmbeddingsEnabled bool      `json:"embeddings_enabled"`
}

// TaskRun is the record of a single agent run, valid or not.
type TaskRun struct {
	RunID          string            `json:"run_id"`
	TaskID         string            `json:"task_id"`
	AgentRole      string            `json:"agent_role"`
	RawResponse    string            `json:"raw_response,omitempty"`
	Summary        *ReasoningSummary `json:"reasoning_summary,omitempty"`
	Valid          bool              `json:"is_valid"`
	Error          string            `json:"error,omitempty"`
	Embedding      []float64         `json:"embedding_vector,omitempty"`
	EmbeddingError string            `json:"embedding_error,omitempty"`
	ElapsedMS      int64             `json:"elapsed_ms"`
	AttemptCount   int               `json:"attempt_count"`
}

// AgentOutput converts the run into a clustering input record.
// Runs without a summary are always reported as invalid.
func (r TaskRun) AgentOutput() AgentOutput {
	out := AgentOutput{
		ID:        r.RunID,
		AgentRole: r.AgentRole,
		IsValid:   r.Valid && r.Summary != nil,
		Embedding: r.Embedding,
	}
	if r.Summary != nil {
		out.FinalAnswer = r.Summary.FinalAnswer
		out.PlanSteps = r.Summary.PlanSteps
		out.Assumptions = r.Summary.Assumptions
		out.Fallbacks = r.Summary.Fallbacks
	}
	return out
}

// AgentOutputs converts a batch of runs preserving order.
func AgentOutputs(runs []TaskRun) []AgentOutput {
	outputs := make([]AgentOutput, len(runs))
	for i, r := range runs {
		outputs[i] = r.AgentOutput()
	}
	return outputs
}

// TaskBundle is the self-contained export of one task's generation.
type TaskBundle struct {
	TaskID     string    `json:"task_id"`
	UserPrompt string    `json:"user_prompt"`
	Runs       []TaskRun `json:"runs"`
	Meta       TaskMeta  `json:"meta"`
}

// FragilePattern groups prompts that repeatedly produced fragile reasoning.
type FragilePattern struct {
	Prompt   string    `json:"prompt"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}
