package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// FixedTime provides a consistent timestamp for testing
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// EmbeddingOutput creates a valid output compared by vector.
// The answer is derived from the id so text never coincides.
func EmbeddingOutput(id string, vector ...float64) models.AgentOutput {
	return models.AgentOutput{
		ID:          id,
		IsValid:     true,
		FinalAnswer: "answer from " + id,
		PlanSteps:   []string{"plan of " + id},
		Assumptions: []string{"assumption of " + id},
		Embedding:   vector,
	}
}

// TextOutput creates a valid output without an embedding.
func TextOutput(id, answer string, steps ...string) models.AgentOutput {
	return models.AgentOutput{
		ID:          id,
		IsValid:     true,
		FinalAnswer: answer,
		PlanSteps:   steps,
	}
}

// InvalidOutput creates an output that clustering must ignore.
func InvalidOutput(id string) models.AgentOutput {
	return models.AgentOutput{ID: id}
}

// FragileBatch returns five outputs whose embeddings are mutually >= 0.9 similar.
func FragileBatch() []models.AgentOutput {
	return []models.AgentOutput{
		EmbeddingOutput("run_1", 1, 0, 0),
		EmbeddingOutput("run_2", 0.98, 0.1, 0),
		EmbeddingOutput("run_3", 0.97, 0, 0.1),
		EmbeddingOutput("run_4", 0.99, 0.05, 0.05),
		EmbeddingOutput("run_5", 0.96, 0.1, 0.1),
	}
}

// ModerateBatch returns two embedding clusters of sizes 3 and 2, interleaved.
func ModerateBatch() []models.AgentOutput {
	return []models.AgentOutput{
		EmbeddingOutput("run_1", 1, 0, 0),
		EmbeddingOutput("run_2", 0, 1, 0),
		EmbeddingOutput("run_3", 0.97, 0.05, 0.1),
		EmbeddingOutput("run_4", 0.05, 0.97, 0.1),
		EmbeddingOutput("run_5", 0.98, 0, 0.12),
	}
}

// RobustBatch returns three embedding clusters of size 2 each.
func RobustBatch() []models.AgentOutput {
	return []models.AgentOutput{
		EmbeddingOutput("run_1", 1, 0, 0),
		EmbeddingOutput("run_2", 0, 1, 0),
		EmbeddingOutput("run_3", 0, 0, 1),
		EmbeddingOutput("run_4", 0.98, 0.1, 0),
		EmbeddingOutput("run_5", 0.1, 0.98, 0),
		EmbeddingOutput("run_6", 0, 0.1, 0.98),
	}
}

// NumericBatch returns two text-only outputs with the answer "12" and
// plans that share almost no characters.
func NumericBatch() []models.AgentOutput {
	return []models.AgentOutput{
		TextOutput("run_1", "12", "zzzz zzzz zzzz zzzz"),
		TextOutput("run_2", "12", "wwww wwww wwww wwww"),
	}
}

// Summary builds a schema-conforming reasoning summary.
func Summary(taskID, role, answer string) *models.ReasoningSummary {
	return &models.ReasoningSummary{
		AgentRole:   role,
		TaskID:      taskID,
		FinalAnswer: answer,
		PlanSteps:   []string{"Inspect the inputs", "Apply the change", "Verify the result"},
		Assumptions: []string{"Inputs are well formed"},
		Tools:       []string{"shell"},
		Risks:       []string{"Partial failure"},
		Fallbacks:   []string{"Roll back"},
	}
}

// SummaryJSON renders Summary as the raw JSON an agent would return.
func SummaryJSON(taskID, role, answer string) string {
	data, err := json.Marshal(Summary(taskID, role, answer))
	if err != nil {
		panic(fmt.Sprintf("fixtures: marshal summary: %v", err))
	}
	return string(data)
}

// Runs converts outputs into stored runs for a task.
func Runs(taskID string, outputs []models.AgentOutput) []models.TaskRun {
	runs := make([]models.TaskRun, len(outputs))
	for i, o := range outputs {
		run := models.TaskRun{
			RunID:        o.ID,
			TaskID:       taskID,
			AgentRole:    fmt.Sprintf("role_%d", i+1),
			Valid:        o.IsValid,
			Embedding:    o.Embedding,
			AttemptCount: 1,
		}
		if o.IsValid {
			run.Summary = &models.ReasoningSummary{
				AgentRole:   run.AgentRole,
				TaskID:      taskID,
				FinalAnswer: o.FinalAnswer,
				PlanSteps:   o.PlanSteps,
				Assumptions: o.Assumptions,
				Tools:       []string{},
				Risks:       []string{},
				Fallbacks:   o.Fallbacks,
			}
		} else {
			run.Error = "Output is not valid JSON."
		}
		runs[i] = run
	}
	return runs
}
