package models_test

import (
	"testing"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/stretchr/testify/assert"
)

func TestReasoningSummary_EmbeddingInput(t *testing.T) {
	summary := &models.ReasoningSummary{
		PlanSteps:   []string{"Fetch data", "Validate rows"},
		Assumptions: []string{"API is available"},
		Fallbacks:   []string{"Use cached copy"},
	}

	want := "PLAN:\n1. Fetch data\n2. Validate rows\nASSUMPTIONS:\n- API is available\nFALLBACKS:\n- Use cached copy"
	assert.Equal(t, want, summary.EmbeddingInput())
}

func TestReasoningSummary_EmbeddingInput_Empty(t *testing.T) {
	summary := &models.ReasoningSummary{}
	assert.Equal(t, "PLAN:\n\nASSUMPTIONS:\n\nFALLBACKS:\n", summary.EmbeddingInput())
}

func TestTaskRun_AgentOutput(t *testing.T) {
	tests := []struct {
		name      string
		run       models.TaskRun
		wantValid bool
	}{
		{
			name: "valid run with summary",
			run: models.TaskRun{
				RunID: "run_1", AgentRole: "planner", Valid: true,
				Summary: &models.ReasoningSummary{
					FinalAnswer: "42",
					PlanSteps:   []string{"compute"},
					Assumptions: []string{"inputs are integers"},
					Fallbacks:   []string{"recompute"},
				},
				Embedding: []float64{1, 0},
			},
			wantValid: true,
		},
		{
			name:      "valid flag without summary",
			run:       models.TaskRun{RunID: "run_2", Valid: true},
			wantValid: false,
		},
		{
			name:      "invalid run",
			run:       models.TaskRun{RunID: "run_3", Error: "Output is not valid JSON."},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.run.AgentOutput()
			assert.Equal(t, tt.run.RunID, out.ID)
			assert.Equal(t, tt.wantValid, out.IsValid)
			if tt.run.Summary != nil {
				assert.Equal(t, tt.run.Summary.FinalAnswer, out.FinalAnswer)
				assert.Equal(t, tt.run.Summary.Fallbacks, out.Fallbacks)
				assert.True(t, out.HasEmbedding())
			}
		})
	}
}

func TestValidOutputs_PreservesOrder(t *testing.T) {
	outputs := []models.AgentOutput{
		{ID: "a", IsValid: true},
		{ID: "b"},
		{ID: "c", IsValid: true},
	}

	valid := models.ValidOutputs(outputs)
	assert.Len(t, valid, 2)
	assert.Equal(t, "a", valid[0].ID)
	assert.Equal(t, "c", valid[1].ID)
}

func TestClassification_IsGateable(t *testing.T) {
	assert.True(t, models.ClassificationFragile.IsGateable())
	assert.True(t, models.ClassificationModerate.IsGateable())
	assert.True(t, models.ClassificationRobust.IsGateable())
	assert.False(t, models.ClassificationInsufficientData.IsGateable())
	assert.False(t, models.ClassificationError.IsGateable())
}
