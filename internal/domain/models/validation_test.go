package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNumberedStep(t *testing.T) {
	tests := []struct {
		step string
		want bool
	}{
		{"Inspect the logs", false},
		{"Steps are described below", false},
		{"Restart the service", false},
		{"1. Inspect the logs", true},
		{"2) Restart", true},
		{"Step 1: inspect", true},
		{"step-2 restart", true},
		{"Step: restart", true},
		{"  10 retries then stop", true},
	}

	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNumberedStep(tt.step))
		})
	}
}

func TestValidateStruct_Summary(t *testing.T) {
	valid := ReasoningSummary{
		AgentRole:   "planner",
		TaskID:      "task_1",
		FinalAnswer: "42",
		PlanSteps:   []string{"Compute"},
		Assumptions: []string{},
		Tools:       []string{},
		Risks:       []string{},
		Fallbacks:   []string{},
	}
	assert.NoError(t, ValidateStruct(valid))

	numbered := valid
	numbered.PlanSteps = []string{"Compute", "2. Report"}
	assert.Error(t, ValidateStruct(numbered))

	missing := valid
	missing.Risks = nil
	assert.Error(t, ValidateStruct(missing))
}
