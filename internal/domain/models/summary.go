package models

import (
	"fmt"
	"strings"
)

// ReasoningSummaryKeys lists the exact key set an agent response must contain.
var ReasoningSummaryKeys = []string{
	"agent_role",
	"task_id",
	"final_answer",
	"plan_steps",
	"assumptions",
	"tools",
	"risks",
	"fallbacks",
}

// ReasoningSummary is the strict JSON document every agent must return.
// It deliberately carries conclusions and plans only, never chain-of-thought.
type ReasoningSummary struct {
	AgentRole   string   `json:"agent_role" validate:"nonblank"`
	TaskID      string   `json:"task_id" validate:"required"`
	FinalAnswer string   `json:"final_answer" validate:"nonblank"`
	PlanSteps   []string `json:"plan_steps" validate:"required,dive,unnumbered"`
	Assumptions []string `json:"assumptions" validate:"required"`
	Tools       []string `json:"tools" validate:"required"`
	Risks       []string `json:"risks" validate:"required"`
	Fallbacks   []string `json:"fallbacks" validate:"required"`
}

// EmbeddingInput renders the summary into the deterministic text used for embeddings.
func (s *ReasoningSummary) EmbeddingInput() string {
	var b strings.Builder
	b.WriteString("PLAN:\n")
	for i, step := range s.PlanSteps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, step)
	}
	b.WriteString("\nASSUMPTIONS:\n")
	b.WriteString(bulletList(s.Assumptions))
	b.WriteString("\nFALLBACKS:\n")
	b.WriteString(bulletList(s.Fallbacks))
	return b.String()
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}
