package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AgentRole is one persona the generator runs.
type AgentRole struct {
	Name       string `yaml:"name" json:"name"`
	Constraint string `yaml:"constraint" json:"constraint"`
}

// DefaultAgentRoles is the built-in persona roster, in run order.
var DefaultAgentRoles = []AgentRole{
	{Name: "planner", Constraint: "Optimize for clarity and actionable steps."},
	{Name: "skeptic", Constraint: "Challenge assumptions and propose a safer alternative."},
	{Name: "ops_reliability", Constraint: "Assume frequent failures and prioritize recovery paths."},
	{Name: "cost_optimizer", Constraint: "Minimize tool calls and operational cost."},
	{Name: "alternative_strategy", Constraint: "Avoid batching and offer a different approach."},
}

// PromptMode selects how insistent the instructions are.
type PromptMode int

const (
	PromptNormal PromptMode = iota
	PromptStrict
	PromptRepair
)

func (m PromptMode) String() string {
	switch m {
	case PromptStrict:
		return "strict"
	case PromptRepair:
		return "repair"
	default:
		return "normal"
	}
}

// BuildAgentPrompt renders the single user message sent to an agent.
func BuildAgentPrompt(taskID, userPrompt string, role AgentRole, mode PromptMode) string {
	schema := struct {
		AgentRole   string   `json:"agent_role"`
		TaskID      string   `json:"task_id"`
		FinalAnswer string   `json:"final_answer"`
		PlanSteps   []string `json:"plan_steps"`
		Assumptions []string `json:"assumptions"`
		Tools       []string `json:"tools"`
		Risks       []string `json:"risks"`
		Fallbacks   []string `json:"fallbacks"`
	}{
		AgentRole:   role.Name,
		TaskID:      taskID,
		FinalAnswer: "string",
		PlanSteps:   []string{"string"},
		Assumptions: []string{"string"},
		Tools:       []string{"string"},
		Risks:       []string{"string"},
		Fallbacks:   []string{"string"},
	}
	schemaJSON, _ := json.Marshal(schema)

	rules := "Return JSON only; do not include chain-of-thought."
	if mode != PromptNormal {
		rules = "Return ONLY valid JSON matching the schema, no extra keys."
	}

	stepRules := "plan_steps must be plain strings with no numbering or prefixes. " +
		"Do not include '1.', 'Step 1', '-', or '•'. " +
		"If you include numbering, output will be rejected."
	if mode == PromptRepair {
		stepRules = "Rewrite plan_steps with no numbering or prefixes. Return JSON only."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s. %s\n", role.Name, role.Constraint)
	fmt.Fprintf(&b, "Task ID: %s\n", taskID)
	fmt.Fprintf(&b, "Task: %s\n", userPrompt)
	b.WriteString(rules + "\n")
	b.WriteString(stepRules + "\n")
	fmt.Fprintf(&b, "Schema example (types only): %s", schemaJSON)
	return b.String()
}
