package models

// AgentOutput is one agent's structured result for a task.
// It is the input record of the clustering pipeline and is treated as
// immutable once created.
type AgentOutput struct {
	ID          string    `json:"id"`
	AgentRole   string    `json:"agent_role,omitempty"`
	IsValid     bool      `json:"is_valid"`
	FinalAnswer string    `json:"final_answer"`
	PlanSteps   []string  `json:"plan_steps"`
	Assumptions []string  `json:"assumptions"`
	Fallbacks   []string  `json:"fallbacks,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

// HasEmbedding reports whether the output carries a usable embedding vector.
func (o AgentOutput) HasEmbedding() bool {
	return len(o.Embedding) > 0
}

// ValidOutputs returns the valid outputs in their original order.
func ValidOutputs(outputs []AgentOutput) []AgentOutput {
	valid := make([]AgentOutput, 0, len(outputs))
	for _, o := range outputs {
		if o.IsValid {
			valid = append(valid, o)
		}
	}
	return valid
}
