package models

// Classification is the qualitative robustness verdict for a batch of outputs.
type Classification string

const (
	ClassificationFragile          Classification = "FRAGILE"
	ClassificationModerate         Classification = "MODERATE"
	ClassificationRobust           Classification = "ROBUST"
	ClassificationInsufficientData Classification = "INSUFFICIENT_DATA"
	ClassificationError            Classification = "ERROR"
)

// IsGateable reports whether the gate can produce a decision for the classification.
func (c Classification) IsGateable() bool {
	switch c {
	case ClassificationFragile, ClassificationModerate, ClassificationRobust:
		return true
	default:
		return false
	}
}

// RobustnessResult describes how independently the agents converged.
type RobustnessResult struct {
	TotalAgents     int               `json:"total_agents"`
	FamilyCount     int               `json:"family_count"`
	FamilyBreakdown []FamilyBreakdown `json:"family_breakdown"`
	Classification  Classification    `json:"classification"`
	Confidence      float64           `json:"confidence"`
	Explanation     string            `json:"explanation"`
	Recommendation  string            `json:"recommendation"`
}
