// Package robustness turns reasoning families into a robustness verdict and
// an execution gate decision.
package robustness

import (
	"fmt"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// Confidence attached to each classification.
const (
	fragileConfidence  = 0.9
	moderateConfidence = 0.7
	robustConfidence   = 0.85
)

// Scorer maps family counts to a classification. The classification depends
// on the number of families only; sizes feed the breakdown.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score classifies a clustering result over totalAgents valid outputs.
func (s *Scorer) Score(totalAgents int, families []models.Family, insufficient bool) models.RobustnessResult {
	result := models.RobustnessResult{
		TotalAgents:     totalAgents,
		FamilyCount:     len(families),
		FamilyBreakdown: breakdown(families),
	}

	n := len(families)
	switch {
	case insufficient || n == 0:
		result.Classification = models.ClassificationInsufficientData
		result.Explanation = fmt.Sprintf(
			"Only %d valid agent output(s) available. At least two are needed to compare reasoning.", totalAgents)
		result.Recommendation = "Re-run the task or fix the invalid agent outputs before relying on this result."
	case n == 1:
		result.Classification = models.ClassificationFragile
		result.Confidence = fragileConfidence
		result.Explanation = fmt.Sprintf(
			"All %d agents used the same underlying reasoning. Agreement is shallow - they're saying the same thing in different words.",
			totalAgents)
		result.Recommendation = "Consider revising the task or explicitly requesting alternative approaches. " +
			"Current plan relies on a single reasoning path."
	case n == 2:
		result.Classification = models.ClassificationModerate
		result.Confidence = moderateConfidence
		result.Explanation = fmt.Sprintf(
			"Found %d distinct reasoning approaches among %d agents. Some diversity exists, but limited validation.",
			n, totalAgents)
		result.Recommendation = "Plan has moderate support. Consider whether both approaches lead to same outcome. " +
			"Proceed with awareness of the alternative perspective."
	default:
		result.Classification = models.ClassificationRobust
		result.Confidence = robustConfidence
		result.Explanation = fmt.Sprintf(
			"Found %d distinct reasoning approaches among %d agents. Multiple independent paths support the conclusion.",
			n, totalAgents)
		result.Recommendation = "Plan is well-validated by diverse reasoning. Proceed with confidence."
	}

	return result
}

func breakdown(families []models.Family) []models.FamilyBreakdown {
	out := make([]models.FamilyBreakdown, len(families))
	for i, f := range families {
		out[i] = models.FamilyBreakdown{
			FamilyID:    f.ID,
			MemberCount: f.Size(),
			MemberIDs:   append([]string(nil), f.MemberIDs...),
			Summary:     f.Summary,
		}
	}
	return out
}
