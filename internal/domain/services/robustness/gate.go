package robustness

import (
	"fmt"
	"strings"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

const (
	blockAction       = "Execution blocked. Please revise the plan."
	blockSuggestion   = "Try rephrasing the task to encourage diverse approaches, or explicitly ask for alternative solutions."
	blockOverrideWarn = "Proceeding with fragile reasoning is risky. The plan relies on a single untested approach."

	overrideAction     = "Execution allowed by user override."
	overrideSuggestion = "Proceeding despite fragile reasoning - monitor carefully."
	overrideWarning    = "This execution was forced despite low robustness."
)

// Gate converts robustness classifications into execution decisions.
//
// FRAGILE blocks, MODERATE warns (blocks in strict mode), ROBUST allows.
// ERROR and INSUFFICIENT_DATA produce no decision, which callers must treat
// as BLOCK.
type Gate struct {
	strict bool
}

// NewGate creates a gate. Strict mode escalates MODERATE to BLOCK.
func NewGate(strict bool) *Gate {
	return &Gate{strict: strict}
}

// Strict reports whether the gate runs in strict mode.
func (g *Gate) Strict() bool {
	return g.strict
}

// Evaluate returns the decision for r. ok is false when the classification
// admits no decision.
func (g *Gate) Evaluate(r models.RobustnessResult) (result models.GateResult, ok bool) {
	switch r.Classification {
	case models.ClassificationFragile:
		return block(fmt.Sprintf(
			"Only %d reasoning family detected. Agreement among %d agents is shallow.",
			r.FamilyCount, r.TotalAgents)), true
	case models.ClassificationModerate:
		if g.strict {
			return block(fmt.Sprintf(
				"%d reasoning families detected among %d agents. Strict mode blocks moderate diversity.",
				r.FamilyCount, r.TotalAgents)), true
		}
		return models.GateResult{
			Decision: models.DecisionWarn,
			Reason: fmt.Sprintf("%d reasoning families detected. Moderate diversity among %d agents.",
				r.FamilyCount, r.TotalAgents),
			Action:     "Proceed with caution. Consider the alternatives.",
			Suggestion: "Review the different approaches before executing. Ensure you understand why they differ.",
			Color:      "yellow",
			Icon:       "⚠️",
		}, true
	case models.ClassificationRobust:
		return models.GateResult{
			Decision: models.DecisionAllow,
			Reason: fmt.Sprintf("%d distinct reasoning approaches found. Plan is validated by diverse logic.",
				r.FamilyCount),
			Action:     "Execution allowed. Proceed with confidence.",
			Suggestion: "Monitor execution as usual.",
			Color:      "green",
			Icon:       "✅",
		}, true
	default:
		return models.GateResult{}, false
	}
}

func block(reason string) models.GateResult {
	return models.GateResult{
		Decision:        models.DecisionBlock,
		Reason:          reason,
		Action:          blockAction,
		Suggestion:      blockSuggestion,
		Color:           "red",
		Icon:            "🛑",
		CanOverride:     true,
		OverrideWarning: blockOverrideWarn,
	}
}

// Override forces an overridable BLOCK to ALLOW. Any other result is
// returned unchanged. A blank confirmation on a BLOCK is refused.
func Override(result models.GateResult, confirmation string) (models.GateResult, error) {
	if result.Decision != models.DecisionBlock || !result.CanOverride {
		return result, nil
	}
	confirmation = strings.TrimSpace(confirmation)
	if confirmation == "" {
		return result, models.ErrConfirmationRequired
	}

	return models.GateResult{
		Decision:        models.DecisionAllow,
		Reason:          "User override: " + confirmation,
		Action:          overrideAction,
		Suggestion:      overrideSuggestion,
		Color:           "yellow",
		Icon:            "⚠️✅",
		CanOverride:     false,
		OverrideWarning: overrideWarning,
		Overridden:      true,
	}, nil
}
