package models

// Decision is the execution gate outcome.
type Decision string

const (
	DecisionBlock Decision = "BLOCK"
	DecisionWarn  Decision = "WARN"
	DecisionAllow Decision = "ALLOW"
)

// GateResult carries everything needed to render or audit a gate decision.
type GateResult struct {
	Decision        Decision `json:"decision"`
	Reason          string   `json:"reason"`
	Action          string   `json:"action"`
	Suggestion      string   `json:"suggestion"`
	Color           string   `json:"color"`
	Icon            string   `json:"icon"`
	CanOverride     bool     `json:"can_override"`
	OverrideWarning string   `json:"override_warning,omitempty"`
	Overridden      bool     `json:"overridden"`
}
