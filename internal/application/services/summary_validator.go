package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// ExtractJSON pulls a JSON document out of a model response. The whole text
// is tried first, then the span from the first '{' to the last '}'.
func ExtractJSON(response string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(response)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return nil, models.ErrInvalidJSON
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, models.ErrInvalidJSON
	}
	return json.RawMessage(candidate), nil
}

// SummaryValidator checks agent responses against the reasoning summary schema.
type SummaryValidator struct{}

// NewSummaryValidator creates a SummaryValidator.
func NewSummaryValidator() *SummaryValidator {
	return &SummaryValidator{}
}

// Parse extracts and validates a summary for taskID. Errors wrap
// models.ErrInvalidJSON or models.ErrInvalidSummary; numbering problems in
// plan_steps additionally wrap models.ErrNumberedPlan.
func (v *SummaryValidator) Parse(response, taskID string) (*models.ReasoningSummary, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}
	return v.Validate(raw, taskID)
}

// Validate checks one JSON document.
func (v *SummaryValidator) Validate(raw json.RawMessage, taskID string) (*models.ReasoningSummary, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, invalid("Output is not a JSON object.")
	}

	if err := checkKeys(doc); err != nil {
		return nil, err
	}

	var summary models.ReasoningSummary
	if !decodeString(doc["agent_role"], &summary.AgentRole) {
		return nil, invalid("agent_role must be a non-empty string.")
	}
	if !decodeString(doc["task_id"], &summary.TaskID) || summary.TaskID != taskID {
		return nil, invalid("task_id must match the requested task_id.")
	}
	if !decodeString(doc["final_answer"], &summary.FinalAnswer) {
		return nil, invalid("final_answer must be a non-empty string.")
	}

	lists := []struct {
		key  string
		dest *[]string
	}{
		{"plan_steps", &summary.PlanSteps},
		{"assumptions", &summary.Assumptions},
		{"tools", &summary.Tools},
		{"risks", &summary.Risks},
		{"fallbacks", &summary.Fallbacks},
	}
	for _, l := range lists {
		if !decodeStrings(doc[l.key], l.dest) {
			return nil, invalid(l.key + " must be a list of strings.")
		}
	}

	if err := models.ValidateStruct(summary); err != nil {
		return nil, translate(err)
	}
	return &summary, nil
}

func checkKeys(doc map[string]json.RawMessage) error {
	expected := make(map[string]bool, len(models.ReasoningSummaryKeys))
	var missing []string
	for _, k := range models.ReasoningSummaryKeys {
		expected[k] = true
		if _, ok := doc[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return invalid("Missing keys: " + strings.Join(missing, ", "))
	}

	var extra []string
	for k := range doc {
		if !expected[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return invalid("Extra keys not allowed: " + strings.Join(extra, ", "))
	}
	return nil
}

func decodeString(raw json.RawMessage, dest *string) bool {
	return json.Unmarshal(raw, dest) == nil
}

// decodeStrings rejects null, which json would silently accept as an empty slice.
func decodeStrings(raw json.RawMessage, dest *[]string) bool {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", models.ErrInvalidSummary, err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "unnumbered":
		return fmt.Errorf("%w: %w", models.ErrInvalidSummary, models.ErrNumberedPlan)
	case "nonblank":
		switch fe.StructField() {
		case "AgentRole":
			return invalid("agent_role must be a non-empty string.")
		case "FinalAnswer":
			return invalid("final_answer must be a non-empty string.")
		}
	}
	return invalid(fmt.Sprintf("%s failed %q validation.", fe.Field(), fe.Tag()))
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidSummary, msg)
}
