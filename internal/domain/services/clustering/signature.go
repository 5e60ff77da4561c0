// Package clustering groups agent outputs into reasoning families.
//
// The clusterer is a deterministic three-pass procedure: incremental
// nearest-family assignment followed by an ordered list of merge rules
// (singleton merge, numeric answer unification). It keeps no state
// between calls.
package clustering

import (
	"strings"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// Signature is the comparable representation of an agent output.
// Vector is shared with the output and must not be mutated.
type Signature struct {
	Vector []float64
	Text   string
}

// IsEmbedding reports whether the signature compares by vector.
func (s Signature) IsEmbedding() bool {
	return len(s.Vector) > 0
}

// BuildSignature derives the signature of an output. The canonical text is
// always filled in because text comparisons against families without a
// centroid still need it.
func BuildSignature(o models.AgentOutput) Signature {
	return Signature{
		Vector: o.Embedding,
		Text:   CanonicalText(o),
	}
}

// CanonicalText joins answer, steps, assumptions and fallbacks line by line,
// skipping empty parts.
func CanonicalText(o models.AgentOutput) string {
	parts := []string{
		strings.TrimSpace(o.FinalAnswer),
		strings.Join(o.PlanSteps, "\n"),
		strings.Join(o.Assumptions, "\n"),
		strings.Join(o.Fallbacks, "\n"),
	}

	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
