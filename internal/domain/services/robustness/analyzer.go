package robustness

import (
	"fmt"
	"strings"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services/clustering"
)

// Analysis is the full outcome of clustering, scoring and gating one batch.
// Gate is nil whenever there is no decision (ERROR, INSUFFICIENT_DATA).
type Analysis struct {
	Families       []models.Family             `json:"families"`
	Classification models.Classification       `json:"classification"`
	Error          string                      `json:"error,omitempty"`
	Metrics        map[string]any              `json:"metrics"`
	Robustness     *models.RobustnessResult    `json:"robustness,omitempty"`
	Gate           *models.GateResult          `json:"gate,omitempty"`
	Diversity      *clustering.DiversityMatrix `json:"diversity,omitempty"`
	AnswersAgree   bool                        `json:"answers_agree"`
}

// Analyzer chains clusterer, scorer and gate. It holds no per-call state.
type Analyzer struct {
	clusterer *clustering.Clusterer
	scorer    *Scorer
	gate      *Gate
}

// NewAnalyzer builds an analyzer for the given thresholds and gate mode.
func NewAnalyzer(cfg clustering.Config, strict bool) (*Analyzer, error) {
	c, err := clustering.NewClusterer(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid clustering config: %w", err)
	}
	return &Analyzer{
		clusterer: c,
		scorer:    NewScorer(),
		gate:      NewGate(strict),
	}, nil
}

// WithStrict returns an analyzer sharing the clusterer but using the given gate mode.
func (a *Analyzer) WithStrict(strict bool) *Analyzer {
	if a.gate.Strict() == strict {
		return a
	}
	return &Analyzer{clusterer: a.clusterer, scorer: a.scorer, gate: NewGate(strict)}
}

// MinValidRuns is the number of valid outputs below which data is insufficient.
func (a *Analyzer) MinValidRuns() int {
	return a.clusterer.Config().MinValidRuns
}

// Strict reports the gate mode.
func (a *Analyzer) Strict() bool {
	return a.gate.Strict()
}

// Analyze runs the pipeline. It never fails: clustering errors and panics
// become the ERROR classification with no families and no gate decision.
func (a *Analyzer) Analyze(outputs []models.AgentOutput) (analysis Analysis) {
	valid := len(models.ValidOutputs(outputs))

	defer func() {
		if r := recover(); r != nil {
			analysis = errorAnalysis(valid, fmt.Errorf("analysis panicked: %v", r))
		}
	}()

	result, err := a.clusterer.Cluster(outputs)
	if err != nil {
		return errorAnalysis(valid, err)
	}

	robustness := a.scorer.Score(valid, result.Families, result.Insufficient)
	analysis = Analysis{
		Families:       result.Families,
		Classification: robustness.Classification,
		Metrics:        result.Metrics.AsMap(),
		Robustness:     &robustness,
		AnswersAgree:   AnswersAgree(outputs),
	}
	if analysis.Families == nil {
		analysis.Families = []models.Family{}
	}

	if len(result.Families) > 0 {
		dm, err := clustering.Diversity(result.Families, outputs)
		if err != nil {
			return errorAnalysis(valid, err)
		}
		analysis.Diversity = &dm
	}

	if gate, ok := a.gate.Evaluate(robustness); ok {
		analysis.Gate = &gate
	}
	analysis.Metrics["robustness_status"] = string(robustness.Classification)
	return analysis
}

func errorAnalysis(valid int, err error) Analysis {
	return Analysis{
		Families:       []models.Family{},
		Classification: models.ClassificationError,
		Error:          err.Error(),
		Metrics:        map[string]any{"valid_runs": valid, "robustness_status": string(models.ClassificationError)},
	}
}

// AnswersAgree reports whether every valid output gave the same final answer
// after trimming and lowercasing. No valid outputs means no agreement.
func AnswersAgree(outputs []models.AgentOutput) bool {
	var first string
	seen := false
	for _, o := range outputs {
		if !o.IsValid {
			continue
		}
		answer := strings.ToLower(strings.TrimSpace(o.FinalAnswer))
		if !seen {
			first, seen = answer, true
			continue
		}
		if answer != first {
			return false
		}
	}
	return seen
}
