package clustering

import (
	"regexp"
	"strings"
	"unicode"
)

// MergeRule is a named pass that runs after incremental assignment.
// Rules run once each, in a fixed order; the set is closed to this package.
type MergeRule interface {
	Name() string
	apply(s *state) error
}

// DefaultMergeRules returns the rules in execution order.
func DefaultMergeRules() []MergeRule {
	return []MergeRule{
		SingletonMerge{},
		NumericAnswerUnification{},
	}
}

// SingletonMerge moves a one-member family into the best matching large
// family when the similarity clears the threshold lowered by the merge margin.
type SingletonMerge struct{}

func (SingletonMerge) Name() string { return "singleton-merge" }

func (SingletonMerge) apply(s *state) error {
	var large, singles []*family
	for _, f := range s.families {
		switch {
		case f.size() >= s.cfg.MinClusterSize:
			large = append(large, f)
		case f.size() == 1:
			singles = append(singles, f)
		}
	}
	if len(large) == 0 {
		return nil
	}

	for _, single := range singles {
		m := single.representative()
		best, sim, mode, err := s.nearest(m, large)
		if err != nil {
			return err
		}
		if best == nil || sim < s.cfg.relaxedThreshold(mode) {
			continue
		}
		if err := s.move(m, best); err != nil {
			return err
		}
		s.metrics.SingletonMerges++
	}
	return nil
}

var numericAnswerPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// NumericAnswerUnification forces outputs whose normalized final answers are
// the same simple number into the family of the first such output.
type NumericAnswerUnification struct{}

func (NumericAnswerUnification) Name() string { return "numeric-answer-unification" }

func (NumericAnswerUnification) apply(s *state) error {
	primary := make(map[string]*family)
	for _, m := range s.members {
		key := NormalizeAnswer(m.output.FinalAnswer)
		if !numericAnswerPattern.MatchString(key) {
			continue
		}
		target, ok := primary[key]
		if !ok {
			primary[key] = s.owner[m]
			continue
		}
		if s.owner[m] == target {
			continue
		}
		if err := s.move(m, target); err != nil {
			return err
		}
		s.metrics.NumericUnifications++
	}
	return nil
}

// NormalizeAnswer keeps letters, digits and '.', casefolded. A trailing
// sentence period is dropped so "42." and "42" compare equal.
func NormalizeAnswer(answer string) string {
	var b strings.Builder
	for _, r := range answer {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.TrimRight(b.String(), ".")
}

// IsNumericAnswer reports whether the answer unifies under NumericAnswerUnification.
func IsNumericAnswer(answer string) bool {
	return numericAnswerPattern.MatchString(NormalizeAnswer(answer))
}
