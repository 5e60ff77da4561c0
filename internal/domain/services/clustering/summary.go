package clustering

import (
	"fmt"
	"sort"
	"strings"
)

const (
	summaryAssumptions = 3
	summarySteps       = 3
)

// familySummary condenses a family into its most common assumptions and the
// representative's leading steps.
func familySummary(members []*member) string {
	type tally struct {
		label string
		count int
		first int
	}
	counts := make(map[string]*tally)
	order := 0
	for _, m := range members {
		for _, raw := range m.output.Assumptions {
			key := NormalizeAssumption(raw)
			if key == "" {
				continue
			}
			if t, ok := counts[key]; ok {
				t.count++
				continue
			}
			counts[key] = &tally{label: raw, count: 1, first: order}
			order++
		}
	}

	ranked := make([]*tally, 0, len(counts))
	for _, t := range counts {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})
	if len(ranked) > summaryAssumptions {
		ranked = ranked[:summaryAssumptions]
	}
	labels := make([]string, len(ranked))
	for i, t := range ranked {
		labels[i] = t.label
	}

	steps := members[0].output.PlanSteps
	if len(steps) > summarySteps {
		steps = steps[:summarySteps]
	}

	assumptionText := strings.Join(labels, ", ")
	if assumptionText == "" {
		assumptionText = "None"
	}
	stepText := strings.Join(steps, " | ")
	if stepText == "" {
		stepText = "N/A"
	}
	return fmt.Sprintf("Assumptions: %s | Steps: %s", assumptionText, stepText)
}
