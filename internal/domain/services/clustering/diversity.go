package clustering

import (
	"github.com/mshogin/reasonguard/internal/domain/models"
)

// DiversityMatrix holds pairwise similarities between families.
// Similarity compares representatives (centroid cosine when both families
// have one, text ratio otherwise); AssumptionOverlap is the Jaccard overlap
// of the families' pooled assumptions.
type DiversityMatrix struct {
	FamilyIDs         []string    `json:"family_ids"`
	Similarity        [][]float64 `json:"similarity"`
	AssumptionOverlap [][]float64 `json:"assumption_overlap"`
}

// Diversity builds the matrix for a clustering result. outputs must contain
// every member referenced by the families; invalid outputs are skipped even
// when they share an ID with a member.
func Diversity(families []models.Family, outputs []models.AgentOutput) (DiversityMatrix, error) {
	valid := models.ValidOutputs(outputs)
	byID := make(map[string]models.AgentOutput, len(valid))
	for _, o := range valid {
		byID[o.ID] = o
	}

	n := len(families)
	dm := DiversityMatrix{
		FamilyIDs:         make([]string, n),
		Similarity:        square(n),
		AssumptionOverlap: square(n),
	}

	sets := make([]map[string]struct{}, n)
	for i, f := range families {
		dm.FamilyIDs[i] = f.ID
		var pooled []string
		for _, id := range f.MemberIDs {
			pooled = append(pooled, byID[id].Assumptions...)
		}
		sets[i] = AssumptionSet(pooled)
	}

	for i := 0; i < n; i++ {
		dm.Similarity[i][i] = 1
		dm.AssumptionOverlap[i][i] = 1
		for j := i + 1; j < n; j++ {
			a := Signature{Vector: families[i].Centroid, Text: families[i].RepresentativeSignature}
			b := Signature{Vector: families[j].Centroid, Text: families[j].RepresentativeSignature}
			sim, _, err := Compare(a, b)
			if err != nil {
				return DiversityMatrix{}, err
			}
			overlap := Jaccard(sets[i], sets[j])
			dm.Similarity[i][j], dm.Similarity[j][i] = sim, sim
			dm.AssumptionOverlap[i][j], dm.AssumptionOverlap[j][i] = overlap, overlap
		}
	}
	return dm, nil
}

func square(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
