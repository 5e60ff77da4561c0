package models

// Family is a cluster of agent outputs whose signatures are mutually similar.
// Member order is assignment order; the representative is the first member.
type Family struct {
	ID                      string    `json:"family_id"`
	RepresentativeID        string    `json:"representative_id"`
	MemberIDs               []string  `json:"member_ids"`
	Centroid                []float64 `json:"centroid,omitempty"`
	RepresentativeSignature string    `json:"representative_signature"`
	Summary                 string    `json:"summary"`
}

// Size returns the number of members.
func (f Family) Size() int {
	return len(f.MemberIDs)
}

// FamilyBreakdown is the per-family entry exposed alongside a robustness classification.
type FamilyBreakdown struct {
	FamilyID    string   `json:"family_id"`
	MemberCount int      `json:"member_count"`
	MemberIDs   []string `json:"member_ids"`
	Summary     string   `json:"summary,omitempty"`
}
