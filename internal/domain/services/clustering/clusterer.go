package clustering

import (
	"fmt"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// Error is a clustering failure. It is surfaced to callers as the ERROR
// classification; no partial families are ever returned alongside it.
type Error struct {
	Pass string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("clustering failed in %s: %v", e.Pass, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is the outcome of one clustering call.
type Result struct {
	Families     []models.Family
	Insufficient bool
	Metrics      Metrics
}

// Metrics describes the decisions taken while clustering.
type Metrics struct {
	ValidRuns           int          `json:"valid_runs"`
	NumFamilies         int          `json:"num_families"`
	ModeCounts          map[Mode]int `json:"mode_counts"`
	Comparisons         int          `json:"comparisons"`
	Thresholds          Config       `json:"thresholds"`
	SingletonMerges     int          `json:"singleton_merges"`
	NumericUnifications int          `json:"numeric_unifications"`
	Rules               []string     `json:"rules"`
}

// AsMap flattens the metrics for persistence and JSON rendering.
func (m Metrics) AsMap() map[string]any {
	modes := map[string]int{
		string(ModeEmbedding): m.ModeCounts[ModeEmbedding],
		string(ModeText):      m.ModeCounts[ModeText],
	}
	return map[string]any{
		"valid_runs":   m.ValidRuns,
		"num_families": m.NumFamilies,
		"mode_counts":  modes,
		"comparisons":  m.Comparisons,
		"thresholds": map[string]any{
			"embedding":        m.Thresholds.EmbeddingThreshold,
			"text":             m.Thresholds.TextThreshold,
			"merge_margin":     m.Thresholds.MergeMargin,
			"min_cluster_size": m.Thresholds.MinClusterSize,
		},
		"singleton_merges":     m.SingletonMerges,
		"numeric_unifications": m.NumericUnifications,
		"rules":                m.Rules,
	}
}

// Clusterer partitions agent outputs into reasoning families.
// A Clusterer is immutable and safe for concurrent use; every call builds
// its own working state.
type Clusterer struct {
	cfg   Config
	rules []MergeRule
}

// NewClusterer creates a clusterer with the default merge rules.
func NewClusterer(cfg Config) (*Clusterer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Clusterer{
		cfg:   cfg,
		rules: DefaultMergeRules(),
	}, nil
}

// Config returns the clusterer configuration.
func (c *Clusterer) Config() Config {
	return c.cfg
}

// Cluster runs assignment and the merge rules over the valid outputs in the
// order given. Invalid outputs are ignored.
func (c *Clusterer) Cluster(outputs []models.AgentOutput) (*Result, error) {
	valid := models.ValidOutputs(outputs)

	st := newState(c.cfg)
	st.metrics.ValidRuns = len(valid)
	for _, r := range c.rules {
		st.metrics.Rules = append(st.metrics.Rules, r.Name())
	}

	if len(valid) < c.cfg.MinValidRuns {
		return &Result{Insufficient: true, Metrics: st.metrics}, nil
	}

	seen := make(map[string]struct{}, len(valid))
	for _, o := range valid {
		if o.ID == "" {
			return nil, &Error{Pass: "input", Err: models.ErrMissingOutputID}
		}
		if _, dup := seen[o.ID]; dup {
			return nil, &Error{Pass: "input", Err: fmt.Errorf("%w: %s", models.ErrDuplicateOutputID, o.ID)}
		}
		seen[o.ID] = struct{}{}
	}

	for _, o := range valid {
		m := &member{output: o, sig: BuildSignature(o)}
		st.members = append(st.members, m)
		if err := st.assign(m); err != nil {
			return nil, &Error{Pass: "assignment", Err: err}
		}
	}

	for _, r := range c.rules {
		if err := r.apply(st); err != nil {
			return nil, &Error{Pass: r.Name(), Err: err}
		}
		st.dropEmpty()
	}

	families := st.export()
	st.metrics.NumFamilies = len(families)
	return &Result{Families: families, Metrics: st.metrics}, nil
}

type member struct {
	output models.AgentOutput
	sig    Signature
}

// family is the mutable working form of models.Family.
type family struct {
	members  []*member
	sum      []float64
	centroid []float64
}

func (f *family) size() int {
	return len(f.members)
}

func (f *family) representative() *member {
	return f.members[0]
}

func (f *family) add(m *member) error {
	f.members = append(f.members, m)
	if !m.sig.IsEmbedding() {
		return nil
	}
	return f.accumulate(m.sig.Vector)
}

func (f *family) accumulate(v []float64) error {
	unit := normalize(v)
	if f.sum == nil {
		f.sum = unit
		f.centroid = normalize(f.sum)
		return nil
	}
	if len(unit) != len(f.sum) {
		return fmt.Errorf("%w: %d != %d", models.ErrVectorLengthMismatch, len(unit), len(f.sum))
	}
	for i := range unit {
		f.sum[i] += unit[i]
	}
	f.centroid = normalize(f.sum)
	return nil
}

func (f *family) remove(m *member) error {
	kept := f.members[:0]
	for _, x := range f.members {
		if x != m {
			kept = append(kept, x)
		}
	}
	f.members = kept

	f.sum, f.centroid = nil, nil
	for _, x := range f.members {
		if x.sig.IsEmbedding() {
			if err := f.accumulate(x.sig.Vector); err != nil {
				return err
			}
		}
	}
	return nil
}

type state struct {
	cfg      Config
	members  []*member
	families []*family
	owner    map[*member]*family
	metrics  Metrics
}

func newState(cfg Config) *state {
	return &state{
		cfg:   cfg,
		owner: make(map[*member]*family),
		metrics: Metrics{
			ModeCounts: map[Mode]int{ModeEmbedding: 0, ModeText: 0},
			Thresholds: cfg,
		},
	}
}

// compare scores an output against a family: centroid cosine when both
// sides have vectors, representative text otherwise.
func (s *state) compare(m *member, f *family) (float64, Mode, error) {
	var (
		sim  float64
		mode Mode
		err  error
	)
	if m.sig.IsEmbedding() && len(f.centroid) > 0 {
		sim, err = Cosine(m.sig.Vector, f.centroid)
		mode = ModeEmbedding
	} else {
		sim = TextRatio(m.sig.Text, f.representative().sig.Text)
		mode = ModeText
	}
	s.metrics.Comparisons++
	s.metrics.ModeCounts[mode]++
	return sim, mode, err
}

// nearest returns the best scoring candidate. Ties keep the earliest family.
func (s *state) nearest(m *member, candidates []*family) (*family, float64, Mode, error) {
	var (
		best     *family
		bestSim  = -1.0
		bestMode Mode
	)
	for _, f := range candidates {
		sim, mode, err := s.compare(m, f)
		if err != nil {
			return nil, 0, "", err
		}
		if sim > bestSim {
			best, bestSim, bestMode = f, sim, mode
		}
	}
	return best, bestSim, bestMode, nil
}

func (s *state) assign(m *member) error {
	best, sim, mode, err := s.nearest(m, s.families)
	if err != nil {
		return err
	}
	if best != nil && sim >= s.cfg.threshold(mode) {
		s.owner[m] = best
		return best.add(m)
	}

	f := &family{}
	s.families = append(s.families, f)
	s.owner[m] = f
	return f.add(m)
}

func (s *state) move(m *member, to *family) error {
	from := s.owner[m]
	if from == to {
		return nil
	}
	if err := from.remove(m); err != nil {
		return err
	}
	s.owner[m] = to
	return to.add(m)
}

func (s *state) dropEmpty() {
	kept := s.families[:0]
	for _, f := range s.families {
		if f.size() > 0 {
			kept = append(kept, f)
		}
	}
	s.families = kept
}

// export renders surviving families in creation order with sequential ids.
func (s *state) export() []models.Family {
	out := make([]models.Family, 0, len(s.families))
	for i, f := range s.families {
		ids := make([]string, len(f.members))
		for j, m := range f.members {
			ids[j] = m.output.ID
		}
		var centroid []float64
		if len(f.centroid) > 0 {
			centroid = append([]float64(nil), f.centroid...)
		}
		rep := f.representative()
		out = append(out, models.Family{
			ID:                      fmt.Sprintf("family_%d", i+1),
			RepresentativeID:        rep.output.ID,
			MemberIDs:               ids,
			Centroid:                centroid,
			RepresentativeSignature: rep.sig.Text,
			Summary:                 familySummary(f.members),
		})
	}
	return out
}
