package clustering_test

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services/clustering"
	"github.com/mshogin/reasonguard/internal/testutil/fixtures"
)

func newClusterer(t *testing.T, cfg clustering.Config) *clustering.Clusterer {
	t.Helper()
	c, err := clustering.NewClusterer(cfg)
	require.NoError(t, err)
	return c
}

func memberSets(families []models.Family) [][]string {
	out := make([][]string, len(families))
	for i, f := range families {
		out[i] = append([]string(nil), f.MemberIDs...)
	}
	return out
}

func TestClusterer_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		outputs []models.AgentOutput
		want    [][]string
	}{
		{
			name:    "all similar embeddings form one family",
			outputs: fixtures.FragileBatch(),
			want:    [][]string{{"run_1", "run_2", "run_3", "run_4", "run_5"}},
		},
		{
			name:    "two embedding clusters",
			outputs: fixtures.ModerateBatch(),
			want:    [][]string{{"run_1", "run_3", "run_5"}, {"run_2", "run_4"}},
		},
		{
			name:    "three embedding clusters",
			outputs: fixtures.RobustBatch(),
			want:    [][]string{{"run_1", "run_4"}, {"run_2", "run_5"}, {"run_3", "run_6"}},
		},
		{
			name:    "numeric answers unify despite different text",
			outputs: fixtures.NumericBatch(),
			want:    [][]string{{"run_1", "run_2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClusterer(t, clustering.DefaultConfig())

			result, err := c.Cluster(tt.outputs)
			require.NoError(t, err)
			assert.False(t, result.Insufficient)
			assert.Equal(t, tt.want, memberSets(result.Families))
			assert.Equal(t, len(tt.want), result.Metrics.NumFamilies)
		})
	}
}

func TestClusterer_FamilyIdentity(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	result, err := c.Cluster(fixtures.ModerateBatch())
	require.NoError(t, err)
	require.Len(t, result.Families, 2)

	first := result.Families[0]
	assert.Equal(t, "family_1", first.ID)
	assert.Equal(t, "run_1", first.RepresentativeID)
	assert.Equal(t, clustering.CanonicalText(fixtures.ModerateBatch()[0]), first.RepresentativeSignature)
	assert.Len(t, first.Centroid, 3)
	assert.Equal(t, "family_2", result.Families[1].ID)
}

func TestClusterer_InsufficientData(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	outputs := []models.AgentOutput{
		fixtures.EmbeddingOutput("run_1", 1, 0),
		fixtures.InvalidOutput("run_2"),
		fixtures.InvalidOutput("run_3"),
	}

	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	assert.True(t, result.Insufficient)
	assert.Empty(t, result.Families)
	assert.Equal(t, 1, result.Metrics.ValidRuns)
}

func TestClusterer_IgnoresInvalidOutputs(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	outputs := append(fixtures.FragileBatch(), fixtures.InvalidOutput("run_bad"))
	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	require.Len(t, result.Families, 1)
	assert.NotContains(t, result.Families[0].MemberIDs, "run_bad")
	assert.Equal(t, 5, result.Metrics.ValidRuns)
}

func TestClusterer_TieBreakPrefersEarlierFamily(t *testing.T) {
	cfg := clustering.DefaultConfig()
	cfg.EmbeddingThreshold = 0.7
	c := newClusterer(t, cfg)

	outputs := []models.AgentOutput{
		fixtures.EmbeddingOutput("x", 1, 0),
		fixtures.EmbeddingOutput("y", 0, 1),
		fixtures.EmbeddingOutput("xy", 1, 1),
	}

	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "xy"}, {"y"}}, memberSets(result.Families))
}

func TestClusterer_SingletonMerge(t *testing.T) {
	tests := []struct {
		name       string
		cosine     float64
		wantSets   [][]string
		wantMerges int
	}{
		{
			name:       "within relaxed threshold",
			cosine:     0.82,
			wantSets:   [][]string{{"a", "b", "stray"}},
			wantMerges: 1,
		},
		{
			name:       "below relaxed threshold",
			cosine:     0.78,
			wantSets:   [][]string{{"a", "b"}, {"stray"}},
			wantMerges: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClusterer(t, clustering.DefaultConfig())
			y := math.Sqrt(1 - tt.cosine*tt.cosine)

			result, err := c.Cluster([]models.AgentOutput{
				fixtures.EmbeddingOutput("a", 1, 0),
				fixtures.EmbeddingOutput("b", 1, 0),
				fixtures.EmbeddingOutput("stray", tt.cosine, y),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSets, memberSets(result.Families))
			assert.Equal(t, tt.wantMerges, result.Metrics.SingletonMerges)
		})
	}
}

func TestClusterer_SingletonMergeNeedsLargeFamily(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	// Two singletons at 0.82 never merge with each other.
	result, err := c.Cluster([]models.AgentOutput{
		fixtures.EmbeddingOutput("a", 1, 0),
		fixtures.EmbeddingOutput("b", 0.82, math.Sqrt(1-0.82*0.82)),
	})
	require.NoError(t, err)
	assert.Len(t, result.Families, 2)
	assert.Zero(t, result.Metrics.SingletonMerges)
}

func TestClusterer_NumericUnification(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	outputs := []models.AgentOutput{
		withAnswer(fixtures.EmbeddingOutput("a", 1, 0, 0), "42"),
		withAnswer(fixtures.EmbeddingOutput("b", 0, 1, 0), "$42"),
		withAnswer(fixtures.EmbeddingOutput("c", 0, 0, 1), "42.0"),
		withAnswer(fixtures.EmbeddingOutput("d", 0, 0.99, 0.1), "forty two"),
	}

	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	// "42.0" is a different literal and keeps its own family.
	assert.Equal(t, [][]string{{"a", "b"}, {"d"}, {"c"}}, memberSets(result.Families))
	assert.Equal(t, 1, result.Metrics.NumericUnifications)
	assert.Equal(t, "family_3", result.Families[2].ID)
}

func TestClusterer_NumericUnificationIgnoresSentencePeriod(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	outputs := []models.AgentOutput{
		withAnswer(fixtures.EmbeddingOutput("a", 1, 0), "42"),
		withAnswer(fixtures.EmbeddingOutput("b", 0, 1), "42."),
	}

	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, memberSets(result.Families))
	assert.Equal(t, 1, result.Metrics.NumericUnifications)
}

func TestClusterer_NumericUnificationMovesRepresentative(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	outputs := []models.AgentOutput{
		withAnswer(fixtures.EmbeddingOutput("a", 1, 0), "7"),
		withAnswer(fixtures.EmbeddingOutput("c", 0.05, 1), "7"),
		withAnswer(fixtures.EmbeddingOutput("b", 0, 1), "9"),
	}

	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	require.Len(t, result.Families, 2)
	assert.Equal(t, []string{"a", "c"}, result.Families[0].MemberIDs)
	assert.Equal(t, []string{"b"}, result.Families[1].MemberIDs)
	assert.Equal(t, "b", result.Families[1].RepresentativeID)
	assert.InDeltaSlice(t, []float64{0, 1}, result.Families[1].Centroid, 1e-9)
}

func TestClusterer_MalformedOutputIsIsolated(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	outputs := []models.AgentOutput{
		fixtures.TextOutput("a", "use a queue", "enqueue jobs", "drain workers"),
		fixtures.TextOutput("b", "use a queue", "enqueue jobs", "drain workers"),
		{ID: "empty", IsValid: true},
	}

	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"empty"}}, memberSets(result.Families))
}

func TestClusterer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		outputs []models.AgentOutput
		wantErr error
	}{
		{
			name: "vector length mismatch",
			outputs: []models.AgentOutput{
				fixtures.EmbeddingOutput("a", 1, 0),
				fixtures.EmbeddingOutput("b", 1, 0, 0),
			},
			wantErr: models.ErrVectorLengthMismatch,
		},
		{
			name: "missing id",
			outputs: []models.AgentOutput{
				fixtures.EmbeddingOutput("a", 1, 0),
				fixtures.EmbeddingOutput("", 1, 0),
			},
			wantErr: models.ErrMissingOutputID,
		},
		{
			name: "duplicate id",
			outputs: []models.AgentOutput{
				fixtures.EmbeddingOutput("a", 1, 0),
				fixtures.EmbeddingOutput("a", 0, 1),
			},
			wantErr: models.ErrDuplicateOutputID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClusterer(t, clustering.DefaultConfig())

			result, err := c.Cluster(tt.outputs)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var cerr *clustering.Error
			assert.ErrorAs(t, err, &cerr)
		})
	}
}

func TestClusterer_Metrics(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	result, err := c.Cluster(fixtures.RobustBatch())
	require.NoError(t, err)

	m := result.Metrics
	assert.Equal(t, 6, m.ValidRuns)
	assert.Equal(t, 3, m.NumFamilies)
	assert.Equal(t, m.Comparisons, m.ModeCounts[clustering.ModeEmbedding]+m.ModeCounts[clustering.ModeText])
	assert.Zero(t, m.ModeCounts[clustering.ModeText])
	assert.Equal(t, []string{"singleton-merge", "numeric-answer-unification"}, m.Rules)

	flat := m.AsMap()
	assert.Equal(t, 6, flat["valid_runs"])
	assert.Equal(t, 3, flat["num_families"])
	thresholds := flat["thresholds"].(map[string]any)
	assert.Equal(t, 0.85, thresholds["embedding"])
	assert.Equal(t, 0.65, thresholds["text"])
}

func TestClusterer_Summary(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	outputs := []models.AgentOutput{
		{ID: "a", IsValid: true, FinalAnswer: "ship", PlanSteps: []string{"build", "test", "tag", "push"},
			Assumptions: []string{"CI is green", "Registry is up"}, Embedding: []float64{1, 0}},
		{ID: "b", IsValid: true, FinalAnswer: "ship", PlanSteps: []string{"build"},
			Assumptions: []string{"registry is up!"}, Embedding: []float64{1, 0}},
	}

	result, err := c.Cluster(outputs)
	require.NoError(t, err)
	require.Len(t, result.Families, 1)
	assert.Equal(t, "Assumptions: Registry is up, CI is green | Steps: build | test | tag", result.Families[0].Summary)
}

func TestNewClusterer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*clustering.Config)
	}{
		{"zero embedding threshold", func(c *clustering.Config) { c.EmbeddingThreshold = 0 }},
		{"text threshold above one", func(c *clustering.Config) { c.TextThreshold = 1.1 }},
		{"negative margin", func(c *clustering.Config) { c.MergeMargin = -0.1 }},
		{"margin swallows threshold", func(c *clustering.Config) { c.MergeMargin = 0.7 }},
		{"min cluster size one", func(c *clustering.Config) { c.MinClusterSize = 1 }},
		{"min valid runs zero", func(c *clustering.Config) { c.MinValidRuns = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := clustering.DefaultConfig()
			tt.mutate(&cfg)
			_, err := clustering.NewClusterer(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		numeric bool
	}{
		{"42", "42", true},
		{" $42 ", "42", true},
		{"3.14", "3.14", true},
		{"1,000", "1000", true},
		{"42.", "42", true},
		{"The answer is 7.", "theansweris7", false},
		{"Forty-Two", "fortytwo", false},
		{"v1.2.3", "v1.2.3", false},
		{"v1.2.3.", "v1.2.3", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, clustering.NormalizeAnswer(tt.in))
			assert.Equal(t, tt.numeric, clustering.IsNumericAnswer(tt.in))
		})
	}
}

// randomBatch mixes embedding and text outputs with a fixed seed.
func randomBatch(seed int64, n int) []models.AgentOutput {
	rng := rand.New(rand.NewSource(seed))
	answers := []string{"12", "use a cache", "retry", "12", "shard the table"}
	outputs := make([]models.AgentOutput, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("run_%02d", i)
		switch rng.Intn(3) {
		case 0:
			outputs = append(outputs, fixtures.InvalidOutput(id))
		case 1:
			outputs = append(outputs, fixtures.TextOutput(id, answers[rng.Intn(len(answers))],
				fmt.Sprintf("step %d", rng.Intn(4)), "verify"))
		default:
			v := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
			outputs = append(outputs, withAnswer(fixtures.EmbeddingOutput(id, v...), answers[rng.Intn(len(answers))]))
		}
	}
	return outputs
}

func TestClusterer_PartitionInvariant(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	for seed := int64(1); seed <= 20; seed++ {
		outputs := randomBatch(seed, 25)
		result, err := c.Cluster(outputs)
		require.NoError(t, err)
		if result.Insufficient {
			continue
		}

		var want []string
		for _, o := range models.ValidOutputs(outputs) {
			want = append(want, o.ID)
		}

		var got []string
		for _, f := range result.Families {
			require.NotEmpty(t, f.MemberIDs, "seed %d: empty family %s", seed, f.ID)
			got = append(got, f.MemberIDs...)
		}

		sort.Strings(want)
		sort.Strings(got)
		assert.Equal(t, want, got, "seed %d", seed)
	}
}

func TestClusterer_Deterministic(t *testing.T) {
	c := newClusterer(t, clustering.DefaultConfig())

	for seed := int64(1); seed <= 10; seed++ {
		outputs := randomBatch(seed, 20)
		first, err := c.Cluster(outputs)
		require.NoError(t, err)
		second, err := c.Cluster(outputs)
		require.NoError(t, err)

		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("seed %d: clustering not deterministic (-first +second):\n%s", seed, diff)
		}
	}
}

// Well-separated groups only split further as the threshold rises. This does
// not hold in general: see TestClusterer_ThresholdRegroupsBorderlineVectors.
func TestClusterer_ThresholdMonotonicityWellSeparated(t *testing.T) {
	outputs := []models.AgentOutput{
		fixtures.EmbeddingOutput("a1", 1, 0, 0),
		fixtures.EmbeddingOutput("b1", 0, 1, 0),
		fixtures.EmbeddingOutput("c1", 0, 0, 1),
		fixtures.EmbeddingOutput("a2", 1, 0, 0),
		fixtures.EmbeddingOutput("b2", 0, 1, 0),
		fixtures.EmbeddingOutput("c2", 0, 0.2, 1),
		fixtures.EmbeddingOutput("a3", 1, 0, 0),
	}
	thresholds := []float64{0.5, 0.7, 0.85, 0.95, 0.99}

	partitions := make([][]models.Family, len(thresholds))
	for i, th := range thresholds {
		cfg := clustering.DefaultConfig()
		cfg.EmbeddingThreshold = th
		result, err := newClusterer(t, cfg).Cluster(outputs)
		require.NoError(t, err)
		partitions[i] = result.Families
	}

	assert.Len(t, partitions[0], 3)
	assert.Len(t, partitions[len(partitions)-1], 4)

	for lo := 0; lo < len(thresholds); lo++ {
		for hi := lo + 1; hi < len(thresholds); hi++ {
			assert.True(t, refines(partitions[hi], partitions[lo]),
				"threshold %.2f merged families separated at %.2f", thresholds[hi], thresholds[lo])
		}
	}
}

func unitAt(id string, degrees float64) models.AgentOutput {
	rad := degrees * math.Pi / 180
	return fixtures.EmbeddingOutput(id, math.Cos(rad), math.Sin(rad))
}

// Incremental assignment compares against the running centroid, so a higher
// threshold can regroup borderline vectors instead of refining the partition.
func TestClusterer_ThresholdRegroupsBorderlineVectors(t *testing.T) {
	outputs := []models.AgentOutput{unitAt("A", 0), unitAt("B", 34), unitAt("C", 59)}

	tests := []struct {
		threshold float64
		wantSets  [][]string
	}{
		{0.80, [][]string{{"A", "B"}, {"C"}}},
		{0.90, [][]string{{"A"}, {"B", "C"}}},
	}

	partitions := make([][]models.Family, len(tests))
	for i, tt := range tests {
		cfg := clustering.DefaultConfig()
		cfg.EmbeddingThreshold = tt.threshold
		result, err := newClusterer(t, cfg).Cluster(outputs)
		require.NoError(t, err)
		assert.Equal(t, tt.wantSets, memberSets(result.Families), "threshold %.2f", tt.threshold)
		partitions[i] = result.Families
	}

	assert.False(t, refines(partitions[1], partitions[0]))
}

// refines reports whether every family of fine lies inside one family of coarse.
func refines(fine, coarse []models.Family) bool {
	owner := make(map[string]string)
	for _, f := range coarse {
		for _, id := range f.MemberIDs {
			owner[id] = f.ID
		}
	}
	for _, f := range fine {
		for _, id := range f.MemberIDs[1:] {
			if owner[id] != owner[f.MemberIDs[0]] {
				return false
			}
		}
	}
	return true
}

func withAnswer(o models.AgentOutput, answer string) models.AgentOutput {
	o.FinalAnswer = answer
	return o
}
