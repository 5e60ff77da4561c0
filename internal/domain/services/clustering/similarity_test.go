package clustering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"scaled", []float64{1, 1}, []float64{3, 3}, 1},
		{"opposite clamps to zero", []float64{1, 0}, []float64{-1, 0}, 0},
		{"empty", nil, []float64{1}, 0},
		{"zero norm", []float64{0, 0}, []float64{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosine_LengthMismatch(t *testing.T) {
	_, err := Cosine([]float64{1, 0}, []float64{1, 0, 0})
	assert.ErrorIs(t, err, models.ErrVectorLengthMismatch)
}

func TestCosine_NonFinite(t *testing.T) {
	_, err := Cosine([]float64{math.NaN(), 1}, []float64{1, 1})
	assert.ErrorIs(t, err, models.ErrInvalidEmbedding)
}

func TestTextRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "abcd", "abcd", 1},
		{"disjoint", "abc", "xyz", 0},
		{"one substitution", "abcd", "abxd", 0.75},
		{"both empty", "", "", 0},
		{"one empty", "", "abc", 0},
		{"prefix", "abc", "abcdef", 2.0 * 3 / 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TextRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTextRatio_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"deploy with blue green", "deploy with canary"},
		{"retry three times then fail", "fail fast and alert"},
		{"ünïcode text", "unicode text"},
		{"a\nb\nc", "c\nb\na"},
	}

	for _, p := range pairs {
		assert.Equal(t, TextRatio(p[0], p[1]), TextRatio(p[1], p[0]), "%q vs %q", p[0], p[1])
	}
}

func TestTextRatio_CountsRunes(t *testing.T) {
	// Two identical multi-byte runes must score like two identical ASCII letters.
	assert.InDelta(t, 1.0, TextRatio("éé", "éé"), 1e-9)
	assert.InDelta(t, 0.5, TextRatio("éx", "éy"), 1e-9)
}

func TestCompare_Modes(t *testing.T) {
	vecA := Signature{Vector: []float64{1, 0}, Text: "alpha"}
	vecB := Signature{Vector: []float64{1, 0}, Text: "omega"}
	textOnly := Signature{Text: "alpha"}

	sim, mode, err := Compare(vecA, vecB)
	require.NoError(t, err)
	assert.Equal(t, ModeEmbedding, mode)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, mode, err = Compare(vecA, textOnly)
	require.NoError(t, err)
	assert.Equal(t, ModeText, mode)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim2, mode2, err := Compare(textOnly, vecA)
	require.NoError(t, err)
	assert.Equal(t, mode, mode2)
	assert.Equal(t, sim, sim2)
}

func TestJaccard(t *testing.T) {
	a := AssumptionSet([]string{"The API is up!", "Data fits in memory"})
	b := AssumptionSet([]string{"the api is up", "Network is reliable"})

	assert.InDelta(t, 1.0/3.0, Jaccard(a, b), 1e-9)
	assert.InDelta(t, 1.0, Jaccard(a, a), 1e-9)
	assert.Equal(t, 0.0, Jaccard(nil, nil))
}

func TestNormalizeAssumption(t *testing.T) {
	assert.Equal(t, "the api is up", NormalizeAssumption("  The API -- is up! "))
	assert.Equal(t, "", NormalizeAssumption("?!"))
}
