package clustering

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// Mode names the comparison used to produce a similarity score.
type Mode string

const (
	ModeEmbedding Mode = "embedding"
	ModeText      Mode = "text"
)

// Compare returns the similarity of two signatures and the mode used.
// Embedding mode wins whenever both sides carry a vector.
func Compare(a, b Signature) (float64, Mode, error) {
	if a.IsEmbedding() && b.IsEmbedding() {
		sim, err := Cosine(a.Vector, b.Vector)
		return sim, ModeEmbedding, err
	}
	return TextRatio(a.Text, b.Text), ModeText, nil
}

// Cosine returns the cosine similarity of two vectors clamped to [0,1].
// Empty or zero-norm vectors score 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", models.ErrVectorLengthMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if math.IsNaN(dot) || math.IsInf(dot, 0) || math.IsNaN(normA+normB) || math.IsInf(normA+normB, 0) {
		return 0, models.ErrInvalidEmbedding
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clamp01(sim), nil
}

// TextRatio returns 2*M/T where M is the number of runes inside matching
// diff segments and T the combined rune length. Empty input scores 0.
// Operands are ordered first so the result is symmetric.
func TextRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if b < a {
		a, b = b, a
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // optimal diff, no half-match shortcut

	matched := 0
	for _, d := range dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}

	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	return clamp01(2 * float64(matched) / float64(total))
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// AssumptionSet normalizes assumptions into a set for overlap scoring.
func AssumptionSet(assumptions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(assumptions))
	for _, a := range assumptions {
		if n := NormalizeAssumption(a); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// NormalizeAssumption lowercases, replaces punctuation with spaces and
// collapses whitespace.
func NormalizeAssumption(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// normalize returns a unit-length copy of v. A zero vector stays zero.
func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float64, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
