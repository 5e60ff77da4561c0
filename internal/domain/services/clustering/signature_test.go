package clustering

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

func TestCanonicalText(t *testing.T) {
	tests := []struct {
		name   string
		output models.AgentOutput
		want   string
	}{
		{
			name: "all parts",
			output: models.AgentOutput{
				FinalAnswer: "  42 ",
				PlanSteps:   []string{"add", "check"},
				Assumptions: []string{"ints"},
				Fallbacks:   []string{"retry"},
			},
			want: "42\nadd\ncheck\nints\nretry",
		},
		{
			name: "empty parts skipped",
			output: models.AgentOutput{
				FinalAnswer: "yes",
				Fallbacks:   []string{"ask again"},
			},
			want: "yes\nask again",
		},
		{
			name:   "nothing at all",
			output: models.AgentOutput{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalText(tt.output))
		})
	}
}

func TestBuildSignature(t *testing.T) {
	withVector := models.AgentOutput{FinalAnswer: "a", Embedding: []float64{0.1, 0.2}}
	sig := BuildSignature(withVector)
	assert.True(t, sig.IsEmbedding())
	assert.Equal(t, "a", sig.Text)

	withoutVector := models.AgentOutput{FinalAnswer: "a", Embedding: []float64{}}
	assert.False(t, BuildSignature(withoutVector).IsEmbedding())
}

func TestBuildSignature_DoesNotMutateOutput(t *testing.T) {
	out := models.AgentOutput{FinalAnswer: " x ", PlanSteps: []string{"s"}, Embedding: []float64{3, 4}}
	_ = BuildSignature(out)

	assert.Equal(t, " x ", out.FinalAnswer)
	assert.Equal(t, []float64{3, 4}, out.Embedding)
}
