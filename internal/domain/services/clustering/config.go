package clustering

import "fmt"

// Config holds the tunable clustering parameters.
type Config struct {
	EmbeddingThreshold float64 `json:"embedding"`
	TextThreshold      float64 `json:"text"`
	MergeMargin        float64 `json:"merge_margin"`
	MinClusterSize     int     `json:"min_cluster_size"`
	MinValidRuns       int     `json:"min_valid_runs"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		EmbeddingThreshold: 0.85,
		TextThreshold:      0.65,
		MergeMargin:        0.05,
		MinClusterSize:     2,
		MinValidRuns:       2,
	}
}

// Validate checks that thresholds are usable.
func (c Config) Validate() error {
	if c.EmbeddingThreshold <= 0 || c.EmbeddingThreshold > 1 {
		return fmt.Errorf("embedding threshold must be in (0,1], got %v", c.EmbeddingThreshold)
	}
	if c.TextThreshold <= 0 || c.TextThreshold > 1 {
		return fmt.Errorf("text threshold must be in (0,1], got %v", c.TextThreshold)
	}
	if c.MergeMargin < 0 || c.MergeMargin >= c.EmbeddingThreshold || c.MergeMargin >= c.TextThreshold {
		return fmt.Errorf("merge margin must be in [0, threshold), got %v", c.MergeMargin)
	}
	if c.MinClusterSize < 2 {
		return fmt.Errorf("min cluster size must be at least 2, got %d", c.MinClusterSize)
	}
	if c.MinValidRuns < 1 {
		return fmt.Errorf("min valid runs must be at least 1, got %d", c.MinValidRuns)
	}
	return nil
}

func (c Config) threshold(mode Mode) float64 {
	if mode == ModeEmbedding {
		return c.EmbeddingThreshold
	}
	return c.TextThreshold
}

func (c Config) relaxedThreshold(mode Mode) float64 {
	return c.threshold(mode) - c.MergeMargin
}
