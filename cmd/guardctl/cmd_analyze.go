package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services/robustness"
)

type analyzeFlags struct {
	strict             bool
	failOnBlock        bool
	embeddingThreshold float64
	textThreshold      float64
}

func newAnalyzeCmd(root *rootFlags) *cobra.Command {
	flags := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Analyze a file of agent outputs without touching the store",
		Long: `Analyze reads either a JSON array of agent outputs or a task bundle
({"task_id": ..., "runs": [...]}) and prints the reasoning families,
the robustness verdict and the gate decision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, root, flags, args[0])
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.strict, "strict", false, "Block MODERATE results as well as FRAGILE ones")
	f.BoolVar(&flags.failOnBlock, "fail-on-block", false, "Exit non-zero when the gate blocks or cannot decide")
	f.Float64Var(&flags.embeddingThreshold, "embedding-threshold", 0, "Override the embedding similarity threshold")
	f.Float64Var(&flags.textThreshold, "text-threshold", 0, "Override the text similarity threshold")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootFlags, flags *analyzeFlags, path string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if flags.embeddingThreshold > 0 {
		cfg.Clustering.EmbeddingThreshold = flags.embeddingThreshold
	}
	if flags.textThreshold > 0 {
		cfg.Clustering.TextThreshold = flags.textThreshold
	}

	outputs, err := readOutputs(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	analyzer, err := robustness.NewAnalyzer(cfg.Clustering.ToClustering(), flags.strict || cfg.Gate.Strict)
	if err != nil {
		return err
	}
	analysis := analyzer.Analyze(outputs)

	if err := renderAnalysis(cmd.OutOrStdout(), root.format, analysis); err != nil {
		return err
	}
	if !flags.failOnBlock {
		return nil
	}
	if analysis.Gate == nil {
		return fmt.Errorf("%w: classification %s", errNoDecision, analysis.Classification)
	}
	if analysis.Gate.Decision == models.DecisionBlock {
		return errBlocked
	}
	return nil
}

// readOutputs accepts a JSON array of agent outputs or a task bundle.
func readOutputs(stdin io.Reader, path string) ([]models.AgentOutput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	if trimmed[0] == '[' {
		var outputs []models.AgentOutput
		if err := json.Unmarshal(trimmed, &outputs); err != nil {
			return nil, fmt.Errorf("parse agent outputs: %w", err)
		}
		return outputs, nil
	}

	var bundle models.TaskBundle
	if err := json.Unmarshal(trimmed, &bundle); err != nil {
		return nil, fmt.Errorf("parse task bundle: %w", err)
	}
	if len(bundle.Runs) == 0 {
		return nil, fmt.Errorf("task bundle %s has no runs", bundle.TaskID)
	}
	return models.AgentOutputs(bundle.Runs), nil
}
