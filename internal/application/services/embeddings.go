package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mshogin/reasonguard/internal/domain/models"
	domainServices "github.com/mshogin/reasonguard/internal/domain/services"
)

// EmbeddingAttacher fills Embedding on valid runs. Identical inputs that are
// in flight at the same time share one embedder call.
type EmbeddingAttacher struct {
	embedder domainServices.Embedder
	workers  int
	group    singleflight.Group
	logger   Logger
	metrics  MetricsRecorder
}

// NewEmbeddingAttacher creates an attacher running at most workers calls at once.
func NewEmbeddingAttacher(embedder domainServices.Embedder, workers int, logger Logger, metrics MetricsRecorder) *EmbeddingAttacher {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = nopLogger{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &EmbeddingAttacher{embedder: embedder, workers: workers, logger: logger, metrics: metrics}
}

// Attach embeds every valid run in place. Failures are recorded per run in
// EmbeddingError and never returned.
func (a *EmbeddingAttacher) Attach(ctx context.Context, runs []models.TaskRun) {
	var g errgroup.Group
	g.SetLimit(a.workers)

	for i := range runs {
		run := &runs[i]
		if !run.Valid || run.Summary == nil {
			continue
		}
		g.Go(func() error {
			vec, err := a.embed(ctx, run.Summary.EmbeddingInput())
			if err != nil {
				run.EmbeddingError = err.Error()
				a.metrics.RecordEmbeddingFailure()
				a.logger.Warn("embedding failed", map[string]interface{}{
					"task_id": run.TaskID,
					"run_id":  run.RunID,
					"error":   err.Error(),
				})
				return nil
			}
			run.Embedding = vec
			return nil
		})
	}
	_ = g.Wait()
}

func (a *EmbeddingAttacher) embed(ctx context.Context, text string) ([]float64, error) {
	v, err, _ := a.group.Do(text, func() (interface{}, error) {
		vectors, err := a.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 || len(vectors[0]) == 0 {
			return nil, errors.New("embedder returned no vector")
		}
		return vectors[0], nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	// Shared results are copied so runs never alias each other.
	return append([]float64(nil), v.([]float64)...), nil
}
