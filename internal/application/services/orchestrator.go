package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mshogin/reasonguard/internal/domain/models"
	domainServices "github.com/mshogin/reasonguard/internal/domain/services"
	"github.com/mshogin/reasonguard/internal/domain/services/clustering"
	"github.com/mshogin/reasonguard/internal/domain/services/robustness"
)

// TaskReport is a stored task together with its families and verdict.
type TaskReport struct {
	Task       *models.Task                `json:"task"`
	Families   []models.Family             `json:"families"`
	Robustness *models.RobustnessResult    `json:"robustness,omitempty"`
	Diversity  *clustering.DiversityMatrix `json:"diversity,omitempty"`
}

// Orchestrator coordinates the task pipeline: generation, persistence,
// analysis and gating.
//
// Design principles:
// - Dependency Injection: depends on the TaskStore interface
// - The generator is optional; without it only stored or supplied runs
//   can be analyzed
// - Analysis never fails a task; generator and store errors do
type Orchestrator struct {
	store     domainServices.TaskStore
	generator *Generator
	analyzer  *robustness.Analyzer
	scorer    *robustness.Scorer
	logger    Logger
	metrics   MetricsRecorder
	now       func() time.Time
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates a new Orchestrator instance. generator may be nil.
func NewOrchestrator(
	store domainServices.TaskStore,
	generator *Generator,
	analyzer *robustness.Analyzer,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		generator: generator,
		analyzer:  analyzer,
		scorer:    robustness.NewScorer(),
		logger:    nopLogger{},
		metrics:   nopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Strict reports the default gate mode.
func (o *Orchestrator) Strict() bool {
	return o.analyzer.Strict()
}

// CanGenerate reports whether a generator is configured.
func (o *Orchestrator) CanGenerate() bool {
	return o.generator != nil
}

// CreateAndRun creates a task, runs the agents, stores their runs and
// analyzes them.
func (o *Orchestrator) CreateAndRun(ctx context.Context, prompt string, numAgents int) (*TaskReport, error) {
	task, err := o.create(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, task, numAgents)
}

// Stream is CreateAndRun reporting progress on a channel. The channel is
// closed after the done or error event.
func (o *Orchestrator) Stream(ctx context.Context, prompt string, numAgents int) (<-chan *StreamEvent, error) {
	task, err := o.create(ctx, prompt)
	if err != nil {
		return nil, err
	}

	events := make(chan *StreamEvent, 4)
	go func() {
		defer close(events)

		created := *task
		o.sendEvent(ctx, events, NewTaskEvent(&created))
		report, err := o.run(ctx, task, numAgents)
		if err != nil {
			o.sendEvent(ctx, events, NewErrorEvent(err.Error()))
			return
		}
		o.sendEvent(ctx, events, NewReportEvent(report))
		o.sendEvent(ctx, events, NewDoneEvent())
	}()
	return events, nil
}

// sendEvent sends an event to the channel, checking for context cancellation.
func (o *Orchestrator) sendEvent(ctx context.Context, events chan<- *StreamEvent, event *StreamEvent) {
	select {
	case events <- event:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) create(ctx context.Context, prompt string) (*models.Task, error) {
	if o.generator == nil {
		return nil, models.ErrGenerationDisabled
	}
	if err := models.ValidateStruct(models.CreateTaskRequest{Prompt: prompt}); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}
	task, err := o.store.CreateTask(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	o.logger.Info("task created", map[string]interface{}{"task_id": task.ID})
	return task, nil
}

func (o *Orchestrator) run(ctx context.Context, task *models.Task, numAgents int) (*TaskReport, error) {
	task.Status = models.TaskStatusRunning
	if err := o.update(ctx, task); err != nil {
		return nil, err
	}

	bundle, err := o.generator.Generate(ctx, task.ID, task.Prompt, numAgents)
	if err != nil {
		o.fail(task, err)
		return nil, fmt.Errorf("generate runs for %s: %w", task.ID, err)
	}
	task.Meta = &bundle.Meta

	if err := o.store.AddRuns(ctx, task.ID, bundle.Runs); err != nil {
		o.fail(task, err)
		return nil, fmt.Errorf("store runs for %s: %w", task.ID, err)
	}

	return o.analyzeTask(ctx, task, bundle.Runs)
}

// Resume finishes a task from whatever was persisted. Tasks without runs
// are generated again; tasks with runs are re-analyzed.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (*TaskReport, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	runs, err := o.store.GetRuns(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		if o.generator == nil {
			return nil, fmt.Errorf("%w: task %s has no runs", models.ErrGenerationDisabled, taskID)
		}
		o.logger.Info("resuming task generation", map[string]interface{}{"task_id": taskID})
		return o.run(ctx, task, task.TotalRuns)
	}

	o.logger.Info("re-analyzing task", map[string]interface{}{"task_id": taskID, "runs": len(runs)})
	return o.analyzeTask(ctx, task, runs)
}

func (o *Orchestrator) analyzeTask(ctx context.Context, task *models.Task, runs []models.TaskRun) (*TaskReport, error) {
	analysis := o.Analyze(models.AgentOutputs(runs), o.analyzer.Strict())

	if err := o.store.ReplaceFamilies(ctx, task.ID, analysis.Families); err != nil {
		o.fail(task, err)
		return nil, fmt.Errorf("store families for %s: %w", task.ID, err)
	}

	task.TotalRuns = len(runs)
	task.ValidRuns = len(models.ValidOutputs(models.AgentOutputs(runs)))
	task.FamilyCount = len(analysis.Families)
	task.Classification = analysis.Classification
	task.AnswersAgree = analysis.AnswersAgree
	task.AnalysisError = analysis.Error
	task.Gate = keepOverride(task.Gate, analysis.Gate)
	task.Confidence = 0
	if analysis.Robustness != nil {
		task.Confidence = analysis.Robustness.Confidence
	}
	task.Status = models.TaskStatusCompleted
	if err := o.update(ctx, task); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"task_id":        task.ID,
		"classification": string(task.Classification),
		"families":       task.FamilyCount,
		"valid_runs":     task.ValidRuns,
	}
	if task.Gate != nil {
		fields["decision"] = string(task.Gate.Decision)
	}
	o.logger.Info("task analyzed", fields)

	return &TaskReport{
		Task:       task,
		Families:   analysis.Families,
		Robustness: analysis.Robustness,
		Diversity:  analysis.Diversity,
	}, nil
}

// keepOverride returns prev when it is an override of the same BLOCK that
// the fresh analysis produced again; otherwise the fresh gate wins.
func keepOverride(prev, next *models.GateResult) *models.GateResult {
	if prev != nil && prev.Overridden && next != nil && next.Decision == models.DecisionBlock {
		return prev
	}
	return next
}

// Analyze clusters, scores and gates outputs without touching the store.
func (o *Orchestrator) Analyze(outputs []models.AgentOutput, strict bool) robustness.Analysis {
	start := o.now()
	analysis := o.analyzer.WithStrict(strict).Analyze(outputs)

	o.metrics.RecordAnalysis(analysis.Classification, len(analysis.Families), o.now().Sub(start))
	if analysis.Gate != nil {
		o.metrics.RecordGateDecision(analysis.Gate.Decision)
	}
	if analysis.Error != "" {
		o.logger.Warn("analysis failed", map[string]interface{}{"error": analysis.Error})
	}
	return analysis
}

// Override forces a stored BLOCK decision to ALLOW. Decisions other than an
// overridable BLOCK are returned unchanged.
func (o *Orchestrator) Override(ctx context.Context, taskID, confirmation string) (*models.Task, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Gate == nil {
		return nil, fmt.Errorf("%w: %s is %s", models.ErrNoGateDecision, taskID, task.Classification)
	}

	result, err := robustness.Override(*task.Gate, confirmation)
	if err != nil {
		return nil, err
	}
	if !result.Overridden || task.Gate.Overridden {
		return task, nil
	}

	task.Gate = &result
	if err := o.update(ctx, task); err != nil {
		return nil, err
	}
	o.metrics.RecordOverride()
	o.logger.Warn("gate overridden", map[string]interface{}{
		"task_id":      taskID,
		"confirmation": result.Reason,
	})
	return task, nil
}

// Report loads a task with its families and recomputed robustness.
func (o *Orchestrator) Report(ctx context.Context, taskID string) (*TaskReport, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	families, err := o.store.GetFamilies(ctx, taskID)
	if err != nil {
		return nil, err
	}

	report := &TaskReport{Task: task, Families: families}
	if task.Status == models.TaskStatusCompleted && task.Classification != models.ClassificationError {
		r := o.scorer.Score(task.ValidRuns, families, task.ValidRuns < o.analyzer.MinValidRuns())
		report.Robustness = &r
	}
	return report, nil
}

// GetTask returns a stored task.
func (o *Orchestrator) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return o.store.GetTask(ctx, taskID)
}

// ListTasks returns the most recent tasks.
func (o *Orchestrator) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	return o.store.ListTasks(ctx, limit)
}

// Runs returns the stored runs of a task.
func (o *Orchestrator) Runs(ctx context.Context, taskID string) ([]models.TaskRun, error) {
	if _, err := o.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return o.store.GetRuns(ctx, taskID)
}

// Families returns the stored families of a task.
func (o *Orchestrator) Families(ctx context.Context, taskID string) ([]models.Family, error) {
	if _, err := o.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return o.store.GetFamilies(ctx, taskID)
}

// FragilePatterns returns prompts that keep producing fragile reasoning.
func (o *Orchestrator) FragilePatterns(ctx context.Context, limit int) ([]models.FragilePattern, error) {
	return o.store.FragilePatterns(ctx, limit)
}

func (o *Orchestrator) update(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = o.now().UTC()
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return nil
}

// fail marks the task FAILED. It uses a fresh context so cancellation of the
// request still leaves a terminal status behind.
func (o *Orchestrator) fail(task *models.Task, cause error) {
	task.Status = models.TaskStatusFailed
	task.AnalysisError = cause.Error()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.update(ctx, task); err != nil {
		o.logger.Error("failed to mark task failed", err, map[string]interface{}{"task_id": task.ID})
		return
	}
	o.logger.Error("task failed", cause, map[string]interface{}{"task_id": task.ID})
}
