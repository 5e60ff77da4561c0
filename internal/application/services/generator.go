package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mshogin/reasonguard/internal/domain/models"
	domainServices "github.com/mshogin/reasonguard/internal/domain/services"
)

// MinAgents is the smallest batch the generator runs.
const MinAgents = 3

// GeneratorConfig controls how agents are called.
type GeneratorConfig struct {
	Provider      string // empty means detect from Model
	Model         string
	Temperature   float64
	MaxTokens     int
	Workers       int
	DefaultAgents int
	Roles         []AgentRole
}

// Generator runs a batch of persona agents against one prompt and collects
// their reasoning summaries.
type Generator struct {
	selector   *ProviderSelector
	throttler  *LLMThrottler
	validator  *SummaryValidator
	embeddings *EmbeddingAttacher
	redactor   *PromptRedactor
	cfg        GeneratorConfig
	logger     Logger
	metrics    MetricsRecorder
	newRunID   func() string
	now        func() time.Time
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// WithGeneratorMetrics sets the metrics recorder.
func WithGeneratorMetrics(m MetricsRecorder) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// WithEmbeddings enables embedding of valid runs.
func WithEmbeddings(a *EmbeddingAttacher) GeneratorOption {
	return func(g *Generator) { g.embeddings = a }
}

// WithRedactor masks personal data in prompts before they reach providers.
func WithRedactor(r *PromptRedactor) GeneratorOption {
	return func(g *Generator) { g.redactor = r }
}

// WithRunIDs replaces the run id source.
func WithRunIDs(next func() string) GeneratorOption {
	return func(g *Generator) { g.newRunID = next }
}

// NewGenerator creates a generator. The throttler may be nil.
func NewGenerator(selector *ProviderSelector, throttler *LLMThrottler, cfg GeneratorConfig, opts ...GeneratorOption) (*Generator, error) {
	if selector == nil {
		return nil, errors.New("generator requires a provider selector")
	}
	if cfg.Model == "" {
		return nil, models.ErrMissingModel
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = DefaultAgentRoles
	}
	if cfg.Workers <= 0 {
		cfg.Workers = len(cfg.Roles)
	}
	if cfg.DefaultAgents == 0 {
		cfg.DefaultAgents = len(cfg.Roles)
	}
	if throttler == nil {
		throttler = NewLLMThrottler(nil)
	}

	g := &Generator{
		selector:  selector,
		throttler: throttler,
		validator: NewSummaryValidator(),
		cfg:       cfg,
		logger:    nopLogger{},
		metrics:   nopRecorder{},
		newRunID:  models.NewRunID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Roles returns the roles for a batch of numAgents, clamped to
// [MinAgents, len(roles)]. Zero selects the configured default.
func (g *Generator) Roles(numAgents int) []AgentRole {
	if numAgents == 0 {
		numAgents = g.cfg.DefaultAgents
	}
	n := max(numAgents, MinAgents)
	n = min(n, len(g.cfg.Roles))
	return g.cfg.Roles[:n]
}

// EmbeddingsEnabled reports whether runs get embeddings.
func (g *Generator) EmbeddingsEnabled() bool {
	return g.embeddings != nil
}

// Generate runs one agent per role concurrently. Individual agent failures
// produce invalid runs; only provider lookup and cancellation fail the batch.
func (g *Generator) Generate(ctx context.Context, taskID, prompt string, numAgents int) (*models.TaskBundle, error) {
	if prompt == "" {
		return nil, models.ErrMissingPrompt
	}
	provider, err := g.selector.Select(g.cfg.Provider, g.cfg.Model)
	if err != nil {
		return nil, err
	}

	agentPrompt := prompt
	if g.redactor != nil {
		red := g.redactor.Redact(prompt)
		agentPrompt = red.Prompt
		if len(red.Masked) > 0 || red.Truncated {
			g.logger.Info("prompt redacted", map[string]interface{}{
				"task_id":   taskID,
				"masked":    red.Masked,
				"truncated": red.Truncated,
			})
		}
	}

	started := g.now().UTC()
	roles := g.Roles(numAgents)
	runs := make([]models.TaskRun, len(roles))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, role := range roles {
		runID := g.newRunID()
		eg.Go(func() error {
			runs[i] = g.runAgent(egCtx, provider, taskID, runID, agentPrompt, role)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation cancelled: %w", err)
	}

	if g.embeddings != nil {
		g.embeddings.Attach(ctx, runs)
	}

	valid := 0
	for _, r := range runs {
		if r.Valid {
			valid++
		}
	}

	return &models.TaskBundle{
		TaskID:     taskID,
		UserPrompt: prompt,
		Runs:       runs,
		Meta: models.TaskMeta{
			StartedAt:         started,
			FinishedAt:        g.now().UTC(),
			TotalRuns:         len(runs),
			ValidRuns:         valid,
			InvalidRuns:       len(runs) - valid,
			EmbeddingsEnabled: g.embeddings != nil,
		},
	}, nil
}

func (g *Generator) runAgent(ctx context.Context, provider domainServices.LLMProvider, taskID, runID, prompt string, role AgentRole) models.TaskRun {
	start := g.now()
	run := models.TaskRun{RunID: runID, TaskID: taskID, AgentRole: role.Name}
	log := map[string]interface{}{"task_id": taskID, "run_id": runID, "agent_role": role.Name}

	modes := []PromptMode{PromptNormal, PromptStrict}
	var errs []error
	for i := 0; i < len(modes); i++ {
		mode := modes[i]
		run.AttemptCount++
		raw, summary, err := g.attempt(ctx, provider, taskID, prompt, role, mode)
		run.RawResponse = raw
		if err == nil {
			run.Summary = summary
			run.Valid = true
			break
		}
		errs = append(errs, err)
		g.logger.Debug("agent attempt rejected", log, map[string]interface{}{"mode": mode.String(), "error": err.Error()})

		if ctx.Err() != nil {
			break
		}
		if mode == PromptStrict && anyNumbered(errs) {
			modes = append(modes, PromptRepair)
		}
	}

	if !run.Valid {
		run.Error = errs[len(errs)-1].Error()
	}
	run.ElapsedMS = g.now().Sub(start).Milliseconds()
	g.metrics.RecordAgentRun(role.Name, run.Valid, run.AttemptCount)
	g.logger.Info("agent finished", log, map[string]interface{}{
		"valid":    run.Valid,
		"attempts": run.AttemptCount,
	})
	return run
}

func (g *Generator) attempt(ctx context.Context, provider domainServices.LLMProvider, taskID, prompt string, role AgentRole, mode PromptMode) (string, *models.ReasoningSummary, error) {
	if err := g.throttler.WaitForToken(ctx, provider.Name(), g.cfg.Model); err != nil {
		return "", nil, fmt.Errorf("rate limit wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.throttler.GetTimeout(provider.Name(), g.cfg.Model))
	defer cancel()

	req := &models.CompletionRequest{
		Model:    g.cfg.Model,
		Messages: []models.Message{{Role: "user", Content: BuildAgentPrompt(taskID, prompt, role, mode)}},
	}
	if g.cfg.Temperature > 0 {
		temp := g.cfg.Temperature
		req.Temperature = &temp
	}
	if g.cfg.MaxTokens > 0 {
		tokens := g.cfg.MaxTokens
		req.MaxTokens = &tokens
	}

	start := g.now()
	raw, err := provider.Complete(callCtx, req)
	g.metrics.RecordLLMCall(provider.Name(), g.now().Sub(start), err)
	if err != nil {
		return "", nil, fmt.Errorf("%s completion failed: %w", provider.Name(), err)
	}

	summary, err := g.validator.Parse(raw, taskID)
	return raw, summary, err
}

func anyNumbered(errs []error) bool {
	for _, err := range errs {
		if errors.Is(err, models.ErrNumberedPlan) {
			return true
		}
	}
	return false
}
