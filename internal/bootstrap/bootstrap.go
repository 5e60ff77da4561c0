// Package bootstrap wires configuration into a running orchestrator. It is
// shared by the guardd server and the guardctl command line tool.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mshogin/reasonguard/internal/application/services"
	domainServices "github.com/mshogin/reasonguard/internal/domain/services"
	"github.com/mshogin/reasonguard/internal/domain/services/robustness"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
	"github.com/mshogin/reasonguard/internal/infrastructure/logging"
	"github.com/mshogin/reasonguard/internal/infrastructure/providers"
	"github.com/mshogin/reasonguard/internal/infrastructure/storage"
)

// App is a wired orchestrator and the resources it holds.
type App struct {
	Orchestrator *services.Orchestrator
	Store        domainServices.TaskStore
	Providers    []string
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewLogger builds the logger described by the logging section. The
// returned closer releases a log file, if one was opened.
func NewLogger(cfg config.LoggingConfig) (*logging.StructuredLogger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	logger, err := logging.NewStructuredLoggerWithFormat(out, level, cfg.Format)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return logger, closer, nil
}

// OpenStore opens the configured task store.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (domainServices.TaskStore, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite":
		return storage.OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// New opens the store, initializes providers and builds the orchestrator.
// Generation is only wired when the config allows it; otherwise the
// orchestrator analyzes stored and supplied runs only. recorder may be nil.
func New(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, recorder services.MetricsRecorder) (*App, error) {
	if recorder == nil {
		recorder = services.NopRecorder()
	}

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	registry, skipped := providers.NewRegistry(cfg.Providers)
	for _, name := range skipped {
		logger.Warn("unknown provider skipped", map[string]interface{}{"provider": name})
	}

	var generator *services.Generator
	if cfg.CanGenerate() {
		generator, err = newGenerator(cfg, registry, logger, recorder)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	} else {
		logger.Warn("agent generation disabled; only stored or supplied runs can be analyzed")
	}

	analyzer, err := robustness.NewAnalyzer(cfg.Clustering.ToClustering(), cfg.Gate.Strict)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	orchestrator := services.NewOrchestrator(store, generator, analyzer,
		services.WithLogger(logger),
		services.WithMetrics(recorder),
	)

	names := cfg.EnabledProviders()
	logger.Info("orchestrator ready", map[string]interface{}{
		"providers":  names,
		"storage":    cfg.Storage.Driver,
		"generation": generator != nil,
		"strict":     cfg.Gate.Strict,
	})
	return &App{Orchestrator: orchestrator, Store: store, Providers: names}, nil
}

func newGenerator(cfg *config.Config, registry *providers.Registry, logger *logging.StructuredLogger, recorder services.MetricsRecorder) (*services.Generator, error) {
	selector := services.NewProviderSelector(registry.Providers())

	throttler := services.NewLLMThrottler(nil)
	for _, name := range cfg.EnabledProviders() {
		p := cfg.Providers[name]
		throttler.UpdateRateLimit(name, cfg.Agents.Model, p.RateLimitRPS, int(p.Timeout.Milliseconds()))
	}

	opts := []services.GeneratorOption{
		services.WithGeneratorLogger(logger),
		services.WithGeneratorMetrics(recorder),
	}
	if r := cfg.Agents.Redaction; r.MaskingEnabled || r.MaxPromptLength > 0 {
		opts = append(opts, services.WithRedactor(services.NewPromptRedactor(r)))
	}
	if cfg.Embeddings.Enabled {
		embedder, err := registry.Embedder(cfg.Embeddings.Provider, cfg.Embeddings.Model)
		if err != nil {
			return nil, fmt.Errorf("configure embeddings: %w", err)
		}
		opts = append(opts, services.WithEmbeddings(
			services.NewEmbeddingAttacher(embedder, cfg.Embeddings.Workers, logger, recorder)))
	}

	generator, err := services.NewGenerator(selector, throttler, cfg.GeneratorConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("configure generator: %w", err)
	}
	return generator, nil
}
