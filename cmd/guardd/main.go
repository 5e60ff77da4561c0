package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mshogin/reasonguard/internal/bootstrap"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
	"github.com/mshogin/reasonguard/internal/infrastructure/logging"
	"github.com/mshogin/reasonguard/internal/infrastructure/metrics"
	"github.com/mshogin/reasonguard/internal/presentation/api"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "guardd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse CLI flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	strict := flag.Bool("strict", false, "Block MODERATE tasks as well as FRAGILE ones (overrides config)")
	flag.Parse()

	cfg, missing, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	// Apply CLI overrides
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *strict {
		cfg.Gate.Strict = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err := bootstrap.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logCloser.Close()
	defer logger.Sync() //nolint:errcheck
	logging.SetDefaultLogger(logger)

	if missing {
		logger.Warn("config file not found, using defaults", map[string]interface{}{"path": *configPath})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, collector)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close store", err)
		}
	}()

	handler := api.NewHandler(app.Orchestrator, cfg, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, registry),
		ReadTimeout:  cfg.Performance.ReadTimeout,
		WriteTimeout: cfg.Performance.WriteTimeout,
		IdleTimeout:  cfg.Performance.IdleTimeout,
	}

	// Graceful shutdown
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", map[string]interface{}{"addr": server.Addr})
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Performance.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", err)
			if err := server.Close(); err != nil {
				return fmt.Errorf("close server: %w", err)
			}
		}

		logger.Info("server stopped")
		return nil
	}
}

// loadConfig reads path. A missing file yields the defaults so the server can
// start in analysis-only mode without any configuration.
func loadConfig(path string) (cfg *config.Config, missing bool, err error) {
	cfg, err = config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}
