package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mshogin/reasonguard/internal/bootstrap"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
)

// version is set at build time via -ldflags.
var version = "dev"

// errBlocked is returned when --fail-on-block is set and the gate blocked.
var errBlocked = errors.New("execution blocked by the reasoning gate")

// errNoDecision is returned when --fail-on-block is set and the analysis
// ended without a gate (too few valid outputs or a clustering error).
var errNoDecision = errors.New("reasoning gate reached no decision")

type rootFlags struct {
	configPath string
	format     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "guardctl",
		Short: "Cluster agent reasoning, score its robustness and gate execution",
		Long: `guardctl groups the reasoning of several agents into families,
classifies how robust their agreement is and decides whether the result
may be executed.

Offline:
  guardctl analyze outputs.json           # analyze a file of agent outputs
  guardctl analyze - --strict < bundle    # read a task bundle from stdin

Against the configured store:
  guardctl run "Migrate the orders table"
  guardctl tasks
  guardctl override <task-id> --confirm "Reviewed by hand"`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "config.yaml", "Path to configuration file")
	pf.StringVarP(&flags.format, "format", "f", "table", "Output format: table, markdown or json")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	root.AddCommand(
		newAnalyzeCmd(flags),
		newRunCmd(flags),
		newTasksCmd(flags),
		newShowCmd(flags),
		newOverrideCmd(flags),
		newPatternsCmd(flags),
	)
	return root
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist. Logs go to stderr so stdout stays machine readable.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "console"
	cfg.Logging.Level = "error"
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openApp wires the orchestrator for commands that use the store.
func (f *rootFlags) openApp(ctx context.Context) (*bootstrap.App, func(), error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err := bootstrap.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, err
	}
	return app, func() {
		_ = app.Close()
		_ = logCloser.Close()
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
