package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stagehand/stagehand/pkg/actions"
	"github.com/stagehand/stagehand/pkg/config"
	"github.com/stagehand/stagehand/pkg/launcher"
	"github.com/stagehand/stagehand/pkg/policy"
	"github.com/stagehand/stagehand/pkg/stores"
	"github.com/stagehand/stagehand/pkg/telemetry"
)

var (
	// Global flags
	configPath  string
	dbPath      string
	jsonOutput  bool
	metricsAddr string
	traceStdout bool
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stagehand",
		Short: "Stagehand - launch programs in composed package environments",
		Long: `Stagehand resolves versioned package requirements into a deterministic
process environment, stages declared filesystem actions inside a reversible
transaction, and launches the target program.

Features:
  - Ordered environment composition with prepend/append/set/unset edits
  - Starlark command blocks for procedural edits
  - Transactional pre-launch actions with automatic rollback
  - Re-entry drift detection across nested launches
  - OPA launch policies`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "snapshot database path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVar(&traceStdout, "trace", false, "print spans to stdout")

	rootCmd.AddCommand(newLaunchCommand())
	rootCmd.AddCommand(newEnvCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPackagesCommand())
	rootCmd.AddCommand(newCommitCommand())
	rootCmd.AddCommand(newSnapshotsCommand())

	return rootCmd
}

// loadStore opens the configuration document, honoring --config and the
// STAGEHAND_CONFIG variable before falling back to ./stagehand.yaml.
func loadStore() (*config.Store, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("STAGEHAND_CONFIG")
	}
	if path == "" {
		path = "stagehand.yaml"
	}
	return config.Load(path, log.Logger)
}

// openSnapshotStore opens and migrates the snapshot database, honoring
// --db before falling back to ~/.stagehand/stagehand.db.
func openSnapshotStore(ctx context.Context) (*stores.SQLiteStore, error) {
	path := dbPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, ".stagehand", "stagehand.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newController assembles a controller over the loaded configuration. The
// returned publisher carries launch lifecycle events; the cleanup closes it
// and flushes any pending spans, and is safe to call more than once.
func newController(ctx context.Context, store *config.Store, dryRun bool, delegate launcher.Delegate, snapshots *stores.SQLiteStore) (*launcher.Controller, *telemetry.Publisher, func(), error) {
	policies, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if paths := store.Policies(); len(paths) > 0 {
		if err := policies.LoadPaths(ctx, paths); err != nil {
			return nil, nil, nil, err
		}
	}

	telCfg := telemetry.DefaultConfig()
	if metricsAddr != "" {
		telCfg.Metrics.Enabled = true
		telCfg.Metrics.ListenAddress = metricsAddr
	}
	if traceStdout {
		telCfg.Tracing.Enabled = true
		telCfg.Tracing.Exporter = "stdout"
	}
	if err := telCfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return nil, nil, nil, err
	}
	if metrics.Enabled() {
		go serveMetrics(metricsAddr, metrics)
	}

	tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, telCfg.ServiceVersion, telCfg.Environment)
	if err != nil {
		return nil, nil, nil, err
	}

	events := telemetry.NewPublisher()
	cleanup := func() {
		events.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Trace shutdown failed")
		}
	}

	ctrl, err := launcher.NewController(launcher.Options{
		Universe:  store,
		DataStore: store,
		Registry:  actions.NewDefaultRegistry(),
		Policies:  policies,
		Snapshots: snapshots,
		Delegate:  delegate,
		Evaluator: config.NewCommandEvaluator(0),
		DryRun:    dryRun,
		Metrics:   metrics,
		Tracer:    tracer,
		Publisher: events,
		Logger:    log.Logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return ctrl, events, cleanup, nil
}

func serveMetrics(addr string, metrics *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Metrics endpoint stopped")
	}
}
