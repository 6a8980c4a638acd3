package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/stagehand/stagehand/pkg/actions"
	"github.com/stagehand/stagehand/pkg/envres"
	"github.com/stagehand/stagehand/pkg/pkgdef"
	"github.com/stagehand/stagehand/pkg/policy"
	"github.com/stagehand/stagehand/pkg/stores"
	"github.com/stagehand/stagehand/pkg/telemetry"
	"github.com/stagehand/stagehand/pkg/txn"
)

// Exit codes for failures that happen before any process is spawned. A
// spawned child's own exit code is passed through verbatim.
const (
	ExitSuccess           = 0
	ExitResolutionFailure = 2
	ExitIncompatible      = 3
	ExitPolicyRefused     = 4
	ExitActionFailure     = 5
)

// Options configures a Controller. Universe, DataStore, and Registry are
// required; everything else has a working default.
type Options struct {
	// Universe resolves package names to definitions.
	Universe envres.Universe

	// DataStore serves action data blocks to operation factories.
	DataStore actions.DataStore

	// Registry maps action type names to operation factories.
	Registry *actions.Registry

	// Policies guards launches. Nil skips policy evaluation.
	Policies *policy.Engine

	// Snapshots persists committed snapshots. Nil disables commits.
	Snapshots *stores.SQLiteStore

	// Delegate controls spawn behavior. Nil selects BaseDelegate.
	Delegate Delegate

	// Evaluator runs package commands scripts, if any.
	Evaluator envres.CommandEvaluator

	// BaseEnv seeds environment composition. Nil uses os.Environ.
	BaseEnv []string

	// DryRun rehearses transactions without side effects and skips the
	// actual spawn.
	DryRun bool

	Metrics   *telemetry.Metrics
	Tracer    *telemetry.Tracer
	Publisher *telemetry.Publisher
	Logger    zerolog.Logger
}

// Controller launches programs in resolved package environments.
type Controller struct {
	opts     Options
	delegate Delegate
	logger   zerolog.Logger
}

// NewController validates opts and creates a controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Universe == nil {
		return nil, fmt.Errorf("universe is required")
	}
	if opts.DataStore == nil {
		return nil, fmt.Errorf("data store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("action registry is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = &telemetry.Metrics{}
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ()
	}

	delegate := opts.Delegate
	if delegate == nil {
		delegate = BaseDelegate{}
	}

	return &Controller{
		opts:     opts,
		delegate: delegate,
		logger:   opts.Logger.With().Str("component", "launcher").Logger(),
	}, nil
}

// ResolveEnvironment composes the environment for root without launching.
func (c *Controller) ResolveEnvironment(ctx context.Context, root string) (*envres.ResolvedEnvironment, error) {
	var span trace.Span
	if c.opts.Tracer != nil {
		ctx, span = c.opts.Tracer.StartResolveSpan(ctx, root)
		defer span.End()
	}

	start := time.Now()
	resolver := c.newResolver()
	env, err := resolver.Resolve(ctx, root)

	status := "success"
	if err != nil {
		status = "error"
	}
	c.opts.Metrics.ResolutionCompleted(status, time.Since(start))

	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}
	return env, err
}

// Launch resolves root, stages its actions, and starts the program. The
// returned exit code is the child's own code when a process ran, or one of
// the Exit constants when the launch stopped before spawning. The error
// carries the diagnostic for non-child failures.
func (c *Controller) Launch(ctx context.Context, root string, args []string, cwd string) (int, error) {
	started := time.Now()
	c.opts.Metrics.LaunchStarted(root)
	c.publish(telemetry.EventLaunchStarted, root, nil)

	code, err := c.launch(ctx, root, args, cwd)

	status := "success"
	if code != ExitSuccess {
		status = "failure"
	}
	c.opts.Metrics.LaunchCompleted(status, time.Since(started))
	fields := map[string]any{"exit_code": code}
	if err != nil {
		fields["error"] = err.Error()
	}
	c.publish(telemetry.EventLaunchFinished, root, fields)

	return code, err
}

func (c *Controller) launch(ctx context.Context, root string, args []string, cwd string) (int, error) {
	if c.opts.Tracer != nil {
		launchCtx, span := c.opts.Tracer.StartLaunchSpan(ctx, root, "")
		defer span.End()
		ctx = launchCtx
	}

	env, err := c.ResolveEnvironment(ctx, root)
	if err != nil {
		return ExitResolutionFailure, err
	}
	if env.Executable == "" {
		return ExitResolutionFailure, fmt.Errorf("package %s declares no executable", env.Root.Name)
	}

	if err := c.checkDrift(env); err != nil {
		return ExitIncompatible, err
	}

	if code, err := c.checkPolicies(ctx, env, args, cwd); err != nil {
		return code, err
	}

	tx, err := c.buildTransaction(ctx, env)
	if err != nil {
		return ExitResolutionFailure, err
	}

	tx.Apply(ctx)
	if !tx.Succeeded() {
		c.opts.Metrics.TransactionFinished("failed")
		c.opts.Metrics.RollbackPerformed("failure")
		return ExitActionFailure, fmt.Errorf("launch actions failed, changes rolled back: %w", tx.Err())
	}
	c.opts.Metrics.TransactionFinished("applied")

	if c.opts.DryRun {
		c.logger.Info().Str("package", env.Root.Name).Msg("Dry run complete, not spawning")
		return ExitSuccess, nil
	}

	return c.start(ctx, env, args, cwd)
}

// checkDrift compares the fresh resolution of every package in the closure
// against the snapshots recorded by an enclosing launch, if any. Matching
// on the whole closure catches a dependency whose version moved while
// still satisfying its constraint.
func (c *Controller) checkDrift(env *envres.ResolvedEnvironment) error {
	recorded, err := DecodeSnapshots(c.opts.BaseEnv)
	if err != nil {
		return err
	}

	resolved := make(map[string]*pkgdef.Package, len(env.Packages))
	for _, pkg := range env.Packages {
		resolved[pkg.Name] = pkg
	}

	for _, snap := range recorded {
		pkg, ok := resolved[snap.PackageName]
		if !ok {
			continue
		}
		fresh := SnapshotOf(pkg)
		if !snap.Compatible(fresh) {
			c.opts.Metrics.DriftChecked("incompatible")
			c.publish(telemetry.EventDriftDetected, pkg.Name, map[string]any{
				"recorded": snap.String(),
				"resolved": fresh.String(),
			})
			return &ProcessConfigurationIncompatibleError{Recorded: snap, Resolved: fresh}
		}
		c.opts.Metrics.DriftChecked("compatible")
		c.logger.Debug().Str("package", pkg.Name).Msg("Re-entry snapshot matches")
	}
	return nil
}

func (c *Controller) checkPolicies(ctx context.Context, env *envres.ResolvedEnvironment, args []string, cwd string) (int, error) {
	if c.opts.Policies == nil {
		return ExitSuccess, nil
	}

	input := &policy.LaunchInput{
		Program: env.Executable,
		Args:    args,
		Cwd:     cwd,
		Env:     env.Vars,
	}
	for _, pkg := range env.Packages {
		input.Packages = append(input.Packages, policy.PackageInfo{Name: pkg.Name, Version: pkg.Version})
	}

	result, err := c.opts.Policies.Evaluate(ctx, input)
	if err != nil {
		return ExitPolicyRefused, fmt.Errorf("policy evaluation failed: %w", err)
	}
	for _, v := range result.Violations {
		c.logger.Warn().
			Str("policy", v.Policy).
			Str("severity", v.Severity).
			Msg(v.Message)
	}
	if !result.Allowed {
		c.opts.Metrics.PolicyDenied()
		c.publish(telemetry.EventPolicyDenied, env.Root.Name, map[string]any{"violations": len(result.Violations)})
		return ExitPolicyRefused, fmt.Errorf("launch refused by policy (%d violations)", len(result.Violations))
	}
	return ExitSuccess, nil
}

// buildTransaction assembles one operation per action referenced by the
// resolved packages, in resolution order.
func (c *Controller) buildTransaction(ctx context.Context, env *envres.ResolvedEnvironment) (*txn.Transaction, error) {
	opts := []txn.Option{txn.WithDryRun(c.opts.DryRun)}
	if c.opts.Metrics.Enabled() || c.opts.Publisher != nil || c.opts.Tracer != nil {
		recorder := &telemetry.ProgressRecorder{
			Metrics:   c.opts.Metrics,
			Publisher: c.opts.Publisher,
			Tracer:    c.opts.Tracer,
		}
		recorder.BindContext(ctx)
		opts = append(opts, txn.WithProgress(recorder))
	}
	tx := txn.New(c.logger, opts...)

	for _, pkg := range env.Packages {
		for _, ref := range pkg.Actions {
			factory, err := c.opts.Registry.Resolve(ref.Type)
			if err != nil {
				return nil, fmt.Errorf("package %s: %w", pkg.Name, err)
			}
			op, err := factory(ref.Name, c.opts.DataStore)
			if err != nil {
				return nil, fmt.Errorf("package %s: action %s.%s: %w", pkg.Name, ref.Type, ref.Name, err)
			}
			if err := tx.Add(op); err != nil {
				return nil, err
			}
		}
	}
	return tx, nil
}

// start hands the prepared launch tuple to the delegate and runs it.
func (c *Controller) start(ctx context.Context, env *envres.ResolvedEnvironment, args []string, cwd string) (int, error) {
	vars := make(map[string]string, len(env.Vars)+1)
	for k, v := range env.Vars {
		vars[k] = v
	}

	// Refresh the snapshot channel so a re-invoked controller in the
	// child can detect drift.
	recorded, err := DecodeSnapshots(c.opts.BaseEnv)
	if err != nil {
		return ExitResolutionFailure, err
	}
	merged := recorded
	for _, pkg := range env.Packages {
		merged = mergeSnapshot(merged, SnapshotOf(pkg))
	}
	encoded, err := EncodeSnapshots(merged)
	if err != nil {
		return ExitResolutionFailure, err
	}
	vars[SnapshotsEnvVar] = encoded

	executable := env.Executable
	if err := c.delegate.PrepareEnvironment(executable, vars, args, cwd); err != nil {
		return ExitActionFailure, fmt.Errorf("delegate rejected environment: %w", err)
	}
	executable, vars, args, cwd, err = c.delegate.PreStart(executable, vars, args, cwd)
	if err != nil {
		return ExitActionFailure, fmt.Errorf("delegate pre-start failed: %w", err)
	}

	spec := &LaunchSpec{
		Executable: executable,
		Args:       args,
		Env:        flattenEnv(vars),
		Cwd:        cwd,
	}
	spec.Stdin, spec.Stdout, spec.Stderr = c.delegate.ProcessFiles()

	if spawner, ok := c.delegate.(Spawner); ok {
		return spawner.Spawn(ctx, spec)
	}

	if !c.delegate.ShouldSpawn() {
		// Control does not return on success.
		return ExitActionFailure, c.execReplace(spec)
	}

	return c.spawn(ctx, spec)
}

func (c *Controller) spawn(ctx context.Context, spec *LaunchSpec) (int, error) {
	cmd := exec.CommandContext(ctx, spec.Executable, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Cwd
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	c.logger.Info().
		Str("executable", spec.Executable).
		Strs("args", spec.Args).
		Msg("Spawning process")

	if err := cmd.Start(); err != nil {
		return ExitActionFailure, fmt.Errorf("failed to start %s: %w", spec.Executable, err)
	}

	code, err := c.delegate.Communicate(cmd)
	if err != nil {
		return ExitActionFailure, fmt.Errorf("failed waiting for %s: %w", spec.Executable, err)
	}
	return code, nil
}

// Commit records the resolved environment for root in the snapshot store.
func (c *Controller) Commit(ctx context.Context, root string) (*stores.Snapshot, error) {
	if c.opts.Snapshots == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}

	env, err := c.ResolveEnvironment(ctx, root)
	if err != nil {
		return nil, err
	}

	snap := &stores.Snapshot{
		Root:    root,
		Program: env.Executable,
	}
	for _, pkg := range env.Packages {
		snap.Packages = append(snap.Packages, stores.SnapshotPackage{Name: pkg.Name, Version: pkg.Version})
	}

	if err := c.opts.Snapshots.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("root", root).
		Str("snapshot", snap.ID).
		Int("packages", len(snap.Packages)).
		Msg("Snapshot committed")
	return snap, nil
}

func (c *Controller) newResolver() *envres.Resolver {
	opts := []envres.ResolverOption{
		envres.WithBaseEnvironment(envres.BaseEnvironment(c.opts.BaseEnv)),
	}
	if c.opts.Evaluator != nil {
		opts = append(opts, envres.WithCommandEvaluator(c.opts.Evaluator))
	}
	return envres.NewResolver(c.opts.Universe, c.logger, opts...)
}

func (c *Controller) publish(typ telemetry.EventType, root string, fields map[string]any) {
	if c.opts.Publisher == nil {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["root"] = root
	c.opts.Publisher.Publish(telemetry.Event{Type: typ, Fields: fields})
}

func flattenEnv(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}
