package commands

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stagehand/stagehand/pkg/launcher"
)

// execDelegate selects process image replacement instead of spawning.
type execDelegate struct {
	launcher.BaseDelegate
}

func (execDelegate) ShouldSpawn() bool { return false }

func newLaunchCommand() *cobra.Command {
	var (
		cwd         string
		dryRun      bool
		execReplace bool
	)

	cmd := &cobra.Command{
		Use:   "launch <package> [-- args...]",
		Short: "Launch a program in its resolved package environment",
		Long: `Resolve the named package's requirement closure, compose its
environment, apply its staged actions, and start its executable.

The launch stops before spawning when resolution fails, the resolved
configuration drifted from the enclosing process's snapshot, a policy
refuses it, or a staged action fails (after rollback). The child's own
exit code is passed through verbatim.`,
		Example: `  # Launch python with its environment
  stagehand launch python -- -m http.server

  # Rehearse the launch without side effects
  stagehand launch python --dry-run

  # Replace the current process instead of spawning
  stagehand launch python --exec`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}

			var delegate launcher.Delegate
			if execReplace {
				delegate = execDelegate{}
			}

			ctrl, events, cleanup, err := newController(cmd.Context(), store, dryRun, delegate, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			// With --json the lifecycle events stream to stdout as
			// JSON lines while the launch runs.
			var drained chan struct{}
			if jsonOutput {
				ch := events.Subscribe(64)
				drained = make(chan struct{})
				go func() {
					defer close(drained)
					enc := json.NewEncoder(cmd.OutOrStdout())
					for ev := range ch {
						_ = enc.Encode(ev)
					}
				}()
			}

			root := args[0]
			childArgs := args[1:]

			log.Info().
				Str("package", root).
				Strs("args", childArgs).
				Bool("dry_run", dryRun).
				Msg("Launching")

			code, err := ctrl.Launch(cmd.Context(), root, childArgs, cwd)

			cleanup()
			if drained != nil {
				<-drained
			}

			if code != launcher.ExitSuccess || err != nil {
				return &ExitError{Code: code, Err: err}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the launched program")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "rehearse actions without side effects and skip the spawn")
	cmd.Flags().BoolVar(&execReplace, "exec", false, "replace this process instead of spawning a child")

	return cmd
}
