package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newEnvCommand() *cobra.Command {
	var showEdits bool

	cmd := &cobra.Command{
		Use:   "env <package>",
		Short: "Print the composed environment for a package",
		Long: `Resolve the named package's requirement closure and print the
environment its executable would see, without applying actions or
spawning anything.`,
		Example: `  # Print KEY=value lines
  stagehand env python

  # Show which package contributed each edit
  stagehand env python --edits

  # Machine-readable output
  stagehand env python --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			ctrl, _, cleanup, err := newController(cmd.Context(), store, false, nil, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			env, err := ctrl.ResolveEnvironment(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(env)
			}

			if showEdits {
				for _, applied := range env.Applied {
					fmt.Fprintf(cmd.OutOrStdout(), "# %s: %s %s\n",
						applied.Package, applied.Edit.Kind, applied.Edit.Var)
				}
			}
			for _, entry := range env.Environ() {
				fmt.Fprintln(cmd.OutOrStdout(), entry)
			}
			if env.Executable != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# executable: %s\n", env.Executable)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEdits, "edits", false, "show the applied edit trace")

	return cmd
}
