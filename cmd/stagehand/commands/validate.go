package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration document",
		Long: `Load the configuration document and report whether it is valid:
YAML syntax, struct constraints, schema conformance, requirement
references, and alias uniqueness are all checked.

With --watch, stay running and re-validate whenever the file changes.`,
		Example: `  # One-shot validation
  stagehand validate -c pipeline.yaml

  # Keep validating on every save
  stagehand validate -c pipeline.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}

			packages := store.Packages()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d packages)\n", store.Path(), len(packages))

			if !watch {
				return nil
			}

			err = store.Watch(cmd.Context(), func(reloadErr error) {
				if reloadErr != nil {
					log.Error().Err(reloadErr).Msg("Configuration invalid")
					return
				}
				log.Info().Int("packages", len(store.Packages())).Msg("Configuration valid")
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate whenever the file changes")

	return cmd
}
